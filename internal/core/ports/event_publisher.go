package ports

import "context"

// QueueUserCreated is the durable queue that receives user creation notices.
const QueueUserCreated = "user.created"

// EventPublisher delivers a text message to a named durable queue. Delivery is
// best-effort: callers log failures and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, queue, message string) error
}
