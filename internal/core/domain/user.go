package domain

import "strconv"

// User is an identity registered in the service. RoleID is always set; Role is
// populated when the caller joined the roles table.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	RoleID   int64  `json:"role_id"`
	Role     *Role  `json:"role,omitempty"`
}

// UserCacheKey returns the cache key holding the username for a user id.
func UserCacheKey(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}
