package handler

import "github.com/iam-platform/iam-service/internal/core/domain"

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Detail string `json:"detail"`
}

// --- Request / Response types ---

type createUserRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email"    validate:"required,email,max=100"`
	RoleID   int64  `json:"role_id"  validate:"required,gt=0"`
}

type createRoleRequest struct {
	Name string `json:"name" validate:"required,max=50"`
}

type roleResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type userResponse struct {
	ID       int64         `json:"id"`
	Username string        `json:"username"`
	Email    string        `json:"email"`
	RoleID   int64         `json:"role_id"`
	Role     *roleResponse `json:"role,omitempty"`
}

type userSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type getUserResponse struct {
	User userSummary `json:"user"`
}

func toRoleResponse(r *domain.Role) roleResponse {
	return roleResponse{ID: r.ID, Name: r.Name}
}

func toUserResponse(u *domain.User) userResponse {
	resp := userResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		RoleID:   u.RoleID,
	}
	if u.Role != nil {
		role := toRoleResponse(u.Role)
		resp.Role = &role
	}
	return resp
}
