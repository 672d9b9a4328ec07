package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iam-platform/iam-service/internal/api/handler"
	"github.com/iam-platform/iam-service/internal/core/domain"
	"github.com/iam-platform/iam-service/internal/core/ports"
	"github.com/iam-platform/iam-service/internal/core/resilience"
)

// ---------------------------------------------------------------------------
// Stub services
// ---------------------------------------------------------------------------

type stubUserService struct {
	createFn func(ctx context.Context, in ports.CreateUserInput) (*domain.User, error)
	getFn    func(ctx context.Context, id int64) (*ports.UserSummary, error)
	users    []*domain.User
}

func (s *stubUserService) CreateUser(ctx context.Context, in ports.CreateUserInput) (*domain.User, error) {
	return s.createFn(ctx, in)
}

func (s *stubUserService) GetUser(ctx context.Context, id int64) (*ports.UserSummary, error) {
	return s.getFn(ctx, id)
}

func (s *stubUserService) ListUsers(context.Context) ([]*domain.User, error) {
	return s.users, nil
}

type stubRoleService struct {
	roles []*domain.Role
}

func (s *stubRoleService) CreateRole(_ context.Context, name string) (*domain.Role, error) {
	for _, r := range s.roles {
		if r.Name == name {
			return nil, domain.ErrConflict
		}
	}
	role := &domain.Role{ID: int64(len(s.roles) + 1), Name: name}
	s.roles = append(s.roles, role)
	return role, nil
}

func (s *stubRoleService) ListRoles(context.Context) ([]*domain.Role, error) {
	return s.roles, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestRouter(users *stubUserService, health map[string]handler.Pinger) *echo.Echo {
	if users == nil {
		users = &stubUserService{}
	}
	return NewRouter(Deps{
		Users:  users,
		Roles:  &stubRoleService{},
		Health: health,
		Log:    zerolog.Nop(),
	})
}

func doRequest(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return out
}

// ---------------------------------------------------------------------------
// Roles
// ---------------------------------------------------------------------------

func TestRouter_CreateRole(t *testing.T) {
	e := newTestRouter(nil, nil)

	rec := doRequest(e, http.MethodPost, "/api/v1/roles/", `{"name":"admin"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode(t, rec)
	if resp["name"] != "admin" {
		t.Errorf("name = %v", resp["name"])
	}
	id, ok := resp["id"].(float64)
	if !ok || id != float64(int64(id)) || id < 1 {
		t.Errorf("expected integer id, got %v", resp["id"])
	}
}

func TestRouter_CreateRole_Conflict(t *testing.T) {
	e := newTestRouter(nil, nil)

	doRequest(e, http.MethodPost, "/api/v1/roles", `{"name":"admin"}`)
	rec := doRequest(e, http.MethodPost, "/api/v1/roles", `{"name":"admin"}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if decode(t, rec)["detail"] == "" {
		t.Error("expected detail message")
	}
}

func TestRouter_ListRoles(t *testing.T) {
	e := newTestRouter(nil, nil)
	doRequest(e, http.MethodPost, "/api/v1/roles", `{"name":"admin"}`)

	rec := doRequest(e, http.MethodGet, "/api/v1/roles/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var roles []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &roles); err != nil {
		t.Fatal(err)
	}
	if len(roles) != 1 || roles[0]["name"] != "admin" {
		t.Errorf("unexpected roles %v", roles)
	}
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func TestRouter_CreateUser(t *testing.T) {
	users := &stubUserService{
		createFn: func(_ context.Context, in ports.CreateUserInput) (*domain.User, error) {
			if in.Username != "alice" || in.Email != "a@x.io" || in.RoleID != 1 {
				t.Fatalf("unexpected input %+v", in)
			}
			return &domain.User{ID: 1, Username: in.Username, Email: in.Email, RoleID: 1, Role: &domain.Role{ID: 1, Name: "admin"}}, nil
		},
	}
	e := newTestRouter(users, nil)

	rec := doRequest(e, http.MethodPost, "/api/v1/users/", `{"username":"alice","email":"a@x.io","role_id":1}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode(t, rec)
	if resp["id"] != float64(1) || resp["username"] != "alice" {
		t.Errorf("unexpected user %v", resp)
	}
	role, ok := resp["role"].(map[string]any)
	if !ok || role["name"] != "admin" {
		t.Errorf("expected nested role, got %v", resp["role"])
	}
}

func TestRouter_CreateUser_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
	}{
		{"validation", `{"username":"alice","email":"not-an-email","role_id":1}`, nil, http.StatusUnprocessableEntity},
		{"missing role", `{"username":"alice","email":"a@x.io"}`, nil, http.StatusUnprocessableEntity},
		{"malformed json", `{"username":`, nil, http.StatusBadRequest},
		{"conflict", `{"username":"alice","email":"a@x.io","role_id":1}`, domain.ErrConflict, http.StatusConflict},
		{"unknown role", `{"username":"alice","email":"a@x.io","role_id":9}`, domain.ErrRoleNotFound, http.StatusUnprocessableEntity},
		{"store down", `{"username":"alice","email":"a@x.io","role_id":1}`, errors.New("dial tcp: refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			users := &stubUserService{
				createFn: func(context.Context, ports.CreateUserInput) (*domain.User, error) {
					called = true
					return nil, tt.err
				},
			}
			e := newTestRouter(users, nil)

			rec := doRequest(e, http.MethodPost, "/api/v1/users", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.err == nil && called {
				t.Error("service must not be called for invalid input")
			}
			if _, ok := decode(t, rec)["detail"].(string); !ok {
				t.Errorf("expected detail envelope, got %s", rec.Body.String())
			}
		})
	}
}

func TestRouter_GetUser(t *testing.T) {
	users := &stubUserService{
		getFn: func(_ context.Context, id int64) (*ports.UserSummary, error) {
			return &ports.UserSummary{ID: id, Username: "alice"}, nil
		},
	}
	e := newTestRouter(users, nil)

	rec := doRequest(e, http.MethodGet, "/api/v1/users/5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"user":{"id":5,"username":"alice"}}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestRouter_GetUser_NotFound(t *testing.T) {
	users := &stubUserService{
		getFn: func(context.Context, int64) (*ports.UserSummary, error) {
			return nil, domain.ErrUserNotFound
		},
	}
	e := newTestRouter(users, nil)

	rec := doRequest(e, http.MethodGet, "/api/v1/users/999", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"detail":"User not found"}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestRouter_GetUser_CircuitOpen(t *testing.T) {
	users := &stubUserService{
		getFn: func(context.Context, int64) (*ports.UserSummary, error) {
			return nil, resilience.ErrCircuitOpen
		},
	}
	e := newTestRouter(users, nil)

	rec := doRequest(e, http.MethodGet, "/api/v1/users/1", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRouter_GetUser_InvalidID(t *testing.T) {
	e := newTestRouter(nil, nil)

	for _, id := range []string{"abc", "1.5", "99999999999999999999"} {
		rec := doRequest(e, http.MethodGet, "/api/v1/users/"+id, "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("id %q: expected 422, got %d", id, rec.Code)
		}
	}
}

func TestRouter_GetUser_NonPositiveIDNotFound(t *testing.T) {
	var looked []int64
	users := &stubUserService{
		getFn: func(_ context.Context, id int64) (*ports.UserSummary, error) {
			looked = append(looked, id)
			return nil, domain.ErrUserNotFound
		},
	}
	e := newTestRouter(users, nil)

	for _, id := range []string{"0", "-3"} {
		rec := doRequest(e, http.MethodGet, "/api/v1/users/"+id, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("id %q: expected 404, got %d: %s", id, rec.Code, rec.Body.String())
		}
		if got := strings.TrimSpace(rec.Body.String()); got != `{"detail":"User not found"}` {
			t.Errorf("id %q: unexpected body %s", id, got)
		}
	}
	if len(looked) != 2 || looked[0] != 0 || looked[1] != -3 {
		t.Errorf("expected lookups for 0 and -3, got %v", looked)
	}
}

func TestRouter_ListUsers(t *testing.T) {
	users := &stubUserService{users: []*domain.User{
		{ID: 1, Username: "alice", Email: "a@x.io", RoleID: 1, Role: &domain.Role{ID: 1, Name: "admin"}},
	}}
	e := newTestRouter(users, nil)

	rec := doRequest(e, http.MethodGet, "/api/v1/users", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0]["username"] != "alice" {
		t.Errorf("unexpected list %v", list)
	}
}

// ---------------------------------------------------------------------------
// Probes and tooling
// ---------------------------------------------------------------------------

func TestRouter_Health(t *testing.T) {
	e := newTestRouter(nil, nil)

	rec := doRequest(e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decode(t, rec)["status"] != "healthy" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestRouter_Readiness(t *testing.T) {
	t.Run("all up", func(t *testing.T) {
		e := newTestRouter(nil, map[string]handler.Pinger{
			"postgres": stubPinger{},
			"redis":    stubPinger{},
			"rabbitmq": stubPinger{},
		})
		rec := doRequest(e, http.MethodGet, "/health/ready", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("one down", func(t *testing.T) {
		e := newTestRouter(nil, map[string]handler.Pinger{
			"postgres": stubPinger{},
			"redis":    stubPinger{err: errors.New("connection refused")},
		})
		rec := doRequest(e, http.MethodGet, "/health/ready", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
		deps, _ := decode(t, rec)["dependencies"].(map[string]any)
		redis, _ := deps["redis"].(map[string]any)
		if redis["status"] != "unhealthy" {
			t.Errorf("expected redis unhealthy, got %v", deps)
		}
	})
}

func TestRouter_Metrics(t *testing.T) {
	e := newTestRouter(nil, nil)
	doRequest(e, http.MethodGet, "/health", "")

	rec := doRequest(e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Error("expected http_requests_total in exposition")
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	e := newTestRouter(nil, nil)

	rec := doRequest(e, http.MethodGet, "/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if _, ok := decode(t, rec)["detail"]; !ok {
		t.Error("expected detail envelope")
	}
}
