package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/bugtracker-backend/internal/models"
	"github.com/AnshRaj112/bugtracker-backend/internal/services"
	"github.com/AnshRaj112/bugtracker-backend/pkg/respond"
	"github.com/AnshRaj112/bugtracker-backend/pkg/validation"
)

// CreateUserRequest is the body of POST /api/users. Unlike registration any
// role may be assigned.
type CreateUserRequest struct {
	Name       string  `json:"name" validate:"required,min=2,max=50"`
	Email      string  `json:"email" validate:"required,email"`
	Password   string  `json:"password" validate:"required,min=8,maxbytes=72,strongpassword"`
	Role       string  `json:"role" validate:"omitempty,oneof=admin user developer tester"`
	Department *string `json:"department" validate:"omitnil,max=100"`
}

func (r *CreateUserRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Department = trimPtr(r.Department)
}

func (r *CreateUserRequest) ValidationMessages() map[string]string {
	return map[string]string{
		"name.min":          "Name must be between 2 and 50 characters",
		"name.max":          "Name must be between 2 and 50 characters",
		"password.maxbytes": "Password cannot exceed 72 bytes",
		"role.oneof":        "Invalid role",
		"department.max":    "Department name too long",
	}
}

type UpdateUserRequest struct {
	Name       *string `json:"name" validate:"omitnil,min=2,max=50"`
	Email      *string `json:"email" validate:"omitnil,email"`
	Role       *string `json:"role" validate:"omitnil,oneof=admin user developer tester"`
	Department *string `json:"department" validate:"omitnil,max=100"`
	IsActive   *bool   `json:"isActive"`
}

func (r *UpdateUserRequest) Normalize() {
	r.Name = trimPtr(r.Name)
	r.Department = trimPtr(r.Department)
	if r.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*r.Email))
		r.Email = &e
	}
}

func (r *UpdateUserRequest) ValidationMessages() map[string]string {
	return map[string]string{
		"role.oneof": "Invalid role",
	}
}

type ToggleStatusResponse struct {
	IsActive bool `json:"isActive"`
}

// UserHandler serves the admin-only /api/users routes.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

// List handles GET /api/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	q := services.UserQuery{
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
		Role:   models.Role(qs.Get("role")),
		Search: strings.TrimSpace(qs.Get("search")),
		SortBy: qs.Get("sortBy"),
		Order:  qs.Get("order"),
	}
	if v := qs.Get("isActive"); v != "" {
		active := v == "true"
		q.IsActive = &active
	}

	users, total, q, err := h.users.List(r.Context(), q)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	respond.Paginated(w, "Users fetched", users, q.Page, q.Limit, total)
}

// Get handles GET /api/users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, "User fetched", user)
}

// Create handles POST /api/users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	user, err := h.users.Create(r.Context(), currentUser(r), services.CreateUserInput{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		Role:       models.Role(req.Role),
		Department: req.Department,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Success(w, http.StatusCreated, "User created", user)
}

// Update handles PUT /api/users/{id}.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	upd := services.AdminUserUpdate{
		Name:       req.Name,
		Email:      req.Email,
		Department: req.Department,
		IsActive:   req.IsActive,
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		upd.Role = &role
	}

	user, err := h.users.Update(r.Context(), currentUser(r), chi.URLParam(r, "id"), upd)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, "User updated", user)
}

// Delete handles DELETE /api/users/{id}. Accounts are deactivated, not removed.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Deactivate(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, "User deactivated successfully", nil)
}

// ToggleStatus handles PATCH /api/users/{id}/toggle-status.
func (h *UserHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	active, err := h.users.ToggleStatus(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	msg := "User deactivated"
	if active {
		msg = "User activated"
	}
	respond.Success(w, http.StatusOK, msg, ToggleStatusResponse{IsActive: active})
}

// AuthEvents handles GET /api/users/{id}/auth-events.
func (h *UserHandler) AuthEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.users.AuthEvents(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if events == nil {
		events = []models.AuthEvent{}
	}
	respond.Success(w, http.StatusOK, "Auth events fetched", events)
}
