package handlers

import (
	"net/http"
	"strings"

	"github.com/AnshRaj112/bugtracker-backend/internal/middleware"
	"github.com/AnshRaj112/bugtracker-backend/internal/models"
	"github.com/AnshRaj112/bugtracker-backend/internal/services"
	"github.com/AnshRaj112/bugtracker-backend/pkg/clientip"
	"github.com/AnshRaj112/bugtracker-backend/pkg/respond"
	"github.com/AnshRaj112/bugtracker-backend/pkg/utils"
	"github.com/AnshRaj112/bugtracker-backend/pkg/validation"
)

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Name       string  `json:"name" validate:"required,min=2,max=50"`
	Email      string  `json:"email" validate:"required,email"`
	Password   string  `json:"password" validate:"required,min=8,maxbytes=72,strongpassword"`
	Role       string  `json:"role" validate:"omitempty,oneof=user developer tester"`
	Department *string `json:"department" validate:"omitnil,max=100"`
}

func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Department = trimPtr(r.Department)
}

func (r *RegisterRequest) ValidationMessages() map[string]string {
	return map[string]string{
		"name.required":     "Name is required",
		"name.min":          "Name must be between 2 and 50 characters",
		"name.max":          "Name must be between 2 and 50 characters",
		"email.required":    "Email is required",
		"password.required": "Password is required",
		"password.min":      "Password must be at least 8 characters",
		"password.maxbytes": "Password cannot exceed 72 bytes",
		"role.oneof":        "Invalid role",
		"department.max":    "Department name too long",
	}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *LoginRequest) ValidationMessages() map[string]string {
	return map[string]string{
		"email.required":    "Email is required",
		"password.required": "Password is required",
	}
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type UpdateProfileRequest struct {
	Name       *string `json:"name" validate:"omitnil,min=2,max=50"`
	Department *string `json:"department" validate:"omitnil,max=100"`
	Avatar     *string `json:"avatar" validate:"omitnil,max=500"`
}

func (r *UpdateProfileRequest) Normalize() {
	r.Name = trimPtr(r.Name)
	r.Department = trimPtr(r.Department)
	r.Avatar = trimPtr(r.Avatar)
}

func (r *UpdateProfileRequest) ValidationMessages() map[string]string {
	return map[string]string{
		"name.min":       "Name must be 2-50 characters",
		"name.max":       "Name must be 2-50 characters",
		"department.max": "Department too long",
	}
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,maxbytes=72,strongpassword"`
}

func (r *ChangePasswordRequest) ValidationMessages() map[string]string {
	return map[string]string{
		"currentPassword.required":   "Current password is required",
		"newPassword.required":       "New password is required",
		"newPassword.min":            "New password must be at least 8 characters",
		"newPassword.maxbytes":       "Password cannot exceed 72 bytes",
		"newPassword.strongpassword": "Password must contain uppercase, lowercase, and number",
	}
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	User         models.UserProfile `json:"user"`
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
	ExpiresIn    string             `json:"expiresIn"`
}

type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthHandler serves /api/auth.
type AuthHandler struct {
	sessions *services.SessionService
	cookies  CookiePolicy
}

func NewAuthHandler(sessions *services.SessionService, cookies CookiePolicy) *AuthHandler {
	return &AuthHandler{sessions: sessions, cookies: cookies}
}

func requestMeta(r *http.Request) services.RequestMeta {
	return services.RequestMeta{IP: clientip.RealClientIP(r), UserAgent: r.UserAgent()}
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// currentUser is only called behind RequireAuth, which guarantees a user.
func currentUser(r *http.Request) *models.User {
	u, _ := middleware.CurrentUser(r.Context())
	return u
}

func (h *AuthHandler) sendTokens(w http.ResponseWriter, status int, message string, res *services.AuthResult) {
	h.cookies.SetTokens(w, res.AccessToken, res.RefreshToken)
	respond.Success(w, status, message, TokenResponse{
		User:         res.User.Profile(),
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    utils.FormatDuration(h.cookies.AccessTTL),
	})
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	res, err := h.sessions.Register(r.Context(), services.RegisterInput{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		Role:       models.Role(req.Role),
		Department: req.Department,
		Meta:       requestMeta(r),
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	h.sendTokens(w, http.StatusCreated, "Registration successful", res)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	res, err := h.sessions.Login(r.Context(), services.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Meta:     requestMeta(r),
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	h.sendTokens(w, http.StatusOK, "Login successful", res)
}

// Refresh handles POST /api/auth/refresh. The token comes from the body or,
// failing that, the refreshToken cookie.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := validation.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		if c, err := r.Cookie(refreshTokenCookie); err == nil {
			token = c.Value
		}
	}

	res, err := h.sessions.Refresh(r.Context(), token, requestMeta(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	h.cookies.SetTokens(w, res.AccessToken, res.RefreshToken)
	respond.Success(w, http.StatusOK, "Token refreshed", RefreshResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if err := h.sessions.Logout(r.Context(), user.ID.Hex(), requestMeta(r)); err != nil {
		respond.Error(w, r, err)
		return
	}
	h.cookies.Clear(w)
	respond.Success(w, http.StatusOK, "Logged out successfully", nil)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessions.Profile(r.Context(), currentUser(r).ID.Hex())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, "Profile fetched", user)
}

// UpdateMe handles PUT /api/auth/me.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	user, err := h.sessions.UpdateProfile(r.Context(), currentUser(r).ID.Hex(), services.ProfileUpdate{
		Name:       req.Name,
		Department: req.Department,
		Avatar:     req.Avatar,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, "Profile updated", user)
}

// ChangePassword handles PUT /api/auth/change-password. Every session of the
// user ends, including this one.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	err := h.sessions.ChangePassword(r.Context(), currentUser(r).ID.Hex(), req.CurrentPassword, req.NewPassword, requestMeta(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	h.cookies.Clear(w)
	respond.Success(w, http.StatusOK, "Password changed successfully. Please log in again.", nil)
}
