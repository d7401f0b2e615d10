package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/AnshRaj112/bugtracker-backend/internal/apperrors"
	"github.com/AnshRaj112/bugtracker-backend/internal/auth"
	"github.com/AnshRaj112/bugtracker-backend/internal/metrics"
	"github.com/AnshRaj112/bugtracker-backend/internal/models"
)

// PasswordHasher is satisfied by *utils.PasswordHasher.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
	VerifyDummy(password string)
}

// TokenIssuer is satisfied by *auth.TokenService.
type TokenIssuer interface {
	IssueAccess(userID string, role models.Role) (string, error)
	IssueRefresh(userID string) (string, error)
	VerifyAccess(token string) (*auth.AccessClaims, error)
	VerifyRefresh(token string) (*auth.RefreshClaims, error)
}

// hashFailure reports an over-long password as a validation error on field.
func hashFailure(field string, err error) error {
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return apperrors.Validation([]apperrors.FieldError{{Field: field, Message: "Password cannot exceed 72 bytes"}})
	}
	return apperrors.Internal(err)
}

// RequestMeta identifies the client behind a request for the audit trail.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type RegisterInput struct {
	Name       string
	Email      string
	Password   string
	Role       models.Role
	Department *string
	Meta       RequestMeta
}

type LoginInput struct {
	Email    string
	Password string
	Meta     RequestMeta
}

// AuthResult is a user together with a freshly issued token pair.
type AuthResult struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

type SessionDeps struct {
	Users  UserStore
	Hasher PasswordHasher
	Tokens TokenIssuer
	Policy LockoutPolicy
	Audit  AuditLog
	Events SessionPublisher
	Now    func() time.Time
}

// SessionService runs the account lifecycle: registration, login with lockout,
// refresh rotation, logout, password change and per-request authentication.
type SessionService struct {
	users  UserStore
	hasher PasswordHasher
	tokens TokenIssuer
	policy LockoutPolicy
	audit  AuditLog
	events SessionPublisher
	now    func() time.Time
}

func NewSessionService(deps SessionDeps) *SessionService {
	s := &SessionService{
		users:  deps.Users,
		hasher: deps.Hasher,
		tokens: deps.Tokens,
		policy: deps.Policy.withDefaults(),
		audit:  deps.Audit,
		events: deps.Events,
		now:    deps.Now,
	}
	if s.audit == nil {
		s.audit = NopAudit{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

const (
	msgRefreshRequired = "Refresh token required"
	msgRefreshInvalid  = "Invalid or expired refresh token"
	msgRefreshRevoked  = "Refresh token invalid or revoked"
	msgDeactivated     = "Account has been deactivated. Contact support."
)

// authFailure is returned when the gate cannot reach the user store. Requests
// are rejected rather than let through.
func authFailure(err error) *apperrors.AppError {
	return &apperrors.AppError{
		Kind:    apperrors.KindInternal,
		Status:  http.StatusInternalServerError,
		Message: "Authentication error.",
		Err:     err,
	}
}

func recordAuthEvent(ctx context.Context, audit AuditLog, event models.AuthEvent) {
	metrics.AuthEvents.WithLabelValues(string(event.Event)).Inc()
	if err := audit.Record(ctx, event); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", string(event.Event)).Msg("failed to record auth event")
	}
}

func publishSessionEvent(ctx context.Context, pub SessionPublisher, event SessionEvent) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, event); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("type", string(event.Type)).Msg("failed to publish session event")
	}
}

func (s *SessionService) record(ctx context.Context, event models.AuthEventType, userID, email string, meta RequestMeta, detail string) {
	recordAuthEvent(ctx, s.audit, models.AuthEvent{
		CreatedAt: s.now().UTC(),
		UserID:    userID,
		Email:     email,
		Event:     event,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		Detail:    detail,
	})
}

func (s *SessionService) publish(ctx context.Context, kind SessionEventType, userID string) {
	publishSessionEvent(ctx, s.events, SessionEvent{Type: kind, UserID: userID, Timestamp: s.now().UTC()})
}

func (s *SessionService) issuePair(u *models.User) (string, string, error) {
	access, err := s.tokens.IssueAccess(u.ID.Hex(), u.Role)
	if err != nil {
		return "", "", err
	}
	refresh, err := s.tokens.IssueRefresh(u.ID.Hex())
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Register creates an account with a self-selectable role and signs it in.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.In(models.PublicRoles) {
		return nil, apperrors.Validation([]apperrors.FieldError{{Field: "role", Message: "Invalid role"}})
	}

	email := normalizeEmail(in.Email)
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, apperrors.Conflict("User with this email already exists")
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, apperrors.Internal(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, hashFailure("password", err)
	}

	now := storeTime(s.now())
	user := &models.User{
		CreatedAt:  now,
		UpdatedAt:  now,
		Name:       in.Name,
		Email:      email,
		Password:   hash,
		Role:       role,
		Department: in.Department,
		IsActive:   true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, apperrors.Conflict("User with this email already exists")
		}
		return nil, apperrors.Internal(err)
	}

	access, refresh, err := s.issuePair(user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if err := s.users.SetRefreshToken(ctx, user.ID.Hex(), refresh); err != nil {
		return nil, apperrors.Internal(err)
	}
	user.RefreshToken = &refresh

	s.record(ctx, models.EventRegister, user.ID.Hex(), email, in.Meta, "")
	return &AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// Login checks, in order: the account exists, it is not locked, it is active,
// and the password matches. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	now := s.now()

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, apperrors.Internal(err)
		}
		s.hasher.VerifyDummy(in.Password)
		s.record(ctx, models.EventLoginFailure, "", email, in.Meta, "unknown email")
		return nil, apperrors.InvalidCredentials()
	}
	id := user.ID.Hex()

	if user.IsLocked(now) {
		s.record(ctx, models.EventLoginRejectedLocked, id, email, in.Meta, "")
		return nil, apperrors.AccountLocked(RetryWindow(*user.LockUntil, now))
	}
	if !user.IsActive {
		s.record(ctx, models.EventLoginRejectedInactive, id, email, in.Meta, "")
		return nil, apperrors.AccountDeactivated()
	}

	if !s.hasher.Verify(in.Password, user.Password) {
		updated, err := s.users.RecordLoginFailure(ctx, id, now, s.policy)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		s.record(ctx, models.EventLoginFailure, id, email, in.Meta, "wrong password")
		if updated.IsLocked(now) && !user.IsLocked(now) {
			s.record(ctx, models.EventAccountLocked, id, email, in.Meta, "")
			zerolog.Ctx(ctx).Warn().Str("user_id", id).Int("attempts", updated.LoginAttempts).Msg("account locked")
		}
		// the attempt that trips the lock still reports bad credentials
		return nil, apperrors.InvalidCredentials()
	}

	access, refresh, err := s.issuePair(user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if err := s.users.RecordLoginSuccess(ctx, id, now, refresh); err != nil {
		return nil, apperrors.Internal(err)
	}
	stamp := storeTime(now)
	user.LoginAttempts = 0
	user.LockUntil = nil
	user.LastLogin = &stamp
	user.RefreshToken = &refresh

	s.record(ctx, models.EventLoginSuccess, id, email, in.Meta, "")
	s.publish(ctx, SessionSignedIn, id)
	return &AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges the stored refresh token for a new pair. The presented
// token stops working as soon as this succeeds.
func (s *SessionService) Refresh(ctx context.Context, token string, meta RequestMeta) (*AuthResult, error) {
	if token == "" {
		return nil, apperrors.Unauthorized(msgRefreshRequired)
	}
	claims, err := s.tokens.VerifyRefresh(token)
	if err != nil {
		return nil, apperrors.Unauthorized(msgRefreshInvalid)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperrors.Unauthorized(msgRefreshRevoked)
		}
		return nil, apperrors.Internal(err)
	}
	id := user.ID.Hex()
	if !user.HasRefreshToken(token) {
		s.record(ctx, models.EventRefreshRejected, id, user.Email, meta, "token not current")
		return nil, apperrors.Unauthorized(msgRefreshRevoked)
	}
	if !user.IsActive {
		s.record(ctx, models.EventRefreshRejected, id, user.Email, meta, "account inactive")
		return nil, apperrors.Unauthorized(msgDeactivated)
	}

	access, refresh, err := s.issuePair(user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if err := s.users.RotateRefreshToken(ctx, id, token, refresh); err != nil {
		if errors.Is(err, ErrRefreshTokenMismatch) || errors.Is(err, ErrUserNotFound) {
			s.record(ctx, models.EventRefreshRejected, id, user.Email, meta, "lost rotation race")
			return nil, apperrors.Unauthorized(msgRefreshRevoked)
		}
		return nil, apperrors.Internal(err)
	}
	user.RefreshToken = &refresh

	s.record(ctx, models.EventTokenRefreshed, id, user.Email, meta, "")
	s.publish(ctx, SessionRefreshed, id)
	return &AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// Logout revokes the refresh token. Calling it twice is harmless.
func (s *SessionService) Logout(ctx context.Context, userID string, meta RequestMeta) error {
	if err := s.users.ClearRefreshToken(ctx, userID); err != nil && !errors.Is(err, ErrUserNotFound) {
		return apperrors.Internal(err)
	}
	s.record(ctx, models.EventLogout, userID, "", meta, "")
	s.publish(ctx, SessionSignedOut, userID)
	return nil
}

// ChangePassword replaces the password, revokes the refresh token and makes
// every access token issued before now fail at the gate.
func (s *SessionService) ChangePassword(ctx context.Context, userID, current, next string, meta RequestMeta) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return apperrors.NotFound("User not found")
		}
		return apperrors.Internal(err)
	}
	if !s.hasher.Verify(current, user.Password) {
		s.record(ctx, models.EventPasswordChangeFailed, userID, user.Email, meta, "")
		return apperrors.IncorrectCurrentPassword()
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return hashFailure("newPassword", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash, s.now()); err != nil {
		return apperrors.Internal(err)
	}

	s.record(ctx, models.EventPasswordChanged, userID, user.Email, meta, "")
	s.publish(ctx, SessionPasswordChanged, userID)
	return nil
}

// Authenticate resolves an access token to the current user record. The
// returned user reflects the store, not the token, so role changes and
// deactivations take effect immediately.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.VerifyAccess(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.InvalidToken()
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperrors.Unauthorized("User no longer exists.")
		}
		return nil, authFailure(err)
	}
	if !user.IsActive {
		return nil, apperrors.Unauthorized(msgDeactivated)
	}
	if user.IsLocked(s.now()) {
		return nil, apperrors.Forbidden("Account temporarily locked due to too many failed login attempts.")
	}
	if user.PasswordChangedAt != nil && claims.IssuedAtTime().Before(*user.PasswordChangedAt) {
		return nil, apperrors.Unauthorized("Password recently changed. Please log in again.")
	}
	return user, nil
}

func (s *SessionService) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperrors.NotFound("User not found")
		}
		return nil, apperrors.Internal(err)
	}
	return user, nil
}

func (s *SessionService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*models.User, error) {
	user, err := s.users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperrors.NotFound("User not found")
		}
		return nil, apperrors.Internal(err)
	}
	return user, nil
}
