package services

import (
	"context"
	"errors"
	"time"

	"github.com/AnshRaj112/bugtracker-backend/internal/apperrors"
	"github.com/AnshRaj112/bugtracker-backend/internal/models"
)

type CreateUserInput struct {
	Name       string
	Email      string
	Password   string
	Role       models.Role
	Department *string
}

// UserService is admin user management. Every method takes the acting admin
// so self-protection rules can be enforced.
type UserService struct {
	users  UserStore
	hasher PasswordHasher
	audit  AuditLog
	events SessionPublisher
	now    func() time.Time
}

func NewUserService(users UserStore, hasher PasswordHasher, audit AuditLog, events SessionPublisher) *UserService {
	if audit == nil {
		audit = NopAudit{}
	}
	return &UserService{users: users, hasher: hasher, audit: audit, events: events, now: time.Now}
}

func userNotFound(err error) error {
	if errors.Is(err, ErrUserNotFound) {
		return apperrors.NotFound("User not found")
	}
	return apperrors.Internal(err)
}

func (s *UserService) recordAdmin(ctx context.Context, event models.AuthEventType, target *models.User, actor *models.User) {
	recordAuthEvent(ctx, s.audit, models.AuthEvent{
		CreatedAt: s.now().UTC(),
		UserID:    target.ID.Hex(),
		Email:     target.Email,
		Event:     event,
		Detail:    "by " + actor.ID.Hex(),
	})
}

func (s *UserService) notify(ctx context.Context, kind SessionEventType, userID string) {
	publishSessionEvent(ctx, s.events, SessionEvent{Type: kind, UserID: userID, Timestamp: s.now().UTC()})
}

func (s *UserService) List(ctx context.Context, q UserQuery) ([]models.User, int64, UserQuery, error) {
	q = q.normalized()
	users, total, err := s.users.List(ctx, q)
	if err != nil {
		return nil, 0, q, apperrors.Internal(err)
	}
	return users, total, q, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, userNotFound(err)
	}
	return user, nil
}

// Create adds an account with any role, including admin.
func (s *UserService) Create(ctx context.Context, actor *models.User, in CreateUserInput) (*models.User, error) {
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return nil, apperrors.Validation([]apperrors.FieldError{{Field: "role", Message: "Invalid role"}})
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
		Email:      normalizeEmail(in.Email),
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
	s.recordAdmin(ctx, models.EventUserCreated, user, actor)
	return user, nil
}

// EnsureAdmin creates the first admin account when no active admin exists.
// It reports whether an account was created and is safe to call on every start.
func (s *UserService) EnsureAdmin(ctx context.Context, in CreateUserInput) (bool, error) {
	active := true
	_, total, err := s.users.List(ctx, UserQuery{Role: models.RoleAdmin, IsActive: &active, Limit: 1}.normalized())
	if err != nil {
		return false, apperrors.Internal(err)
	}
	if total > 0 {
		return false, nil
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return false, hashFailure("password", err)
	}
	now := storeTime(s.now())
	user := &models.User{
		CreatedAt:  now,
		UpdatedAt:  now,
		Name:       in.Name,
		Email:      normalizeEmail(in.Email),
		Password:   hash,
		Role:       models.RoleAdmin,
		Department: in.Department,
		IsActive:   true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return false, apperrors.Conflict("User with this email already exists")
		}
		return false, apperrors.Internal(err)
	}
	recordAuthEvent(ctx, s.audit, models.AuthEvent{
		CreatedAt: s.now().UTC(),
		UserID:    user.ID.Hex(),
		Email:     user.Email,
		Event:     models.EventUserCreated,
		Detail:    "bootstrap",
	})
	return true, nil
}

// Update applies an admin edit. Admins may not demote or deactivate themselves.
func (s *UserService) Update(ctx context.Context, actor *models.User, id string, upd AdminUserUpdate) (*models.User, error) {
	self := actor.ID.Hex() == id
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return nil, apperrors.Validation([]apperrors.FieldError{{Field: "role", Message: "Invalid role"}})
		}
		if self && *upd.Role != actor.Role {
			return nil, apperrors.BadRequest("Admins cannot change their own role")
		}
	}
	if self && upd.IsActive != nil && !*upd.IsActive {
		return nil, apperrors.BadRequest("Cannot modify your own status")
	}

	user, err := s.users.UpdateByAdmin(ctx, id, upd)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, apperrors.Conflict("User with this email already exists")
		}
		return nil, userNotFound(err)
	}
	if upd.IsActive != nil && !*upd.IsActive {
		s.recordAdmin(ctx, models.EventUserDeactivated, user, actor)
		s.notify(ctx, SessionDeactivated, id)
	}
	return user, nil
}

// Deactivate is the soft delete behind DELETE /users/{id}.
func (s *UserService) Deactivate(ctx context.Context, actor *models.User, id string) error {
	if actor.ID.Hex() == id {
		return apperrors.BadRequest("Cannot delete your own account")
	}
	user, err := s.users.SetActive(ctx, id, false)
	if err != nil {
		return userNotFound(err)
	}
	s.recordAdmin(ctx, models.EventUserDeactivated, user, actor)
	s.notify(ctx, SessionDeactivated, id)
	return nil
}

// ToggleStatus flips is_active and returns the new value.
func (s *UserService) ToggleStatus(ctx context.Context, actor *models.User, id string) (bool, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return false, userNotFound(err)
	}
	if actor.ID.Hex() == id {
		return false, apperrors.BadRequest("Cannot modify your own status")
	}

	user, err = s.users.SetActive(ctx, id, !user.IsActive)
	if err != nil {
		return false, userNotFound(err)
	}
	if user.IsActive {
		s.recordAdmin(ctx, models.EventUserActivated, user, actor)
	} else {
		s.recordAdmin(ctx, models.EventUserDeactivated, user, actor)
		s.notify(ctx, SessionDeactivated, id)
	}
	return user.IsActive, nil
}

// AuthEvents lists the audit trail of one account.
func (s *UserService) AuthEvents(ctx context.Context, id string, limit int) ([]models.AuthEvent, error) {
	if _, err := s.users.FindByID(ctx, id); err != nil {
		return nil, userNotFound(err)
	}
	events, err := s.audit.ListByUser(ctx, id, limit)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return events, nil
}
