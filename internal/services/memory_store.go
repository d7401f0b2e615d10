package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/AnshRaj112/bugtracker-backend/internal/models"
)

// MemoryUserStore keeps users in process. It serializes every operation so
// each one is atomic, matching the single-document guarantees of MongoUserStore.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
	now   func() time.Time
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[primitive.ObjectID]*models.User), now: time.Now}
}

func cloneUser(u *models.User) *models.User {
	c := *u
	return &c
}

func (s *MemoryUserStore) get(id string) (*models.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	u, ok := s.users[oid]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryUserStore) emailTaken(email string, except primitive.ObjectID) bool {
	for id, u := range s.users {
		if id != except && u.Email == email {
			return true
		}
	}
	return false
}

func (s *MemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Email = normalizeEmail(user.Email)
	if s.emailTaken(user.Email, primitive.NilObjectID) {
		return ErrEmailTaken
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *MemoryUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return cloneUser(u), nil
}

func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = normalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryUserStore) RecordLoginFailure(_ context.Context, id string, now time.Time, policy LockoutPolicy) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.get(id)
	if err != nil {
		return nil, err
	}
	applyLoginFailure(u, now, policy)
	return cloneUser(u), nil
}

func (s *MemoryUserStore) RecordLoginSuccess(_ context.Context, id string, now time.Time, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.get(id)
	if err != nil {
		return err
	}
	now = storeTime(now)
	u.LoginAttempts = 0
	u.LockUntil = nil
	u.LastLogin = &now
	u.RefreshToken = &refreshToken
	u.UpdatedAt = now
	return nil
}

func (s *MemoryUserStore) SetRefreshToken(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.get(id)
	if err != nil {
		return err
	}
	u.RefreshToken = &token
	return nil
}

func (s *MemoryUserStore) ClearRefreshToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.get(id)
	if err != nil {
		return err
	}
	u.RefreshToken = nil
	return nil
}

func (s *MemoryUserStore) RotateRefreshToken(_ context.Context, id, presented, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.get(id)
	if err != nil {
		return err
	}
	if !u.HasRefreshToken(presented) {
		return ErrRefreshTokenMismatch
	}
	u.RefreshToken = &next
	return nil
}

func (s *MemoryUserStore) UpdatePassword(_ context.Context, id, hash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.get(id)
	if err != nil {
		return err
	}
	changedAt = storeTime(changedAt)
	u.Password = hash
	u.PasswordChangedAt = &changedAt
	u.RefreshToken = nil
	u.UpdatedAt = changedAt
	return nil
}

func (s *MemoryUserStore) UpdateProfile(_ context.Context, id string, upd ProfileUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Department != nil {
		d := *upd.Department
		u.Department = &d
	}
	if upd.Avatar != nil {
		a := *upd.Avatar
		u.Avatar = &a
	}
	u.UpdatedAt = storeTime(s.now())
	return cloneUser(u), nil
}

func matchesQuery(u *models.User, q UserQuery) bool {
	if q.Role != "" && u.Role != q.Role {
		return false
	}
	if q.IsActive != nil && u.IsActive != *q.IsActive {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		dept := ""
		if u.Department != nil {
			dept = *u.Department
		}
		if !strings.Contains(strings.ToLower(u.Name), needle) &&
			!strings.Contains(strings.ToLower(u.Email), needle) &&
			!strings.Contains(strings.ToLower(dept), needle) {
			return false
		}
	}
	return true
}

func lessBy(field string, a, b *models.User) bool {
	switch field {
	case "name":
		return a.Name < b.Name
	case "email":
		return a.Email < b.Email
	case "role":
		return a.Role < b.Role
	case "updatedAt":
		return a.UpdatedAt.Before(b.UpdatedAt)
	case "lastLogin":
		at, bt := time.Time{}, time.Time{}
		if a.LastLogin != nil {
			at = *a.LastLogin
		}
		if b.LastLogin != nil {
			bt = *b.LastLogin
		}
		return at.Before(bt)
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

func (s *MemoryUserStore) List(_ context.Context, q UserQuery) ([]models.User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q = q.normalized()
	var matched []*models.User
	for _, u := range s.users {
		if matchesQuery(u, q) {
			matched = append(matched, u)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if lessBy(q.SortBy, a, b) == lessBy(q.SortBy, b, a) {
			// tie: fall back to id so pages are stable
			if q.Order == "asc" {
				return a.ID.Hex() < b.ID.Hex()
			}
			return a.ID.Hex() > b.ID.Hex()
		}
		if q.Order == "asc" {
			return lessBy(q.SortBy, a, b)
		}
		return lessBy(q.SortBy, b, a)
	})

	total := int64(len(matched))
	start := (q.Page - 1) * q.Limit
	out := []models.User{}
	for i := start; i < len(matched) && i < start+q.Limit; i++ {
		out = append(out, *cloneUser(matched[i]))
	}
	return out, total, nil
}

func (s *MemoryUserStore) UpdateByAdmin(_ context.Context, id string, upd AdminUserUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if s.emailTaken(email, u.ID) {
			return nil, ErrEmailTaken
		}
		u.Email = email
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Department != nil {
		d := *upd.Department
		u.Department = &d
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
		if !u.IsActive {
			u.RefreshToken = nil
		}
	}
	u.UpdatedAt = storeTime(s.now())
	return cloneUser(u), nil
}

func (s *MemoryUserStore) SetActive(_ context.Context, id string, active bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.get(id)
	if err != nil {
		return nil, err
	}
	u.IsActive = active
	if !active {
		u.RefreshToken = nil
	}
	u.UpdatedAt = storeTime(s.now())
	return cloneUser(u), nil
}
