package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/bugtracker-backend/internal/apperrors"
	"github.com/AnshRaj112/bugtracker-backend/internal/models"
)

var (
	settingsAllKey    = CacheKey("settings", "all")
	settingsPublicKey = CacheKey("settings", "public")
)

type CreateSettingInput struct {
	Key         string
	Category    models.SettingCategory
	Value       interface{}
	Label       string
	Description string
	IsPublic    *bool
	IsEditable  *bool
	DataType    string
}

type SettingValue struct {
	Key   string
	Value interface{}
}

// SettingsService manages system settings. Listings are cached; every write
// drops the cached listings.
type SettingsService struct {
	store SettingsStore
	cache *CacheService
	ttl   time.Duration
	now   func() time.Time
}

func NewSettingsService(store SettingsStore, cache *CacheService, ttl time.Duration) *SettingsService {
	return &SettingsService{store: store, cache: cache, ttl: ttl, now: time.Now}
}

func isAdmin(u *models.User) bool {
	return u != nil && u.Role == models.RoleAdmin
}

func (s *SettingsService) invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, settingsAllKey, settingsPublicKey); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to invalidate settings cache")
	}
}

// List returns every setting to admins and only public ones to anyone else,
// including anonymous callers.
func (s *SettingsService) List(ctx context.Context, viewer *models.User) ([]models.Setting, error) {
	publicOnly := !isAdmin(viewer)
	key := settingsAllKey
	if publicOnly {
		key = settingsPublicKey
	}

	var cached []models.Setting
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("settings cache read failed")
	} else if hit {
		return cached, nil
	}

	settings, err := s.store.List(ctx, publicOnly)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if err := s.cache.Set(ctx, key, settings, s.ttl); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("settings cache write failed")
	}
	return settings, nil
}

func (s *SettingsService) Get(ctx context.Context, viewer *models.User, key string) (*models.Setting, error) {
	setting, err := s.store.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSettingNotFound) {
			return nil, apperrors.NotFound("Setting not found")
		}
		return nil, apperrors.Internal(err)
	}
	if !setting.IsPublic && !isAdmin(viewer) {
		return nil, apperrors.Forbidden("Access denied")
	}
	return setting, nil
}

func (s *SettingsService) Create(ctx context.Context, actor *models.User, in CreateSettingInput) (*models.Setting, error) {
	now := storeTime(s.now())
	setting := &models.Setting{
		CreatedAt:   now,
		UpdatedAt:   now,
		Key:         in.Key,
		Category:    in.Category,
		Value:       in.Value,
		Label:       in.Label,
		Description: in.Description,
		IsEditable:  true,
		DataType:    in.DataType,
		UpdatedBy:   &actor.ID,
	}
	if in.IsPublic != nil {
		setting.IsPublic = *in.IsPublic
	}
	if in.IsEditable != nil {
		setting.IsEditable = *in.IsEditable
	}
	if setting.DataType == "" {
		setting.DataType = "string"
	}

	if err := s.store.Create(ctx, setting); err != nil {
		if errors.Is(err, ErrSettingKeyTaken) {
			return nil, apperrors.Conflict("Setting with this key already exists")
		}
		return nil, apperrors.Internal(err)
	}
	s.invalidate(ctx)
	return setting, nil
}

func (s *SettingsService) Update(ctx context.Context, actor *models.User, key string, upd SettingUpdate) (*models.Setting, error) {
	current, err := s.store.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSettingNotFound) {
			return nil, apperrors.NotFound("Setting not found")
		}
		return nil, apperrors.Internal(err)
	}
	if !current.IsEditable {
		return nil, apperrors.BadRequest("This setting cannot be modified")
	}

	updated, err := s.store.Update(ctx, key, upd, actor.ID)
	if err != nil {
		if errors.Is(err, ErrSettingNotFound) {
			return nil, apperrors.NotFound("Setting not found")
		}
		return nil, apperrors.Internal(err)
	}
	s.invalidate(ctx)
	return updated, nil
}

// BulkUpdate sets values on editable settings and returns those it changed.
// Unknown and read-only keys are skipped silently.
func (s *SettingsService) BulkUpdate(ctx context.Context, actor *models.User, values []SettingValue) ([]models.Setting, error) {
	out := []models.Setting{}
	for _, v := range values {
		setting, err := s.store.SetValueIfEditable(ctx, v.Key, v.Value, actor.ID)
		if errors.Is(err, ErrSettingNotFound) {
			continue
		}
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		out = append(out, *setting)
	}
	if len(out) > 0 {
		s.invalidate(ctx)
	}
	return out, nil
}

func (s *SettingsService) Delete(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		if errors.Is(err, ErrSettingNotFound) {
			return apperrors.NotFound("Setting not found")
		}
		return apperrors.Internal(err)
	}
	s.invalidate(ctx)
	return nil
}
