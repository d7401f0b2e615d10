package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/bugtracker-backend/internal/apperrors"
	"github.com/AnshRaj112/bugtracker-backend/internal/middleware"
	"github.com/AnshRaj112/bugtracker-backend/internal/models"
	"github.com/AnshRaj112/bugtracker-backend/internal/services"
	"github.com/AnshRaj112/bugtracker-backend/pkg/respond"
	"github.com/AnshRaj112/bugtracker-backend/pkg/validation"
)

const (
	settingCategories = "general notification security email project ui"
	settingDataTypes  = "string number boolean array object"
)

type CreateSettingRequest struct {
	Key         string      `json:"key" validate:"required,max=100"`
	Category    string      `json:"category" validate:"required,oneof=general notification security email project ui"`
	Value       interface{} `json:"value"`
	Label       string      `json:"label" validate:"max=200"`
	Description string      `json:"description" validate:"max=1000"`
	IsPublic    *bool       `json:"isPublic"`
	IsEditable  *bool       `json:"isEditable"`
	DataType    string      `json:"dataType" validate:"omitempty,oneof=string number boolean array object"`
}

func (r *CreateSettingRequest) Normalize() {
	r.Key = strings.TrimSpace(r.Key)
	r.Label = strings.TrimSpace(r.Label)
	r.Description = strings.TrimSpace(r.Description)
}

func (r *CreateSettingRequest) ValidationMessages() map[string]string {
	return map[string]string{
		"category.oneof": "Category must be one of: " + settingCategories,
		"dataType.oneof": "Data type must be one of: " + settingDataTypes,
	}
}

// UpdateSettingRequest carries the fields to change. Value is kept raw so an
// explicit null can be told apart from an absent field.
type UpdateSettingRequest struct {
	Category    *string         `json:"category" validate:"omitnil,oneof=general notification security email project ui"`
	Value       json.RawMessage `json:"value"`
	Label       *string         `json:"label" validate:"omitnil,max=200"`
	Description *string         `json:"description" validate:"omitnil,max=1000"`
	IsPublic    *bool           `json:"isPublic"`
	IsEditable  *bool           `json:"isEditable"`
	DataType    *string         `json:"dataType" validate:"omitnil,oneof=string number boolean array object"`
}

func (r *UpdateSettingRequest) ValidationMessages() map[string]string {
	return map[string]string{
		"category.oneof": "Category must be one of: " + settingCategories,
		"dataType.oneof": "Data type must be one of: " + settingDataTypes,
	}
}

type SettingValueRequest struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

type BulkUpdateSettingsRequest struct {
	Settings json.RawMessage `json:"settings"`
}

// SettingsHandler serves /api/settings.
type SettingsHandler struct {
	settings *services.SettingsService
}

func NewSettingsHandler(settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func viewer(r *http.Request) *models.User {
	u, ok := middleware.CurrentUser(r.Context())
	if !ok {
		return nil
	}
	return u
}

// List handles GET /api/settings. Anonymous callers and non-admins see public settings only.
func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.List(r.Context(), viewer(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, "Settings fetched", settings)
}

// Get handles GET /api/settings/{key}.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	setting, err := h.settings.Get(r.Context(), viewer(r), chi.URLParam(r, "key"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, "Setting fetched", setting)
}

// Create handles POST /api/settings.
func (h *SettingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSettingRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	if req.Value == nil {
		respond.Error(w, r, apperrors.Validation([]apperrors.FieldError{{Field: "value", Message: "value is required"}}))
		return
	}

	setting, err := h.settings.Create(r.Context(), currentUser(r), services.CreateSettingInput{
		Key:         req.Key,
		Category:    models.SettingCategory(req.Category),
		Value:       req.Value,
		Label:       req.Label,
		Description: req.Description,
		IsPublic:    req.IsPublic,
		IsEditable:  req.IsEditable,
		DataType:    req.DataType,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Success(w, http.StatusCreated, "Setting created", setting)
}

// Update handles PUT /api/settings/{key}.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	upd := services.SettingUpdate{
		Label:       req.Label,
		Description: req.Description,
		IsPublic:    req.IsPublic,
		IsEditable:  req.IsEditable,
		DataType:    req.DataType,
	}
	if req.Category != nil {
		c := models.SettingCategory(*req.Category)
		upd.Category = &c
	}
	if len(req.Value) > 0 {
		var v interface{}
		if err := json.Unmarshal(req.Value, &v); err != nil {
			respond.Error(w, r, apperrors.BadRequest("Invalid request body"))
			return
		}
		upd.Value = &v
	}

	setting, err := h.settings.Update(r.Context(), currentUser(r), chi.URLParam(r, "key"), upd)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, "Setting updated", setting)
}

// BulkUpdate handles PUT /api/settings with {"settings":[{"key":..,"value":..}]}.
func (h *SettingsHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req BulkUpdateSettingsRequest
	if err := validation.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	var items []SettingValueRequest
	if len(req.Settings) == 0 || req.Settings[0] != '[' || json.Unmarshal(req.Settings, &items) != nil {
		respond.Error(w, r, apperrors.BadRequest("Settings must be an array"))
		return
	}

	values := make([]services.SettingValue, 0, len(items))
	for _, it := range items {
		values = append(values, services.SettingValue{Key: strings.TrimSpace(it.Key), Value: it.Value})
	}
	updated, err := h.settings.BulkUpdate(r.Context(), currentUser(r), values)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, "Settings updated", updated)
}

// Delete handles DELETE /api/settings/{key}.
func (h *SettingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.settings.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, "Setting deleted", nil)
}
