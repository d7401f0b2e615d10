package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SettingCategory string

const (
	CategoryGeneral      SettingCategory = "general"
	CategoryNotification SettingCategory = "notification"
	CategorySecurity     SettingCategory = "security"
	CategoryEmail        SettingCategory = "email"
	CategoryProject      SettingCategory = "project"
	CategoryUI           SettingCategory = "ui"
)

// Setting is a system-wide key/value entry managed by admins.
type Setting struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updatedAt"`

	Key         string          `bson:"key" json:"key"`
	Category    SettingCategory `bson:"category" json:"category"`
	Value       interface{}     `bson:"value" json:"value"`
	Label       string          `bson:"label,omitempty" json:"label,omitempty"`
	Description string          `bson:"description,omitempty" json:"description,omitempty"`
	IsPublic    bool            `bson:"is_public" json:"isPublic"`
	IsEditable  bool            `bson:"is_editable" json:"isEditable"`
	DataType    string          `bson:"data_type" json:"dataType"`

	UpdatedBy *primitive.ObjectID `bson:"updated_by,omitempty" json:"updatedBy,omitempty"`
}
