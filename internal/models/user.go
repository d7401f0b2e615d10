package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleUser      Role = "user"
	RoleDeveloper Role = "developer"
	RoleTester    Role = "tester"
)

// PublicRoles may be chosen at self-registration. Admin is only granted by another admin.
var PublicRoles = []Role{RoleUser, RoleDeveloper, RoleTester}

// AllRoles may be assigned through admin user management.
var AllRoles = []Role{RoleAdmin, RoleUser, RoleDeveloper, RoleTester}

func (r Role) Valid() bool {
	for _, v := range AllRoles {
		if r == v {
			return true
		}
	}
	return false
}

// In reports whether r is one of roles.
func (r Role) In(roles []Role) bool {
	for _, v := range roles {
		if r == v {
			return true
		}
	}
	return false
}

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updatedAt"`

	Name       string  `bson:"name" json:"name"`
	Email      string  `bson:"email" json:"email"`
	Password   string  `bson:"password" json:"-"` // bcrypt hash, never returned
	Role       Role    `bson:"role" json:"role"`
	Avatar     *string `bson:"avatar" json:"avatar"`
	Department *string `bson:"department" json:"department"`

	IsActive        bool       `bson:"is_active" json:"isActive"`
	IsEmailVerified bool       `bson:"is_email_verified" json:"isEmailVerified"`
	LastLogin       *time.Time `bson:"last_login" json:"lastLogin"`

	PasswordChangedAt *time.Time `bson:"password_changed_at" json:"passwordChangedAt"`
	RefreshToken      *string    `bson:"refresh_token" json:"-"`
	LoginAttempts     int        `bson:"login_attempts" json:"loginAttempts"`
	LockUntil         *time.Time `bson:"lock_until" json:"lockUntil"`
}

// IsLocked reports whether a lock is in force at now. A lock ending exactly at now has expired.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// HasRefreshToken reports whether token is the single refresh token currently bound to u.
func (u *User) HasRefreshToken(token string) bool {
	return token != "" && u.RefreshToken != nil && *u.RefreshToken == token
}

// UserProfile is the redacted projection returned alongside issued tokens.
type UserProfile struct {
	ID              primitive.ObjectID `json:"_id"`
	Name            string             `json:"name"`
	Email           string             `json:"email"`
	Role            Role               `json:"role"`
	Avatar          *string            `json:"avatar"`
	Department      *string            `json:"department"`
	IsEmailVerified bool               `json:"isEmailVerified"`
}

func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Role:            u.Role,
		Avatar:          u.Avatar,
		Department:      u.Department,
		IsEmailVerified: u.IsEmailVerified,
	}
}
