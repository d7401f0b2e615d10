package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/bugtracker-backend/internal/apperrors"
)

type signup struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,maxbytes=72,strongpassword"`
	Role     string `json:"role" validate:"omitempty,oneof=user developer tester"`
}

func (s *signup) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
}

func (s *signup) ValidationMessages() map[string]string {
	return map[string]string{
		"name.min": "Name must be between 2 and 50 characters",
	}
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)
	appErr := apperrors.As(err)
	require.Equal(t, apperrors.KindValidation, appErr.Kind)
	out := map[string]string{}
	for _, f := range appErr.Fields {
		out[f.Field] = f.Message
	}
	return out
}

func TestValidate_OK(t *testing.T) {
	s := &signup{Name: "  Ada  ", Email: " Ada@Example.COM ", Password: "Secret123"}
	require.NoError(t, Validate(s))
	assert.Equal(t, "Ada", s.Name)
	assert.Equal(t, "ada@example.com", s.Email)
}

func TestValidate_FieldMessages(t *testing.T) {
	fields := fieldsOf(t, Validate(&signup{Name: "A", Email: "nope", Password: "alllowercase1", Role: "admin"}))

	assert.Equal(t, "Name must be between 2 and 50 characters", fields["name"])
	assert.Equal(t, "Please provide a valid email", fields["email"])
	assert.Contains(t, fields["password"], "uppercase")
	assert.Equal(t, "Invalid role", fields["role"])
}

func TestValidate_PasswordTooShort(t *testing.T) {
	fields := fieldsOf(t, Validate(&signup{Name: "Ada", Email: "a@b.co", Password: "Ab1"}))
	assert.Equal(t, "password must be at least 8 characters", fields["password"])
}

func TestValidate_PasswordByteLimit(t *testing.T) {
	// 43 runes but 83 bytes.
	multiByte := "Aa1" + strings.Repeat("é", 40)
	fields := fieldsOf(t, Validate(&signup{Name: "Ada", Email: "a@b.co", Password: multiByte}))
	assert.Equal(t, "password must be at most 72 bytes", fields["password"])

	require.NoError(t, Validate(&signup{Name: "Ada", Email: "a@b.co", Password: "Aa1" + strings.Repeat("x", 69)}))
}

func TestDecodeAndValidate_BadJSON(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader("{not json"))

	err := DecodeAndValidate(r, &signup{})

	appErr := apperrors.As(err)
	assert.Equal(t, apperrors.KindBadRequest, appErr.Kind)
}

func TestDecodeAndValidate_EmptyBodyReportsRequiredFields(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(""))

	fields := fieldsOf(t, DecodeAndValidate(r, &signup{}))
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}
