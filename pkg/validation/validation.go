package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/AnshRaj112/bugtracker-backend/internal/apperrors"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

var validate = newValidator()

// Normalizer is implemented by request types that trim or lower-case their
// fields before validation.
type Normalizer interface {
	Normalize()
}

// Messager lets a request type override the message for a field/tag pair.
// Keys have the form "field.tag" using the JSON field name.
type Messager interface {
	ValidationMessages() map[string]string
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("strongpassword", strongPassword)
	_ = v.RegisterValidation("maxbytes", maxBytes)
	return v
}

// maxBytes caps the encoded length of a string. max counts runes, which lets
// multi-byte input past bcrypt's 72 byte limit.
func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

// strongPassword requires at least one lowercase letter, one uppercase letter and one digit.
func strongPassword(fl validator.FieldLevel) bool {
	var lower, upper, digit bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && upper && digit
}

// Validate normalizes s when it supports it and runs its struct tags.
// Failures come back as a Validation AppError listing every failed field.
func Validate(s any) error {
	if n, ok := s.(Normalizer); ok {
		n.Normalize()
	}
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	var overrides map[string]string
	if m, ok := s.(Messager); ok {
		overrides = m.ValidationMessages()
	}

	fields := make([]apperrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := overrides[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = msgForTag(fe)
		}
		fields = append(fields, apperrors.FieldError{Field: fe.Field(), Message: msg})
	}
	return apperrors.Validation(fields)
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "Please provide a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "maxbytes":
		return fmt.Sprintf("%s must be at most %s bytes", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("Invalid %s", fe.Field())
	case "strongpassword":
		return "Password must contain at least one uppercase letter, one lowercase letter, and one number"
	case "url":
		return fmt.Sprintf("%s must be a valid URL", fe.Field())
	case "mongodb":
		return fmt.Sprintf("Invalid %s", fe.Field())
	default:
		return fmt.Sprintf("%s failed on '%s' validation", fe.Field(), fe.Tag())
	}
}

// DecodeAndValidate reads a JSON body into dst and validates it.
// An unreadable body is a BadRequest; an empty body decodes as {}.
func DecodeAndValidate(r *http.Request, dst any) error {
	if err := Decode(r, dst); err != nil {
		return err
	}
	return Validate(dst)
}

func Decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.BadRequest("Invalid request body")
	}
	return nil
}
