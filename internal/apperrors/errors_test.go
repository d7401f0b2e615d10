package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAs_PassesThroughWrappedAppError(t *testing.T) {
	orig := Conflict("User with this email already exists")
	wrapped := fmt.Errorf("register: %w", orig)

	got := As(wrapped)

	assert.Same(t, orig, got)
	assert.Equal(t, http.StatusConflict, got.Status)
}

func TestAs_UnknownErrorBecomesInternal(t *testing.T) {
	cause := errors.New("connection reset by peer")

	got := As(cause)

	assert.Equal(t, KindInternal, got.Kind)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.Equal(t, "Internal server error", got.Message)
	assert.ErrorIs(t, got, cause)
}

func TestInvalidCredentials_SameShapeEveryTime(t *testing.T) {
	a, b := InvalidCredentials(), InvalidCredentials()

	assert.Equal(t, a.Status, b.Status)
	assert.Equal(t, a.Message, b.Message)
	assert.Equal(t, http.StatusUnauthorized, a.Status)
}

func TestAccountLocked_IncludesRetryWindow(t *testing.T) {
	err := AccountLocked("2 hours")

	assert.Equal(t, http.StatusForbidden, err.Status)
	assert.Contains(t, err.Message, "Try again in 2 hours.")
}

func TestIsKind(t *testing.T) {
	assert.True(t, IsKind(fmt.Errorf("x: %w", TokenExpired()), KindTokenExpired))
	assert.False(t, IsKind(InvalidToken(), KindTokenExpired))
	assert.False(t, IsKind(errors.New("plain"), KindTokenExpired))
}

func TestError_IncludesCause(t *testing.T) {
	err := Internal(errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR: Internal server error: boom", err.Error())
	assert.Equal(t, "NOT_FOUND: User not found", NotFound("User not found").Error())
}
