package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/AnshRaj112/bugtracker-backend/internal/auth"
	"github.com/AnshRaj112/bugtracker-backend/internal/handlers"
	"github.com/AnshRaj112/bugtracker-backend/internal/middleware"
	"github.com/AnshRaj112/bugtracker-backend/internal/services"
	"github.com/AnshRaj112/bugtracker-backend/pkg/utils"
)

const frontend = "http://localhost:3000"

func testDeps(t *testing.T) Deps {
	t.Helper()
	store := services.NewMemoryUserStore()
	hasher := utils.NewPasswordHasher(bcrypt.MinCost)
	events := services.NewSessionEventBus(nil)
	tokens := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  "routes-test-access",
		RefreshSecret: "routes-test-refresh",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
	})
	return Deps{
		Sessions: services.NewSessionService(services.SessionDeps{
			Users: store, Hasher: hasher, Tokens: tokens, Events: events,
		}),
		Users:          services.NewUserService(store, hasher, nil, events),
		Settings:       services.NewSettingsService(services.NewMemorySettingsStore(), nil, time.Minute),
		Events:         events,
		Cookies:        handlers.NewCookiePolicy(false, time.Hour, 24*time.Hour),
		AllowedOrigins: []string{frontend},
		Logger:         zerolog.Nop(),
	}
}

func send(h http.Handler, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		r.Header[k] = v
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

func TestRouter_RegisterThenMe(t *testing.T) {
	router := NewRouter(testDeps(t))

	rr := send(router, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "Passw0rd!",
	}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	var body struct {
		Data handlers.TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	rr = send(router, http.MethodGet, "/api/auth/me", nil, http.Header{"Authorization": {"Bearer " + body.Data.AccessToken}})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = send(router, http.MethodGet, "/api/users", nil, http.Header{"Authorization": {"Bearer " + body.Data.AccessToken}})
	assert.Equal(t, http.StatusForbidden, rr.Code, "registered accounts are never admins")

	rr = send(router, http.MethodGet, "/api/settings", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code, "settings are readable anonymously")
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	router := NewRouter(testDeps(t))

	rr := send(router, http.MethodGet, "/api/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), `"success":false`)
	assert.Contains(t, rr.Body.String(), "Route not found")

	rr = send(router, http.MethodGet, "/api/auth/login", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := NewRouter(testDeps(t))

	rr := send(router, http.MethodOptions, "/api/auth/login", nil, http.Header{
		"Origin":                        {frontend},
		"Access-Control-Request-Method": {http.MethodPost},
	})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, frontend, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	rr = send(router, http.MethodGet, "/api/settings", nil, http.Header{"Origin": {"https://evil.example.com"}})
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_HealthAndMetricsSkipLimiters(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	deps := testDeps(t)
	deps.RateLimiter = middleware.NewRedisRateLimiter(client, 2, time.Minute)
	router := NewRouter(deps)

	for i := 0; i < 2; i++ {
		rr := send(router, http.MethodGet, "/api/settings", nil, nil)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := send(router, http.MethodGet, "/api/settings", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	for i := 0; i < 3; i++ {
		rr = send(router, http.MethodGet, "/health", nil, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	}
	rr = send(router, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "bugtracker_http_requests_total"))
}

func TestRouter_SecurityChainThrottlesAuthRoutes(t *testing.T) {
	deps := testDeps(t)
	deps.Security = middleware.NewSecurity("")
	router := NewRouter(deps)

	creds := map[string]string{"email": "nobody@example.com", "password": "Passw0rd!"}
	for i := 0; i < 5; i++ {
		rr := send(router, http.MethodPost, "/api/auth/login", creds, nil)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	}
	rr := send(router, http.MethodPost, "/api/auth/login", creds, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "Too many authentication attempts")

	rr = send(router, http.MethodGet, "/api/settings", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code, "other routes keep their own budget")
}

func TestRouter_TrustProxy(t *testing.T) {
	deps := testDeps(t)
	deps.TrustProxy = true
	deps.Security = middleware.NewSecurity("")
	router := NewRouter(deps)

	creds := map[string]string{"email": "nobody@example.com", "password": "Passw0rd!"}
	for i := 0; i < 6; i++ {
		header := http.Header{"X-Forwarded-For": {"203.0.113." + string(rune('1'+i))}}
		rr := send(router, http.MethodPost, "/api/auth/login", creds, header)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "each forwarded client has its own bucket")
	}
}

func TestRouter_BootstrappedAdminReachesUserRoutes(t *testing.T) {
	deps := testDeps(t)
	created, err := deps.Users.EnsureAdmin(context.Background(), services.CreateUserInput{
		Name: "System Admin", Email: "admin@bugtracker.com", Password: "Admin@1234",
	})
	require.NoError(t, err)
	require.True(t, created)
	router := NewRouter(deps)

	rr := send(router, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "admin@bugtracker.com", "password": "Admin@1234",
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body struct {
		Data handlers.TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	bearer := http.Header{"Authorization": {"Bearer " + body.Data.AccessToken}}
	rr = send(router, http.MethodGet, "/api/users", nil, bearer)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = send(router, http.MethodPost, "/api/settings", map[string]any{"key": "site_name", "category": "general", "value": "Tracker"}, bearer)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}
