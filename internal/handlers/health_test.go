package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth_Live(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHealthHandler(nil).Live(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestHealth_Ready(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	readStatus := func(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
		t.Helper()
		var body struct {
			Data map[string]string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		return body.Data
	}

	rr := httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"mongodb": up, "redis": up}).
		Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]string{"mongodb": "up", "redis": "up"}, readStatus(t, rr))

	rr = httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"mongodb": up, "postgres": down}).
		Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, map[string]string{"mongodb": "up", "postgres": "down"}, readStatus(t, rr))
}
