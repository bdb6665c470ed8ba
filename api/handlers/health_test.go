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
	"go.uber.org/zap"
)

func okPing(context.Context) error { return nil }

func TestHealthHandler_HandleHealth(t *testing.T) {
	handler := NewHealthHandler("1.2.3", zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthHandler_HandleReady(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		handler := NewHealthHandler("", zap.NewNop())
		w := httptest.NewRecorder()
		handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("all pass", func(t *testing.T) {
		handler := NewHealthHandler("", zap.NewNop())
		handler.RegisterCheck(NewPingCheck("backend", okPing))
		handler.RegisterCheck(NewPingCheck("threads", okPing))

		w := httptest.NewRecorder()
		handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var status HealthStatus
		require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
		assert.Equal(t, "healthy", status.Status)
		require.Len(t, status.Checks, 2)
		assert.Equal(t, "pass", status.Checks["backend"].Status)
		assert.NotEmpty(t, status.Checks["threads"].Latency)
	})

	t.Run("one failing", func(t *testing.T) {
		handler := NewHealthHandler("", zap.NewNop())
		handler.RegisterCheck(NewPingCheck("backend", func(context.Context) error {
			return errors.New("connection refused")
		}))
		handler.RegisterCheck(NewPingCheck("threads", okPing))

		w := httptest.NewRecorder()
		handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var status HealthStatus
		require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
		assert.Equal(t, "unhealthy", status.Status)
		assert.Equal(t, "fail", status.Checks["backend"].Status)
		assert.Equal(t, "connection refused", status.Checks["backend"].Message)
		assert.Equal(t, "pass", status.Checks["threads"].Status)
	})

	t.Run("check sees deadline", func(t *testing.T) {
		handler := NewHealthHandler("", zap.NewNop())
		handler.RegisterCheck(NewPingCheck("slow", func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			if !ok {
				return errors.New("no deadline")
			}
			return nil
		}))

		w := httptest.NewRecorder()
		handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	handler := NewHealthHandler("0.3.0", zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleVersion("2026-01-01", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "0.3.0", resp.Data["version"])
	assert.Equal(t, "abc123", resp.Data["git_commit"])
}

func TestPingCheck(t *testing.T) {
	check := NewPingCheck("redis", func(context.Context) error { return errors.New("down") })
	assert.Equal(t, "redis", check.Name())
	assert.EqualError(t, check.Check(context.Background()), "down")
}
