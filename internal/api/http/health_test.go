package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("refused") }

	tests := []struct {
		name       string
		db, redis  Pinger
		wantStatus string
		wantDB     string
		wantRedis  string
	}{
		{name: "all up", db: up, redis: up, wantStatus: "healthy", wantDB: "up", wantRedis: "up"},
		{name: "redis down", db: up, redis: down, wantStatus: "degraded", wantDB: "up", wantRedis: "down"},
		{name: "nothing configured", wantStatus: "healthy", wantDB: "disabled", wantRedis: "disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			NewHealthHandler("explorable-api", "test", tt.db, tt.redis).RegisterRoutes(r)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			require.Equal(t, http.StatusOK, w.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantDB, resp.DB)
			assert.Equal(t, tt.wantRedis, resp.Redis)
			assert.Equal(t, "explorable-api", resp.Service)
		})
	}
}
