package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/covecrm/covecrm/internal/app"
)

func TestBootstrapRuntime(t *testing.T) {
	cfg := &app.Config{
		Server: app.ServerConfig{
			Port:    0,
			BaseURL: "http://localhost:8000",
		},
		Database: app.DatabaseConfig{
			Driver: "sqlite",
			DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "bootstrap-test-secret",
				Issuer: "covecrm-test",
				TTL:    15 * time.Minute,
			},
		},
		TwoFactor: app.TwoFactorConfig{
			Issuer:     "CoveCRM",
			LinkSecret: "bootstrap-link-secret",
			LinkTTL:    time.Hour,
		},
		Reports: app.ReportConfig{
			DailySchedule:      "0 7 * * *",
			AuditRetentionDays: 90,
		},
	}

	stack, err := bootstrapRuntime(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(zap.NewNop()) })

	require.NotNil(t, stack.Router)
	require.NotNil(t, stack.SessionSvc)
	require.NotNil(t, stack.RateStore)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	stack.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig("/definitely/not/here")
	require.Error(t, err)
}
