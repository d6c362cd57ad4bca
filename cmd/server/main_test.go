package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/authsession/internal/config"
	"github.com/Skotchmaster/authsession/internal/logging"
)

func testConfig() config.Config {
	return config.Config{
		DBDriver:        config.DriverSQLite,
		DatabaseURL:     ":memory:",
		AutoMigrate:     true,
		JWTSecret:       []byte("cmd-secret"),
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
		BcryptCost:      4,
		RefreshStore:    config.StoreSQL,
		RedisPrefix:     "test",
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
}

func TestBuildApp_SQL(t *testing.T) {
	log := logging.NewWithWriter(io.Discard, "error")
	a, err := buildApp(context.Background(), testConfig(), log)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(log) })

	body := strings.NewReader(`{"email":"cli@example.com","password":"pw"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	a.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildApp_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RefreshStore = config.StoreRedis
	cfg.RedisAddr = mr.Addr()

	log := logging.NewWithWriter(io.Discard, "error")
	a, err := buildApp(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(log) })

	body := strings.NewReader(`{"email":"redis@example.com","password":"pw"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	keys := mr.Keys()
	assert.Len(t, keys, 2)
}

func TestBuildApp_BadBcryptCost(t *testing.T) {
	cfg := testConfig()
	cfg.BcryptCost = 99

	_, err := buildApp(context.Background(), cfg, logging.NewWithWriter(io.Discard, "error"))
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, "CONFIG_INVALID", oopsErr.Code())
}

func TestMigrateCmd(t *testing.T) {
	prev := migrateFn
	t.Cleanup(func() { migrateFn = prev })

	var gotDSN string
	migrateFn = func(_ context.Context, dsn string) error {
		gotDSN = dsn
		return nil
	}

	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/auth?sslmode=disable")

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"migrate"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "postgres://u:p@localhost/auth?sslmode=disable", gotDSN)
	assert.Contains(t, out.String(), "Migrations completed successfully")

	migrateFn = func(context.Context, string) error { return errors.New("boom") }
	cmd = NewRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"migrate"})
	err := cmd.Execute()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, "MIGRATION_FAILED", oopsErr.Code())
}

func TestMigrateCmd_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cmd := NewRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"migrate"})
	require.Error(t, cmd.Execute())
}
