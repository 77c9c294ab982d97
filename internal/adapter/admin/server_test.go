package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retrycache/internal/profile"
	"retrycache/internal/settings"
	"retrycache/internal/snapshot"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeSnapshots struct {
	forced  []bool
	buster  int
	snapErr error
}

func (f *fakeSnapshots) Snapshot(_ context.Context, force bool) (snapshot.Snapshot, error) {
	f.forced = append(f.forced, force)
	if f.snapErr != nil {
		return snapshot.Snapshot{}, f.snapErr
	}
	return snapshot.Snapshot{
		GeneratedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		LastHeartbeat: snapshot.NoHeartbeat,
		Version:       snapshot.Version,
	}, nil
}

func (f *fakeSnapshots) Prime(context.Context) (int, error) {
	f.buster++
	return f.buster, nil
}

type staticProfiles struct{ cfg settings.Settings }

func (p staticProfiles) Profiles(context.Context) map[string]profile.Profile { return profile.Build(p.cfg) }
func (p staticProfiles) Settings(context.Context) settings.Settings         { return p.cfg }

func newTestServer(snaps *fakeSnapshots, checks map[string]Check) *Server {
	cfg := settings.Defaults()
	cfg.AutoBotMode = settings.AutoBotSafe
	return NewServer(":0", Deps{
		Snapshots: snaps,
		Profiles:  staticProfiles{cfg: cfg},
		Checks:    checks,
	})
}

func do(t *testing.T, s *Server, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	t.Run("healthy", func(t *testing.T) {
		rec, body := do(t, newTestServer(&fakeSnapshots{}, map[string]Check{"store": ok}), http.MethodGet, "/healthz")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, StatusHealthy, body["status"])
	})

	t.Run("critical", func(t *testing.T) {
		rec, body := do(t, newTestServer(&fakeSnapshots{}, map[string]Check{"store": ok, "redis": down}), http.MethodGet, "/healthz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, StatusCritical, body["status"])
		checks := body["checks"].(map[string]any)
		assert.Equal(t, "ok", checks["store"])
		assert.Equal(t, "connection refused", checks["redis"])
	})
}

func TestSnapshot(t *testing.T) {
	snaps := &fakeSnapshots{}
	s := newTestServer(snaps, nil)

	rec, body := do(t, s, http.MethodGet, "/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, snapshot.Version, body["version"])
	assert.Equal(t, snapshot.NoHeartbeat, body["last_heartbeat"])

	do(t, s, http.MethodGet, "/snapshot?force=1")
	do(t, s, http.MethodGet, "/snapshot?force=nonsense")
	assert.Equal(t, []bool{false, true, false}, snaps.forced)
}

func TestSnapshot_Error(t *testing.T) {
	s := newTestServer(&fakeSnapshots{snapErr: errors.New("stats unavailable")}, nil)

	rec, body := do(t, s, http.MethodGet, "/snapshot")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "stats unavailable", body["error"])
}

func TestProfiles(t *testing.T) {
	rec, body := do(t, newTestServer(&fakeSnapshots{}, nil), http.MethodGet, "/profiles")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "safe", body["auto_bot_mode"])
	assert.Equal(t, true, body["learning_enabled"])
	profiles := body["profiles"].(map[string]any)
	assert.Contains(t, profiles, profile.DefaultSlug)
	api := profiles["auto_api"].(map[string]any)
	assert.EqualValues(t, 4, api["max_attempts"])
}

func TestPrime(t *testing.T) {
	s := newTestServer(&fakeSnapshots{buster: 1}, nil)

	rec, body := do(t, s, http.MethodPost, "/cache/prime")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["buster"])

	rec, _ = do(t, s, http.MethodGet, "/cache/prime")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics(t *testing.T) {
	rec, _ := do(t, newTestServer(&fakeSnapshots{}, nil), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "retrycache_cache_buster")
}
