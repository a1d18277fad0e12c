package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sbi-steve/backend/internal/auth"
	"github.com/sbi-steve/backend/internal/meetings"
	"github.com/sbi-steve/backend/internal/models"
	"github.com/sbi-steve/backend/internal/session"
)

type fakeSessions struct {
	mu      sync.Mutex
	snaps   []session.Snapshot
	stopped []session.TenantID
	stopErr error
}

func (f *fakeSessions) ActiveSessions() []session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.Snapshot(nil), f.snaps...)
}

func (f *fakeSessions) RequestStop(_ context.Context, tenant session.TenantID, trigger session.Trigger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if trigger != session.TriggerManual {
		return errors.New("unexpected trigger")
	}
	f.stopped = append(f.stopped, tenant)
	return f.stopErr
}

type noMeetings struct{}

func (noMeetings) GetByID(context.Context, uuid.UUID) (*models.Meeting, error) {
	return nil, meetings.ErrNotFound
}

func (noMeetings) ListByGuild(context.Context, string, int) ([]models.Meeting, error) {
	return nil, nil
}

type harness struct {
	router   *gin.Engine
	jwt      *auth.JWTService
	sessions *fakeSessions
	handler  *SessionsHandler
}

func newHarness(t *testing.T, checks map[string]HealthCheck) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)
	fs := &fakeSessions{snaps: []session.Snapshot{
		{TenantID: "g1", VoiceChannelID: "v1", State: "active", StartedAt: time.Now()},
		{TenantID: "g2", VoiceChannelID: "v2", State: "stopping", StartedAt: time.Now()},
	}}
	jwtSvc := auth.NewJWTService("secret", 1)
	sh := NewSessionsHandler(fs, logger)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("steve_sessions_active 1\n"))
	})
	router := NewRouter(RouterDeps{
		JWT:            jwtSvc,
		Meetings:       meetings.NewHandler(noMeetings{}, nil, logger),
		Sessions:       sh,
		Metrics:        metrics,
		Checks:         checks,
		AllowedOrigins: "*",
	}, logger)
	return &harness{router: router, jwt: jwtSvc, sessions: fs, handler: sh}
}

func (h *harness) do(t *testing.T, method, path string, role models.Role, guilds ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		tok, err := h.jwt.Generate("u1", role, guilds)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	})
	w := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":"ok"`)

	w = h.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "steve_sessions_active")
}

func TestHealthReportsFailingDependency(t *testing.T) {
	h := newHarness(t, map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	w := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis unavailable")
}

func TestListSessionsFiltersByGuild(t *testing.T) {
	h := newHarness(t, nil)

	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/sessions", "").Code)

	decode := func(w *httptest.ResponseRecorder) []session.Snapshot {
		var body struct {
			Data []session.Snapshot `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body.Data
	}

	w := h.do(t, http.MethodGet, "/sessions", models.RoleViewer, "g1")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(w)
	require.Len(t, list, 1)
	assert.Equal(t, "g1", list[0].TenantID)

	w = h.do(t, http.MethodGet, "/sessions", models.RoleAdmin)
	assert.Len(t, decode(w), 2)

	w = h.do(t, http.MethodGet, "/sessions", models.RoleViewer, "g9")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(w))
}

func TestStopSession(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, http.MethodPost, "/guilds/g1/session/stop", models.RoleViewer, "g1")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodPost, "/guilds/g1/session/stop", models.RoleAdmin)
	assert.Equal(t, http.StatusAccepted, w.Code)
	h.handler.Wait()
	assert.Equal(t, []session.TenantID{"g1"}, h.sessions.stopped)

	// g2 is already stopping; g3 has no session.
	for _, g := range []string{"g2", "g3"} {
		w = h.do(t, http.MethodPost, "/guilds/"+g+"/session/stop", models.RoleAdmin)
		assert.Equal(t, http.StatusNotFound, w.Code, g)
		assert.Contains(t, w.Body.String(), session.ErrNotRecording.Error())
	}
	h.handler.Wait()
	assert.Len(t, h.sessions.stopped, 1)
}

func TestMeetingRoutesRequireToken(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/meetings/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/meetings/"+uuid.NewString(), models.RoleAdmin).Code)
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/guilds/g2/meetings", models.RoleViewer, "g1").Code)
}
