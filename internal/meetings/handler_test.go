package meetings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sbi-steve/backend/internal/auth"
	"github.com/sbi-steve/backend/internal/middleware"
	"github.com/sbi-steve/backend/internal/models"
)

type memReader struct {
	byID    map[uuid.UUID]*models.Meeting
	listErr error
	limit   int
}

func (m *memReader) GetByID(_ context.Context, id uuid.UUID) (*models.Meeting, error) {
	mt, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return mt, nil
}

func (m *memReader) ListByGuild(_ context.Context, guildID string, limit int) ([]models.Meeting, error) {
	m.limit = limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.Meeting
	for _, mt := range m.byID {
		if mt.GuildID == guildID {
			out = append(out, *mt)
		}
	}
	return out, nil
}

type fakePresigner struct{ err error }

func (p fakePresigner) PresignDownload(_ context.Context, key string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "https://blobs.local/" + key + "?sig=1", nil
}

func (fakePresigner) PresignExpire() time.Duration { return 15 * time.Minute }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func setup(t *testing.T, blobs Presigner) (*gin.Engine, *memReader, *auth.JWTService, *models.Meeting) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m := &models.Meeting{
		ID:            uuid.New(),
		GuildID:       "g1",
		ChannelID:     "v1",
		StartedAt:     time.Now().Add(-time.Hour),
		Recordings:    []string{"g1/a.ogg", "g1/b.ogg"},
		Transcription: "hello there",
	}
	repo := &memReader{byID: map[uuid.UUID]*models.Meeting{m.ID: m}}
	svc := auth.NewJWTService("secret", 1)
	h := NewHandler(repo, blobs, zaptest.NewLogger(t))

	r := gin.New()
	api := r.Group("", middleware.JWT(svc))
	api.GET("/guilds/:guild_id/meetings", middleware.RequireGuildAccess("guild_id"), h.ListByGuild)
	api.GET("/meetings/:id", h.GetByID)
	api.GET("/meetings/:id/transcript", h.GetTranscript)
	api.GET("/meetings/:id/recordings/:index/download-url", h.GenerateDownloadURL)
	return r, repo, svc, m
}

func get(t *testing.T, r http.Handler, path, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func token(t *testing.T, svc *auth.JWTService, role models.Role, guilds ...string) string {
	t.Helper()
	tok, err := svc.Generate("u1", role, guilds)
	require.NoError(t, err)
	return tok
}

func TestGetMeetingRespectsGuildAccess(t *testing.T) {
	r, _, svc, m := setup(t, fakePresigner{})

	w, env := get(t, r, "/meetings/"+m.ID.String(), token(t, svc, models.RoleViewer, "g1"))
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Meeting
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, m.ID, got.ID)

	w, _ = get(t, r, "/meetings/"+m.ID.String(), token(t, svc, models.RoleViewer, "g2"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = get(t, r, "/meetings/"+m.ID.String(), token(t, svc, models.RoleAdmin))
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = get(t, r, "/meetings/"+uuid.NewString(), token(t, svc, models.RoleAdmin))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = get(t, r, "/meetings/not-a-uuid", token(t, svc, models.RoleAdmin))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid meeting id", env.Error)
}

func TestListMeetingsByGuild(t *testing.T) {
	r, repo, svc, _ := setup(t, fakePresigner{})
	viewer := token(t, svc, models.RoleViewer, "g1")

	w, env := get(t, r, "/guilds/g1/meetings?limit=500", viewer)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Meeting
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)
	assert.Equal(t, maxListLimit, repo.limit)

	w, _ = get(t, r, "/guilds/g1/meetings?limit=-1", viewer)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = get(t, r, "/guilds/g2/meetings", viewer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	repo.listErr = errors.New("db down")
	w, _ = get(t, r, "/guilds/g1/meetings", viewer)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetTranscript(t *testing.T) {
	r, _, svc, m := setup(t, fakePresigner{})
	viewer := token(t, svc, models.RoleViewer, "g1")

	w, env := get(t, r, "/meetings/"+m.ID.String()+"/transcript", viewer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "hello there")

	m.Transcription = ""
	w, _ = get(t, r, "/meetings/"+m.ID.String()+"/transcript", viewer)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateDownloadURL(t *testing.T) {
	r, _, svc, m := setup(t, fakePresigner{})
	viewer := token(t, svc, models.RoleViewer, "g1")

	w, env := get(t, r, "/meetings/"+m.ID.String()+"/recordings/1/download-url", viewer)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		DownloadURL string `json:"download_url"`
		ExpiresIn   int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "https://blobs.local/g1/b.ogg?sig=1", body.DownloadURL)
	assert.Equal(t, 900, body.ExpiresIn)

	w, _ = get(t, r, "/meetings/"+m.ID.String()+"/recordings/2/download-url", viewer)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = get(t, r, "/meetings/"+m.ID.String()+"/recordings/x/download-url", viewer)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateDownloadURLFailures(t *testing.T) {
	r, _, svc, m := setup(t, fakePresigner{err: errors.New("no creds")})
	w, _ := get(t, r, "/meetings/"+m.ID.String()+"/recordings/0/download-url", token(t, svc, models.RoleAdmin))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	r, _, svc, m = setup(t, nil)
	w, _ = get(t, r, "/meetings/"+m.ID.String()+"/recordings/0/download-url", token(t, svc, models.RoleAdmin))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
