package meetings

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sbi-steve/backend/internal/middleware"
	"github.com/sbi-steve/backend/internal/models"
	"github.com/sbi-steve/backend/pkg/response"
)

const (
	defaultListLimit = 25
	maxListLimit     = 100
)

// Reader is the read side of the meetings repository.
type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	ListByGuild(ctx context.Context, guildID string, limit int) ([]models.Meeting, error)
}

// Presigner hands out temporary download URLs for recording blobs.
type Presigner interface {
	PresignDownload(ctx context.Context, key string) (string, error)
	PresignExpire() time.Duration
}

// Handler handles meeting HTTP endpoints.
type Handler struct {
	repo   Reader
	blobs  Presigner // optional: nil disables download URLs
	logger *zap.Logger
}

// NewHandler creates a meetings handler.
func NewHandler(repo Reader, blobs Presigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, blobs: blobs, logger: logger}
}

// ListByGuild handles GET /guilds/:guild_id/meetings. Guild access is checked by middleware.
func (h *Handler) ListByGuild(c *gin.Context) {
	guildID := c.Param("guild_id")
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}
	list, err := h.repo.ListByGuild(c.Request.Context(), guildID, limit)
	if err != nil {
		h.logger.Error("list meetings failed", zap.Error(err), zap.String("guild_id", guildID))
		response.Internal(c, "failed to list meetings")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /meetings/:id.
func (h *Handler) GetByID(c *gin.Context) {
	m, ok := h.load(c)
	if !ok {
		return
	}
	response.OK(c, m)
}

// GetTranscript handles GET /meetings/:id/transcript.
func (h *Handler) GetTranscript(c *gin.Context) {
	m, ok := h.load(c)
	if !ok {
		return
	}
	if !m.HasTranscript() {
		response.NotFound(c, "no transcript for this meeting")
		return
	}
	response.OK(c, gin.H{
		"meeting_id":       m.ID,
		"transcription_id": m.TranscriptionID,
		"transcription":    m.Transcription,
	})
}

// GenerateDownloadURL handles GET /meetings/:id/recordings/:index/download-url.
func (h *Handler) GenerateDownloadURL(c *gin.Context) {
	if h.blobs == nil {
		response.ServiceUnavailable(c, "recording storage not configured")
		return
	}
	m, ok := h.load(c)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil || idx < 0 || idx >= len(m.Recordings) {
		response.NotFound(c, "recording not found")
		return
	}
	url, err := h.blobs.PresignDownload(c.Request.Context(), m.Recordings[idx])
	if err != nil {
		h.logger.Error("presign recording download failed", zap.Error(err), zap.String("meeting_id", m.ID.String()))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"download_url": url, "expires_in": int(h.blobs.PresignExpire().Seconds())})
}

// load resolves :id and enforces guild access. Meetings in guilds the caller
// cannot see are reported as missing.
func (h *Handler) load(c *gin.Context) (*models.Meeting, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return nil, false
	}
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return nil, false
	}
	m, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "meeting not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("get meeting failed", zap.Error(err), zap.String("meeting_id", id.String()))
		response.Internal(c, "failed to load meeting")
		return nil, false
	}
	if !claims.CanAccessGuild(m.GuildID) {
		response.NotFound(c, "meeting not found")
		return nil, false
	}
	return m, true
}
