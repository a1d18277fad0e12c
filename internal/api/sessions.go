package api

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sbi-steve/backend/internal/middleware"
	"github.com/sbi-steve/backend/internal/session"
	"github.com/sbi-steve/backend/pkg/response"
)

// SessionController is the part of session.Manager the HTTP API drives.
type SessionController interface {
	ActiveSessions() []session.Snapshot
	RequestStop(ctx context.Context, tenant session.TenantID, trigger session.Trigger) error
}

// SessionsHandler exposes live recording sessions.
type SessionsHandler struct {
	sessions SessionController
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewSessionsHandler creates a sessions handler.
func NewSessionsHandler(sessions SessionController, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{sessions: sessions, logger: logger}
}

// List handles GET /sessions, filtered to the caller's guilds.
func (h *SessionsHandler) List(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	out := make([]session.Snapshot, 0)
	for _, snap := range h.sessions.ActiveSessions() {
		if claims.CanAccessGuild(snap.TenantID) {
			out = append(out, snap)
		}
	}
	response.OK(c, out)
}

// Stop handles POST /guilds/:guild_id/session/stop. Finalize runs in the
// background; the call answers 202 once the stop is under way.
func (h *SessionsHandler) Stop(c *gin.Context) {
	tenant := session.TenantID(c.Param("guild_id"))
	snap, ok := h.active(tenant)
	if !ok {
		response.NotFound(c, session.ErrNotRecording.Error())
		return
	}
	userID, _ := c.Get(middleware.ContextUserID)
	h.logger.Info("stop requested over http",
		zap.String("guild_id", tenant.String()),
		zap.Any("user_id", userID))

	ctx := context.WithoutCancel(c.Request.Context())
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.sessions.RequestStop(ctx, tenant, session.TriggerManual); err != nil {
			h.logger.Error("http stop failed", zap.String("guild_id", tenant.String()), zap.Error(err))
		}
	}()
	response.Accepted(c, snap)
}

func (h *SessionsHandler) active(tenant session.TenantID) (session.Snapshot, bool) {
	for _, snap := range h.sessions.ActiveSessions() {
		if snap.TenantID == tenant.String() && snap.State == session.StateActive.String() {
			return snap, true
		}
	}
	return session.Snapshot{}, false
}

// Wait blocks until every stop started by Stop has returned.
func (h *SessionsHandler) Wait() { h.wg.Wait() }
