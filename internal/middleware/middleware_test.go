package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sbi-steve/backend/internal/auth"
	"github.com/sbi-steve/backend/internal/models"
)

func newRouter(t *testing.T, svc *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(zaptest.NewLogger(t)), CORS("http://dash.local"))
	g := r.Group("/guilds/:guild_id", JWT(svc), RequireGuildAccess("guild_id"))
	g.GET("", func(c *gin.Context) { c.Status(http.StatusOK) })
	g.POST("/stop", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Origin", "http://dash.local")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	r := newRouter(t, svc)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/guilds/g1", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/guilds/g1", "nope").Code)

	viewer, err := svc.Generate("1", models.RoleViewer, []string{"g1"})
	require.NoError(t, err)
	w := do(r, http.MethodGet, "/guilds/g1", viewer)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://dash.local", w.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/guilds/g2", viewer).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/guilds/g1/stop", viewer).Code)

	admin, err := svc.Generate("2", models.RoleAdmin, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/guilds/g2/stop", admin).Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(t, auth.NewJWTService("secret", 1))
	w := do(r, http.MethodOptions, "/guilds/g1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
