// Package handlers exposes the workspace, blob, settings and AI operations
// over HTTP.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rmitchellscott/pdfdesk/internal/ai"
	"github.com/rmitchellscott/pdfdesk/internal/auth"
	"github.com/rmitchellscott/pdfdesk/internal/config"
	"github.com/rmitchellscott/pdfdesk/internal/i18n"
	"github.com/rmitchellscott/pdfdesk/internal/jobs"
	"github.com/rmitchellscott/pdfdesk/internal/metrics"
	"github.com/rmitchellscott/pdfdesk/internal/objurl"
	"github.com/rmitchellscott/pdfdesk/internal/settings"
	"github.com/rmitchellscott/pdfdesk/internal/workspace"
)

// KeyStore persists the AI API key.
type KeyStore interface {
	settings.Provider
	SaveAPIKey(ctx context.Context, key string) error
	DeleteAPIKey(ctx context.Context) error
}

// AIClient is the subset of *ai.Client the handlers call.
type AIClient interface {
	Doctor(ctx context.Context, apiKey, text string) (ai.Analysis, error)
	Chat(ctx context.Context, apiKey, documentText, message string) (string, error)
}

// Server holds the dependencies of every handler.
type Server struct {
	cfg       *config.Config
	sessions  *workspace.Sessions
	jobs      *jobs.Store
	registry  *objurl.Registry
	downloads *objurl.Manager
	auth      *auth.Authenticator
	keys      KeyStore
	ai        AIClient
	metrics   *metrics.Metrics
	uploads   *auth.IPLimiter
}

type Deps struct {
	Config   *config.Config
	Sessions *workspace.Sessions
	Jobs     *jobs.Store
	Registry *objurl.Registry
	Auth     *auth.Authenticator
	Keys     KeyStore
	AI       AIClient
	Metrics  *metrics.Metrics

	// Downloads owns URLs no session does. Nil gets a private manager on
	// Registry.
	Downloads *objurl.Manager
}

func New(d Deps) *Server {
	downloads := d.Downloads
	if downloads == nil {
		downloads = objurl.NewManager(d.Registry, objurl.GlobalOwner)
	}
	return &Server{
		cfg:       d.Config,
		sessions:  d.Sessions,
		jobs:      d.Jobs,
		registry:  d.Registry,
		downloads: downloads,
		auth:      d.Auth,
		keys:      d.Keys,
		ai:        d.AI,
		metrics:   d.Metrics,
		uploads:   auth.NewIPLimiter(d.Config.Limits.UploadsPerMin),
	}
}

// Register mounts every route on r.
func (s *Server) Register(r *gin.Engine) {
	r.Use(i18n.LanguageMiddleware(), s.metrics.Middleware())

	// Auth endpoints (always available)
	r.POST("/api/auth/login", s.auth.LoginHandler)
	r.POST("/api/auth/logout", s.auth.LogoutHandler)
	r.GET("/api/auth/check", s.auth.CheckAuthHandler)
	r.GET("/api/config", s.ConfigHandler)
	r.GET("/api/version", VersionHandler)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Protected API endpoints (require auth if configured)
	api := r.Group("/api", s.auth.Middleware())

	api.GET("/tools", ToolsHandler)
	api.POST("/sessions", s.CreateSession)

	sess := api.Group("/sessions/:id", s.auth.RequireSession("id"), s.loadSession)
	sess.GET("", s.GetSession)
	sess.DELETE("", s.DeleteSession)
	sess.POST("/files", s.uploads.Middleware(), s.UploadFiles)
	sess.DELETE("/files/:index", s.RemoveFile)
	sess.POST("/files/reorder", s.ReorderFiles)
	sess.POST("/annotations", s.AddAnnotation)
	sess.PATCH("/annotations/:aid", s.MoveAnnotation)
	sess.DELETE("/annotations/:aid", s.DeleteAnnotation)
	sess.POST("/run", s.RunSession)
	sess.POST("/reset", s.ResetSession)

	api.GET("/jobs/:id", s.JobStatus)
	api.GET("/jobs/:id/ws", jobs.StreamHandler(s.jobs))

	api.GET("/blobs/:id", s.GetBlob)
	api.DELETE("/blobs/:id", s.DeleteBlob)

	api.GET("/settings/api-key", s.GetAPIKey)
	api.PUT("/settings/api-key", s.PutAPIKey)
	api.DELETE("/settings/api-key", s.DeleteAPIKey)

	aiGroup := api.Group("/ai")
	aiGroup.POST("/doctor", s.Doctor)
	aiGroup.POST("/doctor/pdf", s.uploads.Middleware(), s.DoctorPDF)
	aiGroup.POST("/chat", s.Chat)
	aiGroup.POST("/report", s.Report)
}

// PruneLimiters forgets the upload rate state of clients idle for longer
// than idle.
func (s *Server) PruneLimiters(idle time.Duration) int {
	return s.uploads.Prune(time.Now().Add(-idle))
}

// respondError writes the error key and its translation.
func respondError(c *gin.Context, status int, key string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   key,
		"message": i18n.TFromContext(c.Request.Context(), key),
	})
}

func badRequest(c *gin.Context) {
	respondError(c, http.StatusBadRequest, "backend.errors.invalid_request")
}
