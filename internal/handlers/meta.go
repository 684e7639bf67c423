package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rmitchellscott/pdfdesk/internal/security"
	"github.com/rmitchellscott/pdfdesk/internal/version"
	"github.com/rmitchellscott/pdfdesk/internal/workspace"
)

// ConfigHandler returns application configuration information
func (s *Server) ConfigHandler(c *gin.Context) {
	key, _ := s.keys.APIKey(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"apiUrl":        "/api/",
		"authEnabled":   s.auth.Enabled(),
		"apiKeyEnabled": s.cfg.Auth.APIKey != "",
		"aiConfigured":  key != "",
		"maxUploadMB":   s.cfg.Limits.MaxUploadBytes >> 20,
		"maxPdfFiles":   s.cfg.Limits.MaxPDFFiles,
		"maxImageFiles": s.cfg.Limits.MaxImageFiles,
		"autoResetMs":   s.cfg.WorkspaceAutoReset.Milliseconds(),
		"accept": gin.H{
			string(security.CategoryPDF):   security.AllowedTypes(security.CategoryPDF),
			string(security.CategoryImage): security.AllowedTypes(security.CategoryImage),
		},
	})
}

func VersionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}

type toolView struct {
	Tool      workspace.Tool    `json:"tool"`
	Category  security.Category `json:"category"`
	MinFiles  int               `json:"minFiles"`
	Multi     bool              `json:"multi"`
	AutoStart bool              `json:"autoStart"`
}

// ToolsHandler lists the tools a session can be opened for.
func ToolsHandler(c *gin.Context) {
	specs := workspace.Tools()
	out := make([]toolView, len(specs))
	for i, sp := range specs {
		out[i] = toolView{Tool: sp.Tool, Category: sp.Category, MinFiles: sp.MinRun, Multi: sp.Multi, AutoStart: sp.AutoStart}
	}
	c.JSON(http.StatusOK, gin.H{"tools": out})
}
