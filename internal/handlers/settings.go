package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
	"github.com/rmitchellscott/pdfdesk/internal/settings"
)

type apiKeyRequest struct {
	APIKey string `json:"apiKey" binding:"required,max=512"`
}

// GetAPIKey reports whether a key is stored, showing only its tail.
func (s *Server) GetAPIKey(c *gin.Context) {
	key, err := s.keys.APIKey(c.Request.Context())
	if err != nil {
		logging.Errorf("[SETTINGS] %v", err)
		respondError(c, http.StatusInternalServerError, "backend.errors.settings_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": key != "", "masked": settings.Mask(key)})
}

func (s *Server) PutAPIKey(c *gin.Context) {
	var req apiKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	if err := s.keys.SaveAPIKey(c.Request.Context(), req.APIKey); err != nil {
		logging.Errorf("[SETTINGS] %v", err)
		respondError(c, http.StatusInternalServerError, "backend.errors.settings_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": true, "masked": settings.Mask(req.APIKey)})
}

func (s *Server) DeleteAPIKey(c *gin.Context) {
	if err := s.keys.DeleteAPIKey(c.Request.Context()); err != nil {
		logging.Errorf("[SETTINGS] %v", err)
		respondError(c, http.StatusInternalServerError, "backend.errors.settings_failed")
		return
	}
	c.Status(http.StatusNoContent)
}
