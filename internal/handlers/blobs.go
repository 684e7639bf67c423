package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rmitchellscott/pdfdesk/internal/auth"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
	"github.com/rmitchellscott/pdfdesk/internal/storage"
)

// GetBlob streams a result as a download.
func (s *Server) GetBlob(c *gin.Context) {
	e, ok := s.registry.Lookup(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, "backend.errors.not_found")
		return
	}
	// an empty name leaves the disposition to us
	name := e.Name
	if c.Query("inline") != "" {
		c.Header("Content-Disposition", "inline")
		name = ""
	}
	if err := storage.StreamToResponse(c.Request.Context(), c, s.registry.Backend(), storage.BlobKey(e.ID), name, e.ContentType); err != nil {
		logging.Warnf("[BLOBS] Serving %s: %v", e.ID, err)
	}
}

// DeleteBlob revokes a result early through the manager that created it.
// A session's results need that session's token. Deleting an unknown blob
// succeeds.
func (s *Server) DeleteBlob(c *gin.Context) {
	ctx := c.Request.Context()
	e, ok := s.registry.Lookup(c.Param("id"))
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	owner := s.downloads
	if e.Owner != owner.Owner() {
		token := c.GetHeader(auth.SessionTokenHeader)
		if token == "" {
			respondError(c, http.StatusUnauthorized, "backend.auth.no_token")
			return
		}
		if err := s.auth.VerifySessionToken(token, e.Owner); err != nil {
			respondError(c, http.StatusForbidden, "backend.auth.invalid_token")
			return
		}
		ctrl, ok := s.sessions.Get(e.Owner)
		if !ok {
			// the session is gone and nothing else tracks the url
			if _, err := s.registry.Release(ctx, e.URL); err != nil {
				logging.Warnf("[BLOBS] Releasing %s: %v", e.ID, err)
			}
			c.Status(http.StatusNoContent)
			return
		}
		owner = ctrl.URLs()
	}
	if err := owner.Revoke(ctx, e.URL); err != nil {
		logging.Warnf("[BLOBS] Revoking %s: %v", e.ID, err)
	}
	c.Status(http.StatusNoContent)
}
