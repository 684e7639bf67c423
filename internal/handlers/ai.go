package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rmitchellscott/pdfdesk/internal/ai"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
	"github.com/rmitchellscott/pdfdesk/internal/objurl"
	"github.com/rmitchellscott/pdfdesk/internal/pdfops"
	"github.com/rmitchellscott/pdfdesk/internal/security"
	"github.com/rmitchellscott/pdfdesk/internal/upload"
	"github.com/rmitchellscott/pdfdesk/internal/workspace"
)

type doctorRequest struct {
	Text string `json:"text" binding:"required"`
}

type chatRequest struct {
	Message      string `json:"message" binding:"required"`
	DocumentText string `json:"documentText"`
	// HTML asks for the reply rendered from markdown as well.
	HTML bool `json:"html"`
}

func aiStatus(err error) int {
	var se *ai.HTTPStatusError
	switch {
	case errors.Is(err, ai.ErrMissingAPIKey), errors.Is(err, ai.ErrNoInput):
		return http.StatusBadRequest
	case errors.Is(err, ai.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ai.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ai.ErrMalformedResponse), errors.Is(err, ai.ErrEmptyResponse), errors.As(err, &se):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) aiError(c *gin.Context, err error) {
	logging.Warnf("[AI] %v", err)
	respondError(c, aiStatus(err), ai.MessageKey(err))
}

// apiKey returns the stored key or writes the missing-key error.
func (s *Server) apiKey(c *gin.Context) (string, bool) {
	key, err := s.keys.APIKey(c.Request.Context())
	if err != nil {
		logging.Errorf("[SETTINGS] %v", err)
		respondError(c, http.StatusInternalServerError, "backend.errors.settings_failed")
		return "", false
	}
	if key == "" {
		s.aiError(c, ai.ErrMissingAPIKey)
		return "", false
	}
	return key, true
}

// Doctor analyses text the client already has.
func (s *Server) Doctor(c *gin.Context) {
	var req doctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	key, ok := s.apiKey(c)
	if !ok {
		return
	}
	a, err := s.ai.Doctor(c.Request.Context(), key, req.Text)
	if err != nil {
		s.aiError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// DoctorPDF extracts the text of an uploaded PDF and analyses it.
func (s *Server) DoctorPDF(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Limits.MaxUploadBytes+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "backend.errors.get_file")
		return
	}
	f, err := upload.FromHeader(fh, s.cfg.Limits.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, upload.ErrTooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "backend.errors.file_too_large")
			return
		}
		respondError(c, http.StatusBadRequest, "backend.errors.open_file")
		return
	}
	if !security.ValidateMimeType(f.MimeType, security.CategoryPDF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "backend.errors.unsupported_file",
			"rejected": []string{f.DisplayName()},
		})
		return
	}
	key, ok := s.apiKey(c)
	if !ok {
		return
	}

	text, err := pdfops.ExtractPlainText(c.Request.Context(), pdfops.Input{Name: f.DisplayName(), Data: f.Data})
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, workspace.MessageKey(err))
		return
	}
	a, err := s.ai.Doctor(c.Request.Context(), key, text)
	if err != nil {
		s.aiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"analysis":       a,
		"extractedChars": len([]rune(text)),
		"limitedText":    ai.IsLimitedText(text),
	})
}

// ReportName is the download name of a rendered analysis.
const ReportName = "document-doctor-report.pdf"

// Report renders an analysis the client already has as a PDF and answers
// with its download URL. No session owns the report, so the URL belongs to
// the process-wide manager.
func (s *Server) Report(c *gin.Context) {
	var a ai.Analysis
	if err := c.ShouldBindJSON(&a); err != nil {
		badRequest(c)
		return
	}
	data, err := pdfops.RenderText(c.Request.Context(), a.Report())
	if err != nil {
		logging.Errorf("[AI] Rendering report: %v", err)
		respondError(c, http.StatusInternalServerError, "backend.errors.operation_failed")
		return
	}
	url, err := s.downloads.Create(c.Request.Context(), objurl.Blob{Data: data, ContentType: "application/pdf", Name: ReportName})
	if err != nil {
		logging.Errorf("[AI] Storing report: %v", err)
		respondError(c, http.StatusInternalServerError, "backend.errors.storage_failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url, "name": ReportName})
}

// Chat answers one message, optionally about a document.
func (s *Server) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	key, ok := s.apiKey(c)
	if !ok {
		return
	}
	reply, err := s.ai.Chat(c.Request.Context(), key, req.DocumentText, req.Message)
	if err != nil {
		s.aiError(c, err)
		return
	}
	resp := gin.H{"reply": reply}
	if req.HTML {
		html, err := ai.RenderHTML(reply)
		if err != nil {
			logging.Warnf("[AI] %v", err)
		} else {
			resp["html"] = html
		}
	}
	c.JSON(http.StatusOK, resp)
}
