package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rmitchellscott/pdfdesk/internal/annotation"
)

type annotationRequest struct {
	Type string  `json:"type" binding:"required,oneof=text signature image"`
	Page *int    `json:"page" binding:"required,min=0"`
	X    float64 `json:"x" binding:"min=0,max=100"`
	Y    float64 `json:"y" binding:"min=0,max=100"`

	// Content is the text, or a data URL for signatures and images.
	Content  string   `json:"content" binding:"required"`
	Width    *float64 `json:"width" binding:"omitempty,gt=0,max=100"`
	Height   *float64 `json:"height" binding:"omitempty,gt=0,max=100"`
	FontSize *float64 `json:"fontSize" binding:"omitempty,gt=0,max=144"`
}

type moveRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func annotationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, annotation.ErrInvalidImage), errors.Is(err, annotation.ErrMissingImage):
		respondError(c, http.StatusBadRequest, "backend.errors.invalid_image")
	case errors.Is(err, annotation.ErrNotFound):
		respondError(c, http.StatusNotFound, "backend.errors.annotation_not_found")
	default:
		respondError(c, http.StatusBadRequest, "backend.errors.invalid_annotation")
	}
}

// AddAnnotation places a text, signature or image overlay.
func (s *Server) AddAnnotation(c *gin.Context) {
	var req annotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	a, err := annotation.New(annotation.Kind(req.Type), *req.Page, req.X, req.Y, req.Content)
	if err != nil {
		annotationError(c, err)
		return
	}
	if a.Kind.IsImage() {
		if req.Width != nil {
			a.Width = *req.Width
		}
		if req.Height != nil {
			a.Height = *req.Height
		}
	} else if req.FontSize != nil {
		a.FontSize = *req.FontSize
	}
	if err := a.Validate(); err != nil {
		annotationError(c, err)
		return
	}

	if err := controller(c).Annotate(a); err != nil {
		if errors.Is(err, annotation.ErrOutOfRange) || errors.Is(err, annotation.ErrInvalidPage) {
			annotationError(c, err)
			return
		}
		s.selectError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// MoveAnnotation drags an overlay. Positions are clamped to keep it on the
// page.
func (s *Server) MoveAnnotation(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	notes := controller(c).Annotations()
	if notes == nil {
		respondError(c, http.StatusConflict, "backend.errors.invalid_state")
		return
	}
	if err := notes.Move(c.Param("aid"), req.X, req.Y); err != nil {
		annotationError(c, err)
		return
	}
	c.JSON(http.StatusOK, controller(c).View())
}

func (s *Server) DeleteAnnotation(c *gin.Context) {
	notes := controller(c).Annotations()
	if notes == nil {
		respondError(c, http.StatusConflict, "backend.errors.invalid_state")
		return
	}
	if err := notes.Remove(c.Param("aid")); err != nil {
		annotationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
