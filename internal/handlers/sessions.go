package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rmitchellscott/pdfdesk/internal/i18n"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
	"github.com/rmitchellscott/pdfdesk/internal/pdfops"
	"github.com/rmitchellscott/pdfdesk/internal/security"
	"github.com/rmitchellscott/pdfdesk/internal/upload"
	"github.com/rmitchellscott/pdfdesk/internal/workspace"
)

const sessionKey = "workspace"

// sessionTokenTTL bounds how long a session token stays valid. The session
// itself may be reaped earlier.
const sessionTokenTTL = 24 * time.Hour

type createSessionRequest struct {
	Tool string `json:"tool" binding:"required"`
}

// CreateSession opens a workspace for one tool.
func (s *Server) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	ctrl, err := s.sessions.Open(req.Tool)
	if err != nil {
		respondError(c, http.StatusBadRequest, "backend.errors.unknown_tool")
		return
	}
	token, err := s.auth.IssueSessionToken(ctrl.ID(), sessionTokenTTL)
	if err != nil {
		_ = s.sessions.Close(c.Request.Context(), ctrl.ID())
		respondError(c, http.StatusInternalServerError, "backend.auth.token_error")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"sessionId": ctrl.ID(),
		"token":     token,
		"state":     ctrl.View(),
	})
}

// loadSession resolves :id and stores the controller on the context.
func (s *Server) loadSession(c *gin.Context) {
	ctrl, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, "backend.errors.session_not_found")
		return
	}
	c.Set(sessionKey, ctrl)
	c.Next()
}

func controller(c *gin.Context) *workspace.Controller {
	return c.MustGet(sessionKey).(*workspace.Controller)
}

func (s *Server) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, controller(c).View())
}

func (s *Server) DeleteSession(c *gin.Context) {
	if err := s.sessions.Close(c.Request.Context(), c.Param("id")); err != nil && !errors.Is(err, workspace.ErrUnknownSession) {
		logging.Warnf("[WORKSPACE] Closing session %s: %v", c.Param("id"), err)
	}
	c.Status(http.StatusNoContent)
}

// UploadFiles accepts the multipart "files" field into the selection.
func (s *Server) UploadFiles(c *gin.Context) {
	ctrl := controller(c)
	lim := s.cfg.Limits
	maxFiles := lim.MaxPDFFiles
	if ctrl.Spec().Category == security.CategoryImage {
		maxFiles = lim.MaxImageFiles
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, lim.MaxUploadBytes*int64(maxFiles)+1<<20)

	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, http.StatusBadRequest, "backend.errors.parse_form")
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["file"]
	}

	var (
		files  []upload.UploadedFile
		tooBig []string
	)
	for _, fh := range headers {
		f, err := upload.FromHeader(fh, lim.MaxUploadBytes)
		if err != nil {
			if errors.Is(err, upload.ErrTooLarge) {
				tooBig = append(tooBig, security.SanitizeFilename(fh.Filename))
				continue
			}
			respondError(c, http.StatusBadRequest, "backend.errors.open_file")
			return
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		if len(tooBig) > 0 {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":    "backend.errors.file_too_large",
				"message":  i18n.TFromContext(c.Request.Context(), "backend.errors.file_too_large"),
				"rejected": tooBig,
			})
			return
		}
		respondError(c, http.StatusBadRequest, "backend.errors.no_files")
		return
	}

	res, err := ctrl.Select(c.Request.Context(), files)
	if err != nil {
		s.selectError(c, err)
		return
	}
	res.Rejected = append(res.Rejected, tooBig...)
	if res.Accepted == nil {
		res.Accepted = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"accepted": res.Accepted,
		"rejected": res.Rejected,
		"jobId":    res.JobID,
		"state":    ctrl.View(),
	})
}

func (s *Server) selectError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, workspace.ErrBusy):
		respondError(c, http.StatusConflict, "backend.errors.operation_in_progress")
	case errors.Is(err, workspace.ErrClosed):
		respondError(c, http.StatusGone, "backend.errors.session_not_found")
	case errors.Is(err, upload.ErrTooManyFiles):
		respondError(c, http.StatusBadRequest, "backend.errors.too_many_files")
	case errors.Is(err, upload.ErrNoFiles):
		respondError(c, http.StatusBadRequest, "backend.errors.no_files")
	case errors.Is(err, workspace.ErrNotEnoughFiles):
		respondError(c, http.StatusBadRequest, "backend.errors.not_enough_files")
	case errors.Is(err, workspace.ErrInvalidTransition):
		respondError(c, http.StatusConflict, "backend.errors.invalid_state")
	default:
		logging.Errorf("[WORKSPACE] %v", err)
		respondError(c, http.StatusInternalServerError, "backend.errors.operation_failed")
	}
}

func (s *Server) RemoveFile(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c)
		return
	}
	ctrl := controller(c)
	if err := ctrl.RemoveFile(c.Request.Context(), idx); err != nil {
		s.selectError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.View())
}

type reorderRequest struct {
	From *int `json:"from" binding:"required"`
	To   *int `json:"to" binding:"required"`
}

func (s *Server) ReorderFiles(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	ctrl := controller(c)
	if err := ctrl.Reorder(c.Request.Context(), *req.From, *req.To); err != nil {
		s.selectError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.View())
}

type runRequest struct {
	Orientation string `json:"orientation" binding:"omitempty,oneof=portrait landscape"`
}

// RunSession starts the tool on the current selection.
func (s *Server) RunSession(c *gin.Context) {
	var req runRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
	}
	ctrl := controller(c)
	jobID, err := ctrl.Run(workspace.RunOptions{Orientation: pdfops.ParseOrientation(req.Orientation)})
	if err != nil {
		s.selectError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID, "state": ctrl.View()})
}

func (s *Server) ResetSession(c *gin.Context) {
	ctrl := controller(c)
	if err := ctrl.Reset(c.Request.Context()); err != nil {
		if errors.Is(err, workspace.ErrClosed) {
			s.selectError(c, err)
			return
		}
		logging.Warnf("[WORKSPACE] Reset of %s: %v", ctrl.ID(), err)
	}
	c.JSON(http.StatusOK, ctrl.View())
}

func (s *Server) JobStatus(c *gin.Context) {
	job, ok := s.jobs.Get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, "backend.errors.job_not_found")
		return
	}
	c.JSON(http.StatusOK, job)
}
