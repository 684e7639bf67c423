package workspace

import (
	"github.com/rmitchellscott/pdfdesk/internal/annotation"
	"github.com/rmitchellscott/pdfdesk/internal/upload"
)

// FileView describes a selected file without its bytes.
type FileView struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// View is the JSON form of a session.
type View struct {
	SessionID   string                  `json:"sessionId"`
	Tool        Tool                    `json:"tool"`
	State       string                  `json:"state"`
	Files       []FileView              `json:"files"`
	JobID       string                  `json:"jobId,omitempty"`
	Result      *Result                 `json:"result,omitempty"`
	Message     string                  `json:"message,omitempty"`
	ErrorKind   string                  `json:"errorKind,omitempty"`
	Annotations []annotation.Annotation `json:"annotations,omitempty"`
}

// View snapshots the session.
func (c *Controller) View() View {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()

	v := View{SessionID: c.id, Tool: c.spec.Tool, State: st.Name(), Files: []FileView{}}
	switch s := st.(type) {
	case FilesSelected:
		v.Files = fileViews(s.Files)
	case Processing:
		v.Files = fileViews(s.Files)
		v.JobID = s.JobID
	case Success:
		res := s.Result
		v.Result = &res
	case Failed:
		v.Files = fileViews(s.Files)
		v.Message = s.Message
		v.ErrorKind = s.Kind
	}
	if c.notes != nil {
		v.Annotations = c.notes.List()
	}
	return v
}

func fileViews(files []upload.UploadedFile) []FileView {
	out := make([]FileView, len(files))
	for i, f := range files {
		out[i] = FileView{Name: f.DisplayName(), MimeType: f.MimeType, Size: f.Size}
	}
	return out
}
