package workspace

import (
	"errors"
	"fmt"

	"github.com/rmitchellscott/pdfdesk/internal/upload"
)

var (
	// ErrBusy is returned when an operation is already running.
	ErrBusy = errors.New("an operation is already running")
	// ErrInvalidTransition is returned for events that make no sense in the
	// current state.
	ErrInvalidTransition = errors.New("invalid workspace transition")
	// ErrNotEnoughFiles is returned when a tool is started with fewer files
	// than it needs.
	ErrNotEnoughFiles = errors.New("not enough files selected")
)

// State is one of Idle, FilesSelected, Processing, Success or Failed.
type State interface {
	Name() string
	state()
}

type Idle struct{}

type FilesSelected struct {
	Files []upload.UploadedFile
}

type Processing struct {
	JobID string
	Files []upload.UploadedFile
}

type Success struct {
	Result Result
}

type Failed struct {
	// Message is an i18n key.
	Message string
	Kind    string
	// Files are kept so the user can try again without re-uploading.
	Files []upload.UploadedFile
}

func (Idle) Name() string          { return "idle" }
func (FilesSelected) Name() string { return "files_selected" }
func (Processing) Name() string    { return "processing" }
func (Success) Name() string       { return "success" }
func (Failed) Name() string        { return "error" }

func (Idle) state()          {}
func (FilesSelected) state() {}
func (Processing) state()    {}
func (Success) state()       {}
func (Failed) state()        {}

// Event drives a Transition.
type Event interface {
	event()
}

// SelectFiles replaces the selection with Files.
type SelectFiles struct {
	Files []upload.UploadedFile
}

// Start begins processing under JobID.
type Start struct {
	JobID string
}

// Progress reports progress of the running job.
type Progress struct {
	Percent int
}

// Complete delivers the result of the run identified by JobID.
type Complete struct {
	JobID  string
	Result Result
}

// Fail delivers the failure of the run identified by JobID.
type Fail struct {
	JobID   string
	Message string
	Kind    string
}

// Reset returns to Idle from anywhere, discarding any running result.
type Reset struct{}

func (SelectFiles) event() {}
func (Start) event()       {}
func (Progress) event()    {}
func (Complete) event()    {}
func (Fail) event()        {}
func (Reset) event()       {}

// Transition computes the next state. It never mutates s.
func Transition(spec Spec, s State, e Event) (State, error) {
	if _, ok := e.(Reset); ok {
		return Idle{}, nil
	}

	switch cur := s.(type) {
	case Idle:
		switch ev := e.(type) {
		case SelectFiles:
			return selectFiles(ev.Files)
		case Start:
			return nil, fmt.Errorf("%w: no files selected", ErrNotEnoughFiles)
		}

	case FilesSelected:
		switch ev := e.(type) {
		case SelectFiles:
			return selectFiles(ev.Files)
		case Start:
			return start(spec, cur.Files, ev.JobID)
		}

	case Processing:
		switch ev := e.(type) {
		case SelectFiles, Start:
			return nil, ErrBusy
		case Progress:
			return cur, nil
		case Complete:
			if ev.JobID != cur.JobID {
				return nil, fmt.Errorf("%w: result for job %s while running %s", ErrInvalidTransition, ev.JobID, cur.JobID)
			}
			return Success{Result: ev.Result}, nil
		case Fail:
			if ev.JobID != cur.JobID {
				return nil, fmt.Errorf("%w: failure for job %s while running %s", ErrInvalidTransition, ev.JobID, cur.JobID)
			}
			return Failed{Message: ev.Message, Kind: ev.Kind, Files: cur.Files}, nil
		}

	case Success:
		switch ev := e.(type) {
		case SelectFiles:
			return selectFiles(ev.Files)
		}

	case Failed:
		switch ev := e.(type) {
		case SelectFiles:
			return selectFiles(ev.Files)
		case Start:
			// try again with the same files
			return start(spec, cur.Files, ev.JobID)
		}

	default:
		return nil, fmt.Errorf("%w: unknown state %T", ErrInvalidTransition, s)
	}

	return nil, fmt.Errorf("%w: %T in %s", ErrInvalidTransition, e, s.Name())
}

func selectFiles(files []upload.UploadedFile) (State, error) {
	if len(files) == 0 {
		return Idle{}, nil
	}
	return FilesSelected{Files: files}, nil
}

func start(spec Spec, files []upload.UploadedFile, jobID string) (State, error) {
	if len(files) < spec.MinRun {
		return nil, fmt.Errorf("%w: %s needs %d, have %d", ErrNotEnoughFiles, spec.Tool, spec.MinRun, len(files))
	}
	if !spec.Multi && len(files) != 1 {
		return nil, fmt.Errorf("%w: %s takes exactly one file", ErrInvalidTransition, spec.Tool)
	}
	return Processing{JobID: jobID, Files: files}, nil
}
