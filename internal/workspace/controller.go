// Package workspace drives one tool session from file selection through
// processing to a downloadable result.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rmitchellscott/pdfdesk/internal/annotation"
	"github.com/rmitchellscott/pdfdesk/internal/jobs"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
	"github.com/rmitchellscott/pdfdesk/internal/metrics"
	"github.com/rmitchellscott/pdfdesk/internal/objurl"
	"github.com/rmitchellscott/pdfdesk/internal/pdfops"
	"github.com/rmitchellscott/pdfdesk/internal/upload"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrClosed is returned by every call on a closed controller.
var ErrClosed = errors.New("workspace session closed")

// Options configures a Controller.
type Options struct {
	Registry *objurl.Registry
	Jobs     *jobs.Store
	Metrics  *metrics.Metrics

	// MaxPDFFiles and MaxImageFiles bound a selection by the tool's
	// category. MaxBytes bounds each file.
	MaxPDFFiles   int
	MaxImageFiles int
	MaxBytes      int64

	// AutoReset returns a finished session to idle after this long. Zero
	// disables it.
	AutoReset time.Duration
}

// Controller owns one tool session. Safe for concurrent use.
type Controller struct {
	id     string
	spec   Spec
	opts   Options
	limits upload.Limits
	urls   *objurl.Manager

	mu       sync.Mutex
	state    State
	notes    *annotation.Session
	gen      uint64
	cancel   context.CancelFunc
	timer    *time.Timer
	closed   bool
	lastUsed time.Time
	wg       sync.WaitGroup
}

func NewController(id string, spec Spec, opts Options) *Controller {
	if opts.Jobs == nil {
		opts.Jobs = jobs.NewStore()
	}
	c := &Controller{
		id:       id,
		spec:     spec,
		opts:     opts,
		limits:   upload.LimitsFor(spec.Category, opts.MaxPDFFiles, opts.MaxImageFiles, opts.MaxBytes),
		urls:     objurl.NewManager(opts.Registry, id),
		state:    Idle{},
		lastUsed: time.Now(),
	}
	if spec.Tool == ToolEdit {
		c.notes = annotation.NewSession()
	}
	return c
}

func (c *Controller) ID() string            { return c.id }
func (c *Controller) Spec() Spec            { return c.spec }
func (c *Controller) URLs() *objurl.Manager { return c.urls }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastUsed is when the session was last touched.
func (c *Controller) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// Annotations returns the edit session, or nil for other tools.
func (c *Controller) Annotations() *annotation.Session { return c.notes }

// SelectResult reports what happened to a batch of files.
type SelectResult struct {
	Accepted []string `json:"accepted"`
	Rejected []string `json:"rejected"`
	// JobID is set when the tool started on its own.
	JobID string `json:"jobId,omitempty"`
}

// Select validates files and adds them to the selection. Multi-file tools
// append; single-file tools replace the selection with the first accepted
// file. Tools that start on acceptance begin processing immediately.
func (c *Controller) Select(ctx context.Context, files []upload.UploadedFile) (SelectResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return SelectResult{}, ErrClosed
	}
	c.lastUsed = time.Now()
	if _, ok := c.state.(Processing); ok {
		return SelectResult{}, ErrBusy
	}

	res, err := upload.Accept(files, c.spec.Category, c.limits)
	if err != nil {
		return SelectResult{}, err
	}
	out := SelectResult{Rejected: res.Rejected}
	if len(res.Rejected) > 0 {
		c.opts.Metrics.UploadsRejected(string(c.spec.Category), len(res.Rejected))
	}
	if len(res.Accepted) == 0 {
		return out, nil
	}

	var selection []upload.UploadedFile
	if c.spec.Multi {
		selection = append(selection, currentFiles(c.state)...)
		selection = append(selection, res.Accepted...)
		if limit := c.limits.MaxFiles; limit > 0 && len(selection) > limit {
			return SelectResult{}, fmt.Errorf("%w: %d selected, at most %d allowed", upload.ErrTooManyFiles, len(selection), limit)
		}
	} else {
		selection = res.Accepted[:1]
		for _, f := range res.Accepted[1:] {
			out.Rejected = append(out.Rejected, f.DisplayName())
		}
	}

	if err := c.applyLocked(ctx, SelectFiles{Files: selection}); err != nil {
		return SelectResult{}, err
	}
	if c.notes != nil {
		c.notes.Drain()
	}
	for _, f := range selection {
		out.Accepted = append(out.Accepted, f.DisplayName())
	}
	logging.Logf("[WORKSPACE] %s session %s: %d files selected", c.spec.Tool, c.id, len(selection))

	if c.spec.AutoStart {
		jobID, err := c.runLocked(RunOptions{})
		if err != nil {
			return out, err
		}
		out.JobID = jobID
	}
	return out, nil
}

// RemoveFile drops the file at index from the selection.
func (c *Controller) RemoveFile(ctx context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sel, ok := c.state.(FilesSelected)
	if !ok {
		return c.stateErrLocked()
	}
	if index < 0 || index >= len(sel.Files) {
		return fmt.Errorf("%w: no file at index %d", ErrInvalidTransition, index)
	}
	files := make([]upload.UploadedFile, 0, len(sel.Files)-1)
	files = append(files, sel.Files[:index]...)
	files = append(files, sel.Files[index+1:]...)
	c.lastUsed = time.Now()
	return c.applyLocked(ctx, SelectFiles{Files: files})
}

// Reorder moves the file at from to position to. Merge output follows the
// selection order.
func (c *Controller) Reorder(ctx context.Context, from, to int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sel, ok := c.state.(FilesSelected)
	if !ok {
		return c.stateErrLocked()
	}
	n := len(sel.Files)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: cannot move %d to %d", ErrInvalidTransition, from, to)
	}
	files := make([]upload.UploadedFile, 0, n)
	files = append(files, sel.Files[:from]...)
	files = append(files, sel.Files[from+1:]...)
	moved := sel.Files[from]
	files = append(files[:to], append([]upload.UploadedFile{moved}, files[to:]...)...)
	c.lastUsed = time.Now()
	return c.applyLocked(ctx, SelectFiles{Files: files})
}

func (c *Controller) stateErrLocked() error {
	if c.closed {
		return ErrClosed
	}
	if _, ok := c.state.(Processing); ok {
		return ErrBusy
	}
	return fmt.Errorf("%w: no files selected", ErrInvalidTransition)
}

// Run starts processing the selection and returns the job id. It refuses
// while a run is in progress.
func (c *Controller) Run(opts RunOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	c.lastUsed = time.Now()
	return c.runLocked(opts)
}

func (c *Controller) runLocked(opts RunOptions) (string, error) {
	jobID := uuid.NewString()
	next, err := Transition(c.spec, c.state, Start{JobID: jobID})
	if err != nil {
		return "", err
	}
	proc := next.(Processing)

	c.stopTimerLocked()
	c.state = proc
	c.gen++
	gen := c.gen

	var notes []annotation.Annotation
	if c.notes != nil {
		notes = c.notes.List()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.opts.Jobs.Create(jobID, string(c.spec.Tool))
	c.opts.Jobs.SetOperation(jobID, string(c.spec.Tool))

	c.wg.Add(1)
	go c.execute(ctx, gen, jobID, proc.Files, opts, notes)
	return jobID, nil
}

func (c *Controller) execute(ctx context.Context, gen uint64, jobID string, files []upload.UploadedFile, opts RunOptions, notes []annotation.Annotation) {
	defer c.wg.Done()
	start := time.Now()
	logging.Logf("[%s] Job %s started with %d files", logTag(c.spec.Tool), jobID, len(files))

	var (
		out produced
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panicked: %v", c.spec.Tool, r)
			}
		}()
		out, err = produce(ctx, c.spec, files, opts, notes, func(p int) { c.progress(gen, jobID, p) })
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		logging.Logf("[%s] Job %s discarded after reset", logTag(c.spec.Tool), jobID)
		return
	}
	c.cancel = nil

	if err == nil {
		var res Result
		res, err = c.publishLocked(ctx, out)
		if err == nil {
			next, terr := Transition(c.spec, c.state, Complete{JobID: jobID, Result: res})
			if terr != nil {
				next = Success{Result: res}
			}
			c.state = next
			if c.notes != nil {
				c.notes.Drain()
			}
			c.opts.Jobs.Update(jobID, jobs.StatusSuccess, "backend.status.complete", jobData(res))
			c.opts.Metrics.ObserveOperation(string(c.spec.Tool), "success", time.Since(start))
			logging.Logf("[%s] Job %s finished in %s", logTag(c.spec.Tool), jobID, time.Since(start).Round(time.Millisecond))
			c.scheduleResetLocked(gen)
			return
		}
	}

	key := MessageKey(err)
	next, terr := Transition(c.spec, c.state, Fail{JobID: jobID, Message: key, Kind: pdfops.KindOf(err).String()})
	if terr != nil {
		next = Failed{Message: key, Kind: pdfops.KindOf(err).String()}
	}
	c.state = next
	c.opts.Jobs.Update(jobID, jobs.StatusError, key, nil)
	c.opts.Metrics.ObserveOperation(string(c.spec.Tool), "error", time.Since(start))
	logging.Warnf("[%s] Job %s failed: %v", logTag(c.spec.Tool), jobID, err)
	c.scheduleResetLocked(gen)
}

// publishLocked turns produced bytes into object URLs. On failure the
// URLs already created are revoked.
func (c *Controller) publishLocked(ctx context.Context, out produced) (Result, error) {
	res := Result{Text: out.text, Compression: out.compression}
	for i, b := range out.blobs {
		url, err := c.urls.Create(ctx, b)
		if err != nil {
			for _, o := range res.Outputs {
				_ = c.urls.Revoke(ctx, o.URL)
			}
			return Result{}, fmt.Errorf("failed to publish %s: %w", b.Name, err)
		}
		o := Output{URL: url, ContentType: b.ContentType, Size: int64(len(b.Data)), Name: b.Name}
		if e, ok := c.opts.Registry.Lookup(url); ok {
			o.Name = e.Name
			o.ContentType = e.ContentType
		}
		if i < len(out.pages) {
			o.Page = out.pages[i]
		}
		res.Outputs = append(res.Outputs, o)
	}
	return res, nil
}

func jobData(res Result) map[string]string {
	data := map[string]string{"count": strconv.Itoa(len(res.Outputs))}
	if len(res.Outputs) > 0 {
		data["url"] = res.Outputs[0].URL
		data["name"] = res.Outputs[0].Name
	}
	return data
}

func (c *Controller) progress(gen uint64, jobID string, p int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	if _, err := Transition(c.spec, c.state, Progress{Percent: p}); err != nil {
		return
	}
	c.opts.Jobs.UpdateProgress(jobID, p)
}

// Reset returns the session to idle. A running job is cancelled and its
// result dropped, and every URL the session created is revoked.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.lastUsed = time.Now()
	return c.resetLocked(ctx)
}

func (c *Controller) resetLocked(ctx context.Context) error {
	if p, ok := c.state.(Processing); ok {
		c.opts.Jobs.Update(p.JobID, jobs.StatusError, "backend.errors.cancelled", nil)
	}
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.stopTimerLocked()
	next, _ := Transition(c.spec, c.state, Reset{})
	c.state = next
	if c.notes != nil {
		c.notes.Drain()
	}
	if err := c.urls.RevokeAll(ctx); err != nil {
		return fmt.Errorf("failed to revoke session urls: %w", err)
	}
	return nil
}

// Close resets the session for good and waits for a cancelled run to
// return.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	err := c.resetLocked(ctx)
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
	logging.Logf("[WORKSPACE] %s session %s closed", c.spec.Tool, c.id)
	return err
}

func (c *Controller) scheduleResetLocked(gen uint64) {
	if c.opts.AutoReset <= 0 {
		return
	}
	c.stopTimerLocked()
	c.timer = time.AfterFunc(c.opts.AutoReset, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || gen != c.gen {
			return
		}
		switch c.state.(type) {
		case Success, Failed:
			if err := c.resetLocked(context.Background()); err != nil {
				logging.Warnf("[WORKSPACE] Auto reset of %s: %v", c.id, err)
			}
		}
	})
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) applyLocked(ctx context.Context, e Event) error {
	prev := c.state
	next, err := Transition(c.spec, prev, e)
	if err != nil {
		return err
	}
	if _, ok := prev.(Success); ok {
		c.stopTimerLocked()
		if err := c.urls.RevokeAll(ctx); err != nil {
			logging.Warnf("[WORKSPACE] Revoking previous results of %s: %v", c.id, err)
		}
	}
	c.state = next
	return nil
}

func currentFiles(s State) []upload.UploadedFile {
	switch st := s.(type) {
	case FilesSelected:
		return st.Files
	case Failed:
		return st.Files
	}
	return nil
}

// Casers are stateful, so each call gets its own.
func logTag(t Tool) string { return cases.Upper(language.Und).String(string(t)) }

// Annotate adds an overlay to the selected document. Only edit sessions
// with a document selected accept annotations.
func (c *Controller) Annotate(a annotation.Annotation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.notes == nil {
		return fmt.Errorf("%w: %s does not take annotations", ErrInvalidTransition, c.spec.Tool)
	}
	switch c.state.(type) {
	case FilesSelected, Failed:
	case Processing:
		return ErrBusy
	default:
		return fmt.Errorf("%w: no document selected", ErrInvalidTransition)
	}
	c.lastUsed = time.Now()
	return c.notes.Add(a)
}
