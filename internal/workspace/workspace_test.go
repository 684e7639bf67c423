package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rmitchellscott/pdfdesk/internal/annotation"
	"github.com/rmitchellscott/pdfdesk/internal/jobs"
	"github.com/rmitchellscott/pdfdesk/internal/objurl"
	"github.com/rmitchellscott/pdfdesk/internal/pdfops"
	"github.com/rmitchellscott/pdfdesk/internal/storage"
	"github.com/rmitchellscott/pdfdesk/internal/upload"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: 90, B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func pdfFile(t *testing.T, name string, pages int) upload.UploadedFile {
	t.Helper()
	imgs := make([]pdfops.Image, pages)
	for i := range imgs {
		imgs[i] = pdfops.Image{Name: fmt.Sprintf("%d.png", i), Data: pngBytes(t, 20+i, 20)}
	}
	data, err := pdfops.ImagesToPDF(context.Background(), imgs, pdfops.Portrait, nil)
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return upload.FromBytes(name, "application/pdf", data)
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Registry:      objurl.NewRegistry(storage.NewFilesystemBackend(t.TempDir()), nil),
		Jobs:          jobs.NewStore(),
		MaxPDFFiles:   10,
		MaxImageFiles: 10,
		MaxBytes:      10 << 20,
	}
}

func newController(t *testing.T, tool Tool, opts Options) *Controller {
	t.Helper()
	c := NewController("test-"+string(tool), specs[tool], opts)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func waitDone(t *testing.T, c *Controller) State {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		switch s := c.State().(type) {
		case Success, Failed:
			return s
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session still %s", c.State().Name())
	return nil
}

func TestTransition(t *testing.T) {
	merge, split := specs[ToolMerge], specs[ToolSplit]
	one := []upload.UploadedFile{upload.FromBytes("a.pdf", "application/pdf", []byte("x"))}
	two := append(one, upload.FromBytes("b.pdf", "application/pdf", []byte("y")))

	tests := []struct {
		name    string
		spec    Spec
		state   State
		event   Event
		want    string
		wantErr error
	}{
		{"select from idle", merge, Idle{}, SelectFiles{Files: one}, "files_selected", nil},
		{"empty select is idle", merge, FilesSelected{Files: one}, SelectFiles{}, "idle", nil},
		{"start with nothing", merge, Idle{}, Start{JobID: "j"}, "", ErrNotEnoughFiles},
		{"merge needs two", merge, FilesSelected{Files: one}, Start{JobID: "j"}, "", ErrNotEnoughFiles},
		{"merge starts with two", merge, FilesSelected{Files: two}, Start{JobID: "j"}, "processing", nil},
		{"split takes exactly one", split, FilesSelected{Files: two}, Start{JobID: "j"}, "", ErrInvalidTransition},
		{"split starts", split, FilesSelected{Files: one}, Start{JobID: "j"}, "processing", nil},
		{"busy on select", split, Processing{JobID: "j", Files: one}, SelectFiles{Files: one}, "", ErrBusy},
		{"busy on start", split, Processing{JobID: "j", Files: one}, Start{JobID: "k"}, "", ErrBusy},
		{"progress stays", split, Processing{JobID: "j"}, Progress{Percent: 40}, "processing", nil},
		{"complete", split, Processing{JobID: "j"}, Complete{JobID: "j"}, "success", nil},
		{"stale complete", split, Processing{JobID: "j"}, Complete{JobID: "old"}, "", ErrInvalidTransition},
		{"fail", split, Processing{JobID: "j", Files: one}, Fail{JobID: "j", Message: "m"}, "error", nil},
		{"retry after failure", split, Failed{Files: one}, Start{JobID: "k"}, "processing", nil},
		{"complete while idle", split, Idle{}, Complete{JobID: "j"}, "", ErrInvalidTransition},
		{"progress after success", split, Success{}, Progress{Percent: 1}, "", ErrInvalidTransition},
		{"select after success", split, Success{}, SelectFiles{Files: one}, "files_selected", nil},
		{"reset while processing", split, Processing{JobID: "j"}, Reset{}, "idle", nil},
		{"reset from error", split, Failed{}, Reset{}, "idle", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.spec, tt.state, tt.event)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Name() != tt.want {
				t.Errorf("state = %s, want %s", got.Name(), tt.want)
			}
		})
	}
}

func TestFailedKeepsFiles(t *testing.T) {
	files := []upload.UploadedFile{upload.FromBytes("a.pdf", "application/pdf", []byte("x"))}
	got, err := Transition(specs[ToolSplit], Processing{JobID: "j", Files: files}, Fail{JobID: "j", Message: "backend.errors.corrupt_pdf"})
	if err != nil {
		t.Fatal(err)
	}
	f := got.(Failed)
	if len(f.Files) != 1 || f.Message != "backend.errors.corrupt_pdf" {
		t.Errorf("failed = %+v", f)
	}
}

func TestMergeRunAndReset(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	c := newController(t, ToolMerge, opts)

	if _, err := c.Select(ctx, []upload.UploadedFile{pdfFile(t, "a.pdf", 2)}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Run(RunOptions{}); !errors.Is(err, ErrNotEnoughFiles) {
		t.Fatalf("Run with one file: %v", err)
	}
	res, err := c.Select(ctx, []upload.UploadedFile{pdfFile(t, "b.pdf", 1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Accepted) != 2 {
		t.Fatalf("accepted = %v, want both files", res.Accepted)
	}

	jobID, err := c.Run(RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	st, ok := waitDone(t, c).(Success)
	if !ok {
		t.Fatalf("state = %+v", c.State())
	}
	if len(st.Result.Outputs) != 1 || st.Result.Outputs[0].Name != MergedName {
		t.Fatalf("outputs = %+v", st.Result.Outputs)
	}
	job, ok := opts.Jobs.Get(jobID)
	if !ok || job.Status != jobs.StatusSuccess || job.Progress != 100 {
		t.Errorf("job = %+v", job)
	}
	if job.Data["url"] != st.Result.Outputs[0].URL {
		t.Errorf("job url = %q", job.Data["url"])
	}

	_, rc, err := opts.Registry.Open(ctx, st.Result.Outputs[0].URL)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(rc)
	rc.Close()
	n, err := pdfops.PageCount(pdfops.Input{Name: "merged", Data: buf.Bytes()})
	if err != nil || n != 3 {
		t.Errorf("merged pages = %d, %v", n, err)
	}

	if err := c.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.State().(Idle); !ok {
		t.Errorf("state after reset = %s", c.State().Name())
	}
	if opts.Registry.Len() != 0 {
		t.Errorf("registry still holds %d blobs", opts.Registry.Len())
	}
}

func TestSelectRejectsWrongType(t *testing.T) {
	c := newController(t, ToolMerge, testOptions(t))
	res, err := c.Select(context.Background(), []upload.UploadedFile{
		upload.FromBytes("notes.txt", "text/plain", []byte("hello")),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Accepted) != 0 || len(res.Rejected) != 1 || res.Rejected[0] != "notes.txt" {
		t.Errorf("result = %+v", res)
	}
	if _, ok := c.State().(Idle); !ok {
		t.Errorf("state = %s, want idle", c.State().Name())
	}
}

func TestSingleFileToolReplaces(t *testing.T) {
	ctx := context.Background()
	c := newController(t, ToolSplit, testOptions(t))
	if _, err := c.Select(ctx, []upload.UploadedFile{pdfFile(t, "first.pdf", 1)}); err != nil {
		t.Fatal(err)
	}
	res, err := c.Select(ctx, []upload.UploadedFile{pdfFile(t, "second.pdf", 1), pdfFile(t, "third.pdf", 1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rejected) != 1 || res.Rejected[0] != "third.pdf" {
		t.Errorf("rejected = %v", res.Rejected)
	}
	v := c.View()
	if len(v.Files) != 1 || v.Files[0].Name != "second.pdf" {
		t.Errorf("files = %+v", v.Files)
	}
}

func TestTooManyFilesAcrossSelections(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	opts.MaxPDFFiles = 2
	c := newController(t, ToolMerge, opts)
	if _, err := c.Select(ctx, []upload.UploadedFile{pdfFile(t, "a.pdf", 1), pdfFile(t, "b.pdf", 1)}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Select(ctx, []upload.UploadedFile{pdfFile(t, "c.pdf", 1)}); !errors.Is(err, upload.ErrTooManyFiles) {
		t.Fatalf("err = %v", err)
	}
	if got := len(c.View().Files); got != 2 {
		t.Errorf("selection changed to %d files", got)
	}
}

func TestRemoveAndReorder(t *testing.T) {
	ctx := context.Background()
	c := newController(t, ToolMerge, testOptions(t))
	files := []upload.UploadedFile{
		upload.FromBytes("a.pdf", "application/pdf", []byte("%PDF-a")),
		upload.FromBytes("b.pdf", "application/pdf", []byte("%PDF-b")),
		upload.FromBytes("c.pdf", "application/pdf", []byte("%PDF-c")),
	}
	if _, err := c.Select(ctx, files); err != nil {
		t.Fatal(err)
	}
	if err := c.Reorder(ctx, 2, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveFile(ctx, 1); err != nil {
		t.Fatal(err)
	}
	v := c.View()
	if len(v.Files) != 2 || v.Files[0].Name != "c.pdf" || v.Files[1].Name != "b.pdf" {
		t.Errorf("files = %+v", v.Files)
	}
	if err := c.RemoveFile(ctx, 5); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("out of range remove: %v", err)
	}
}

func TestCorruptInputFails(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	c := newController(t, ToolSplit, opts)
	if _, err := c.Select(ctx, []upload.UploadedFile{upload.FromBytes("broken.pdf", "application/pdf", []byte("%PDF-1.4 nonsense"))}); err != nil {
		t.Fatal(err)
	}
	jobID, err := c.Run(RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	f, ok := waitDone(t, c).(Failed)
	if !ok {
		t.Fatalf("state = %s", c.State().Name())
	}
	if f.Message != "backend.errors.corrupt_pdf" {
		t.Errorf("message = %q", f.Message)
	}
	if job, _ := opts.Jobs.Get(jobID); job.Status != jobs.StatusError {
		t.Errorf("job status = %s", job.Status)
	}
	if opts.Registry.Len() != 0 {
		t.Errorf("failed run left %d blobs", opts.Registry.Len())
	}
}

func TestCompressEncryptedFails(t *testing.T) {
	plain := pdfFile(t, "plain.pdf", 1)
	for _, ownerOnly := range []bool{false, true} {
		userPW := "user-secret"
		if ownerOnly {
			userPW = ""
		}
		var enc bytes.Buffer
		if err := api.Encrypt(bytes.NewReader(plain.Data), &enc, model.NewAESConfiguration(userPW, "owner-secret", 256)); err != nil {
			t.Fatalf("Encrypt: %v", err)
		}

		ctx := context.Background()
		opts := testOptions(t)
		c := newController(t, ToolCompress, opts)
		if _, err := c.Select(ctx, []upload.UploadedFile{upload.FromBytes("locked.pdf", "application/pdf", enc.Bytes())}); err != nil {
			t.Fatal(err)
		}
		if _, err := c.Run(RunOptions{}); err != nil {
			t.Fatal(err)
		}
		f, ok := waitDone(t, c).(Failed)
		if !ok {
			t.Fatalf("owner only %v: state = %s", ownerOnly, c.State().Name())
		}
		if f.Message != "backend.errors.password_protected" {
			t.Errorf("owner only %v: message = %q", ownerOnly, f.Message)
		}
		if c.URLs().ActiveCount() != 0 || opts.Registry.Len() != 0 {
			t.Errorf("owner only %v: active urls = %d, blobs = %d", ownerOnly, c.URLs().ActiveCount(), opts.Registry.Len())
		}
	}
}

func TestImagesSinglePortraitPage(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	c := newController(t, ToolImages, opts)
	img := upload.FromBytes("photo.png", "image/png", pngBytes(t, 80, 50))
	if _, err := c.Select(ctx, []upload.UploadedFile{img}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Run(RunOptions{}); err != nil {
		t.Fatal(err)
	}
	st, ok := waitDone(t, c).(Success)
	if !ok || len(st.Result.Outputs) != 1 {
		t.Fatalf("state = %+v", c.State())
	}

	_, rc, err := opts.Registry.Open(ctx, st.Result.Outputs[0].URL)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatal(err)
	}
	dims, err := pdfops.PageSizes(pdfops.Input{Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if len(dims) != 1 || math.Abs(dims[0].Width-pdfops.A4Width) > 0.01 || math.Abs(dims[0].Height-pdfops.A4Height) > 0.01 {
		t.Fatalf("pages = %v, want one portrait A4 page", dims)
	}

	// the image is drawn at its own size, centred
	pctx, err := api.ReadAndValidate(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		t.Fatal(err)
	}
	r, err := pdfcpu.ExtractPageContent(pctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	content, _ := io.ReadAll(r)
	var w, b, cc, h, x, y float64
	i := strings.Index(string(content), "q ")
	if i < 0 {
		t.Fatalf("content %q", content)
	}
	if _, err := fmt.Sscanf(string(content[i:]), "q %f %f %f %f %f %f cm", &w, &b, &cc, &h, &x, &y); err != nil {
		t.Fatalf("content %q: %v", content, err)
	}
	want := [4]float64{80, 50, (pdfops.A4Width - 80) / 2, (pdfops.A4Height - 50) / 2}
	for k, got := range [4]float64{w, h, x, y} {
		if math.Abs(got-want[k]) > 0.01 {
			t.Fatalf("image matrix = %v %v %v %v, want %v", w, h, x, y, want)
		}
	}
}

func TestResetDiscardsRunningResult(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	c := NewController("discard", specs[ToolSplit], opts)
	if _, err := c.Select(ctx, []upload.UploadedFile{pdfFile(t, "doc.pdf", 4)}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Run(RunOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := c.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if opts.Registry.Len() != 0 {
		t.Errorf("discarded run created %d blobs", opts.Registry.Len())
	}
	if _, ok := c.State().(Idle); !ok {
		t.Errorf("state = %s", c.State().Name())
	}
	if _, err := c.Run(RunOptions{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Run after Close: %v", err)
	}
}

func TestSplitOutputs(t *testing.T) {
	ctx := context.Background()
	c := newController(t, ToolSplit, testOptions(t))
	if _, err := c.Select(ctx, []upload.UploadedFile{pdfFile(t, "report.pdf", 3)}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Run(RunOptions{}); err != nil {
		t.Fatal(err)
	}
	st, ok := waitDone(t, c).(Success)
	if !ok {
		t.Fatalf("state = %+v", c.State())
	}
	if len(st.Result.Outputs) != 3 {
		t.Fatalf("outputs = %d", len(st.Result.Outputs))
	}
	for i, o := range st.Result.Outputs {
		if want := fmt.Sprintf("report-page-%d.pdf", i+1); o.Name != want || o.Page != i+1 {
			t.Errorf("output %d = %s page %d", i, o.Name, o.Page)
		}
	}
	if c.URLs().ActiveCount() != 3 {
		t.Errorf("active urls = %d", c.URLs().ActiveCount())
	}
}

func TestAutoReset(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	opts.AutoReset = 50 * time.Millisecond
	c := newController(t, ToolImages, opts)
	img := upload.FromBytes("photo.png", "image/png", pngBytes(t, 30, 20))
	if _, err := c.Select(ctx, []upload.UploadedFile{img}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Run(RunOptions{Orientation: pdfops.Landscape}); err != nil {
		t.Fatal(err)
	}
	if _, ok := waitDone(t, c).(Success); !ok {
		t.Fatalf("state = %+v", c.State())
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.State().(Idle); ok && opts.Registry.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no auto reset: state %s, %d blobs", c.State().Name(), opts.Registry.Len())
}

func TestExtractStartsOnSelect(t *testing.T) {
	c := newController(t, ToolExtract, testOptions(t))
	res, err := c.Select(context.Background(), []upload.UploadedFile{pdfFile(t, "scan.pdf", 1)})
	if err != nil {
		t.Fatal(err)
	}
	if res.JobID == "" {
		t.Fatal("extract did not start")
	}
	waitDone(t, c)
}

func TestEditBakesAnnotations(t *testing.T) {
	ctx := context.Background()
	c := newController(t, ToolEdit, testOptions(t))
	if _, err := c.Select(ctx, []upload.UploadedFile{pdfFile(t, "form.pdf", 1)}); err != nil {
		t.Fatal(err)
	}
	if c.Annotations() == nil {
		t.Fatal("edit session has no annotations")
	}
	a, err := annotation.New(annotation.KindText, 0, 10, 10, "Approved")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Annotations().Add(a); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Run(RunOptions{}); err != nil {
		t.Fatal(err)
	}
	st, ok := waitDone(t, c).(Success)
	if !ok {
		t.Fatalf("state = %+v", c.State())
	}
	if got := st.Result.Outputs[0].Name; got != "edited_form.pdf" {
		t.Errorf("name = %q", got)
	}
	if c.Annotations().Len() != 0 {
		t.Error("annotations not cleared after baking")
	}
}

func TestMessageKey(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&pdfops.OpError{Op: "merge", Kind: pdfops.KindEncrypted, Err: errors.New("x")}, "backend.errors.password_protected"},
		{fmt.Errorf("wrapped: %w", &pdfops.OpError{Op: "split", Kind: pdfops.KindCorrupt, Err: errors.New("x")}), "backend.errors.corrupt_pdf"},
		{&pdfops.OpError{Op: "images", Kind: pdfops.KindUnsupported, Err: errors.New("x")}, "backend.errors.unsupported_file"},
		{&pdfops.OpError{Op: "merge", Kind: pdfops.KindInvalidInput, Err: errors.New("x")}, "backend.errors.invalid_input"},
		{ErrBusy, "backend.errors.operation_in_progress"},
		{context.Canceled, "backend.errors.cancelled"},
		{errors.New("disk full"), "backend.errors.operation_failed"},
	}
	for _, tt := range tests {
		if got := MessageKey(tt.err); got != tt.want {
			t.Errorf("MessageKey(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestOutputNames(t *testing.T) {
	if got := SplitName("dir/My Report.pdf", 2); got != "My Report-page-2.pdf" {
		t.Errorf("SplitName = %q", got)
	}
	if got := TextName("scan.pdf"); got != "scan_text.txt" {
		t.Errorf("TextName = %q", got)
	}
	if got := CompressedName("big.pdf"); got != "big-compressed.pdf" {
		t.Errorf("CompressedName = %q", got)
	}
	if got := EditedName("form.pdf"); got != "edited_form.pdf" {
		t.Errorf("EditedName = %q", got)
	}
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := NewSessions(testOptions(t), time.Minute)

	if _, err := s.Open("shred"); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("unknown tool: %v", err)
	}
	c, err := s.Open("split")
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := s.Get(c.ID()); !ok || got != c {
		t.Fatal("session not registered")
	}
	if n := s.Reap(ctx, time.Now()); n != 0 {
		t.Errorf("reaped %d fresh sessions", n)
	}
	if n := s.Reap(ctx, time.Now().Add(2*time.Minute)); n != 1 {
		t.Errorf("reaped %d, want 1", n)
	}
	if s.Len() != 0 {
		t.Errorf("len = %d", s.Len())
	}
	if _, err := c.Run(RunOptions{}); !errors.Is(err, ErrClosed) {
		t.Errorf("reaped session still runs: %v", err)
	}

	c2, _ := s.Open("merge")
	if err := s.Close(ctx, c2.ID()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx, c2.ID()); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("double close: %v", err)
	}

	s.Open("images")
	s.Open("edit")
	if err := s.CloseAll(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Errorf("len after CloseAll = %d", s.Len())
	}
}
