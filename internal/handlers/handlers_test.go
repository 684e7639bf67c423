package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rmitchellscott/pdfdesk/internal/ai"
	"github.com/rmitchellscott/pdfdesk/internal/auth"
	"github.com/rmitchellscott/pdfdesk/internal/config"
	"github.com/rmitchellscott/pdfdesk/internal/jobs"
	"github.com/rmitchellscott/pdfdesk/internal/metrics"
	"github.com/rmitchellscott/pdfdesk/internal/objurl"
	"github.com/rmitchellscott/pdfdesk/internal/pdfops"
	"github.com/rmitchellscott/pdfdesk/internal/storage"
	"github.com/rmitchellscott/pdfdesk/internal/workspace"
)

func init() { gin.SetMode(gin.TestMode) }

type memKeys struct {
	mu  sync.Mutex
	key string
}

func (m *memKeys) APIKey(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key, nil
}

func (m *memKeys) SaveAPIKey(_ context.Context, k string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = k
	return nil
}

func (m *memKeys) DeleteAPIKey(ctx context.Context) error { return m.SaveAPIKey(ctx, "") }

type fakeAI struct {
	lastKey  string
	lastText string
	err      error
}

func (f *fakeAI) Doctor(_ context.Context, key, text string) (ai.Analysis, error) {
	f.lastKey, f.lastText = key, text
	if f.err != nil {
		return ai.Analysis{}, f.err
	}
	return ai.Analysis{Issues: []ai.Issue{}, ImprovedContent: "Better.", Summary: "Fine."}, nil
}

func (f *fakeAI) Chat(_ context.Context, key, doc, msg string) (string, error) {
	f.lastKey, f.lastText = key, doc
	if f.err != nil {
		return "", f.err
	}
	return "**" + msg + "**", nil
}

type harness struct {
	router    *gin.Engine
	registry  *objurl.Registry
	sessions  *workspace.Sessions
	downloads *objurl.Manager
	keys      *memKeys
	ai        *fakeAI
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		Limits: config.Limits{MaxUploadBytes: 10 << 20, MaxPDFFiles: 5, MaxImageFiles: 5},
		Auth:   config.AuthConfig{JWTSecret: "test"},
	}
	m := metrics.New()
	reg := objurl.NewRegistry(storage.NewFilesystemBackend(t.TempDir()), m)
	store := jobs.NewStore()
	sessions := workspace.NewSessions(workspace.Options{
		Registry:      reg,
		Jobs:          store,
		Metrics:       m,
		MaxPDFFiles:   5,
		MaxImageFiles: 5,
		MaxBytes:      10 << 20,
	}, time.Hour)
	t.Cleanup(func() { _ = sessions.CloseAll(context.Background()) })

	h := &harness{
		registry:  reg,
		sessions:  sessions,
		downloads: objurl.NewManager(reg, objurl.GlobalOwner),
		keys:      &memKeys{},
		ai:        &fakeAI{},
	}
	srv := New(Deps{
		Config:    cfg,
		Sessions:  sessions,
		Jobs:      store,
		Registry:  reg,
		Auth:      auth.New(cfg.Auth),
		Keys:      h.keys,
		AI:        h.ai,
		Metrics:   m,
		Downloads: h.downloads,
	})
	h.router = gin.New()
	srv.Register(h.router)
	return h
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(auth.SessionTokenHeader, token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

type part struct {
	name, contentType string
	data              []byte
}

func (h *harness) upload(t *testing.T, path, token, field string, parts ...part) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, p.name))
		hdr.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		w.Write(p.data)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set(auth.SessionTokenHeader, token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 16))
	for x := 0; x < 24; x++ {
		img.Set(x, x%16, color.Black)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func pdfBytes(t *testing.T, pages int) []byte {
	t.Helper()
	imgs := make([]pdfops.Image, pages)
	for i := range imgs {
		imgs[i] = pdfops.Image{Name: "p.png", Data: pngBytes(t)}
	}
	data, err := pdfops.ImagesToPDF(context.Background(), imgs, pdfops.Portrait, nil)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

type created struct {
	SessionID string         `json:"sessionId"`
	Token     string         `json:"token"`
	State     workspace.View `json:"state"`
}

func (h *harness) open(t *testing.T, tool string) created {
	t.Helper()
	w := h.do(t, http.MethodPost, "/api/sessions", "", map[string]string{"tool": tool})
	if w.Code != http.StatusCreated {
		t.Fatalf("open %s: %d %s", tool, w.Code, w.Body.String())
	}
	return decode[created](t, w)
}

func (h *harness) waitDone(t *testing.T, s created) workspace.View {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		v := decode[workspace.View](t, h.do(t, http.MethodGet, "/api/sessions/"+s.SessionID, s.Token, nil))
		if v.State == "success" || v.State == "error" {
			return v
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("session never finished")
	return workspace.View{}
}

func TestMergeOverHTTP(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, "merge")
	if s.State.State != "idle" {
		t.Fatalf("initial state = %s", s.State.State)
	}
	base := "/api/sessions/" + s.SessionID

	w := h.upload(t, base+"/files", s.Token, "files",
		part{"one.pdf", "application/pdf", pdfBytes(t, 1)},
		part{"two.pdf", "application/pdf", pdfBytes(t, 2)},
		part{"notes.txt", "text/plain", []byte("not a pdf")},
	)
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	up := decode[struct {
		Accepted []string `json:"accepted"`
		Rejected []string `json:"rejected"`
	}](t, w)
	if len(up.Accepted) != 2 || len(up.Rejected) != 1 || up.Rejected[0] != "notes.txt" {
		t.Fatalf("upload result = %+v", up)
	}

	w = h.do(t, http.MethodPost, base+"/run", s.Token, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("run: %d %s", w.Code, w.Body.String())
	}
	jobID := decode[struct {
		JobID string `json:"jobId"`
	}](t, w).JobID

	v := h.waitDone(t, s)
	if v.State != "success" || v.Result == nil || len(v.Result.Outputs) != 1 {
		t.Fatalf("view = %+v", v)
	}
	out := v.Result.Outputs[0]

	if w := h.do(t, http.MethodGet, "/api/jobs/"+jobID, "", nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"success"`) {
		t.Errorf("job: %d %s", w.Code, w.Body.String())
	}

	w = h.do(t, http.MethodGet, out.URL, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("blob: %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="merged-document.pdf"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if n, err := pdfops.PageCount(pdfops.Input{Data: w.Body.Bytes()}); err != nil || n != 3 {
		t.Errorf("merged pages = %d, %v", n, err)
	}

	if w := h.do(t, http.MethodDelete, base, s.Token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete session: %d", w.Code)
	}
	if w := h.do(t, http.MethodGet, out.URL, "", nil); w.Code != http.StatusNotFound {
		t.Errorf("blob after close: %d", w.Code)
	}
	if h.registry.Len() != 0 {
		t.Errorf("registry holds %d blobs", h.registry.Len())
	}
}

func TestRunNeedsEnoughFiles(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, "merge")
	base := "/api/sessions/" + s.SessionID
	h.upload(t, base+"/files", s.Token, "files", part{"one.pdf", "application/pdf", pdfBytes(t, 1)})

	w := h.do(t, http.MethodPost, base+"/run", s.Token, nil)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "backend.errors.not_enough_files") {
		t.Errorf("run: %d %s", w.Code, w.Body.String())
	}
}

func TestSessionTokenRequired(t *testing.T) {
	h := newHarness(t)
	a := h.open(t, "split")
	b := h.open(t, "split")

	tests := []struct {
		name  string
		id    string
		token string
		want  int
	}{
		{"no token", a.SessionID, "", http.StatusUnauthorized},
		{"other session's token", a.SessionID, b.Token, http.StatusForbidden},
		{"own token", a.SessionID, a.Token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := h.do(t, http.MethodGet, "/api/sessions/"+tt.id, tt.token, nil); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestUnknownTool(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/api/sessions", "", map[string]string{"tool": "shred"})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "backend.errors.unknown_tool") {
		t.Errorf("%d %s", w.Code, w.Body.String())
	}
}

func TestEditAnnotations(t *testing.T) {
	h := newHarness(t)
	s := h.open(t, "edit")
	base := "/api/sessions/" + s.SessionID
	note := map[string]any{"type": "text", "page": 0, "x": 10, "y": 10, "content": "Approved"}

	if w := h.do(t, http.MethodPost, base+"/annotations", s.Token, note); w.Code != http.StatusConflict {
		t.Errorf("annotation before upload: %d", w.Code)
	}
	h.upload(t, base+"/files", s.Token, "file", part{"form.pdf", "application/pdf", pdfBytes(t, 1)})

	w := h.do(t, http.MethodPost, base+"/annotations", s.Token, note)
	if w.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", w.Code, w.Body.String())
	}
	id := decode[struct {
		ID string `json:"id"`
	}](t, w).ID

	bad := map[string]any{"type": "signature", "page": 0, "x": 5, "y": 5, "content": "data:text/plain;base64,aGk="}
	if w := h.do(t, http.MethodPost, base+"/annotations", s.Token, bad); w.Code != http.StatusBadRequest {
		t.Errorf("bad signature: %d", w.Code)
	}

	if w := h.do(t, http.MethodPatch, base+"/annotations/"+id, s.Token, map[string]float64{"x": 150, "y": -4}); w.Code != http.StatusOK {
		t.Fatalf("move: %d", w.Code)
	}
	v := decode[workspace.View](t, h.do(t, http.MethodGet, base, s.Token, nil))
	if len(v.Annotations) != 1 || v.Annotations[0].X != 90 || v.Annotations[0].Y != 0 {
		t.Errorf("annotations = %+v", v.Annotations)
	}

	h.do(t, http.MethodPost, base+"/run", s.Token, nil)
	v = h.waitDone(t, s)
	if v.State != "success" || v.Result.Outputs[0].Name != "edited_form.pdf" {
		t.Errorf("view = %+v", v)
	}

	if w := h.do(t, http.MethodDelete, base+"/annotations/"+id, s.Token, nil); w.Code != http.StatusNotFound {
		t.Errorf("delete baked annotation: %d", w.Code)
	}
}

func TestAIRequiresKey(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/api/ai/chat", "", map[string]string{"message": "hi"})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "backend.errors.ai_missing_key") {
		t.Fatalf("chat without key: %d %s", w.Code, w.Body.String())
	}

	if w := h.do(t, http.MethodPut, "/api/settings/api-key", "", map[string]string{"apiKey": "AIza-test-1234"}); w.Code != http.StatusOK {
		t.Fatalf("put key: %d", w.Code)
	}
	w = h.do(t, http.MethodGet, "/api/settings/api-key", "", nil)
	got := decode[struct {
		Configured bool   `json:"configured"`
		Masked     string `json:"masked"`
	}](t, w)
	if !got.Configured || !strings.HasSuffix(got.Masked, "1234") || strings.Contains(got.Masked, "AIza") {
		t.Errorf("get key = %+v", got)
	}

	w = h.do(t, http.MethodPost, "/api/ai/chat", "", map[string]any{"message": "hi", "documentText": "doc", "html": true})
	if w.Code != http.StatusOK {
		t.Fatalf("chat: %d %s", w.Code, w.Body.String())
	}
	reply := decode[map[string]string](t, w)
	if reply["reply"] != "**hi**" || !strings.Contains(reply["html"], "<strong>hi</strong>") {
		t.Errorf("reply = %v", reply)
	}
	if h.ai.lastKey != "AIza-test-1234" || h.ai.lastText != "doc" {
		t.Errorf("ai called with %q, %q", h.ai.lastKey, h.ai.lastText)
	}

	if w := h.do(t, http.MethodDelete, "/api/settings/api-key", "", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete key: %d", w.Code)
	}
}

func TestDoctorErrors(t *testing.T) {
	h := newHarness(t)
	h.keys.key = "k"
	tests := []struct {
		err  error
		code int
		key  string
	}{
		{ai.ErrMalformedResponse, http.StatusBadGateway, "backend.errors.ai_analysis_failed"},
		{ai.ErrRateLimited, http.StatusTooManyRequests, "backend.errors.rate_limited"},
		{&ai.HTTPStatusError{StatusCode: 403, Status: "403 Forbidden"}, http.StatusBadGateway, "backend.errors.ai_invalid_key"},
	}
	for _, tt := range tests {
		h.ai.err = tt.err
		w := h.do(t, http.MethodPost, "/api/ai/doctor", "", map[string]string{"text": "some text"})
		if w.Code != tt.code || !strings.Contains(w.Body.String(), tt.key) {
			t.Errorf("%v: %d %s", tt.err, w.Code, w.Body.String())
		}
	}
}

func TestDoctorPDFRejectsNonPDF(t *testing.T) {
	h := newHarness(t)
	h.keys.key = "k"
	w := h.upload(t, "/api/ai/doctor/pdf", "", "file", part{"photo.png", "image/png", pngBytes(t)})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "photo.png") {
		t.Errorf("%d %s", w.Code, w.Body.String())
	}
}

func TestMetaEndpoints(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/api/config", "/api/version", "/api/tools", "/metrics"} {
		if w := h.do(t, http.MethodGet, path, "", nil); w.Code != http.StatusOK {
			t.Errorf("%s: %d", path, w.Code)
		}
	}
	w := h.do(t, http.MethodGet, "/api/tools", "", nil)
	if !strings.Contains(w.Body.String(), `"tool":"extract"`) {
		t.Errorf("tools = %s", w.Body.String())
	}
}

func TestErrorMessagesAreTranslated(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
	req.Header.Set("Accept-Language", "es-ES,es;q=0.9")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	body := decode[map[string]string](t, w)
	if body["error"] != "backend.errors.job_not_found" || body["message"] == "" || body["message"] == body["error"] {
		t.Errorf("body = %v", body)
	}
	if w.Header().Get("Content-Language") != "es" {
		t.Errorf("Content-Language = %q", w.Header().Get("Content-Language"))
	}
}

func TestReport(t *testing.T) {
	h := newHarness(t)
	a := ai.Analysis{Issues: []ai.Issue{}, ImprovedContent: "Better.", Summary: "Fine."}
	w := h.do(t, http.MethodPost, "/api/ai/report", "", a)
	if w.Code != http.StatusCreated {
		t.Fatalf("%d %s", w.Code, w.Body.String())
	}
	rep := decode[struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	}](t, w)
	if rep.Name != ReportName || !h.downloads.Owns(rep.URL) {
		t.Fatalf("report = %+v, owned = %v", rep, h.downloads.Owns(rep.URL))
	}

	w = h.do(t, http.MethodGet, rep.URL, "", nil)
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if n, err := pdfops.PageCount(pdfops.Input{Data: w.Body.Bytes()}); err != nil || n != 1 {
		t.Errorf("pages = %d, %v", n, err)
	}

	// no session owns a report, so no token is needed to drop it
	if w := h.do(t, http.MethodDelete, rep.URL, "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if h.downloads.ActiveCount() != 0 || h.registry.Len() != 0 {
		t.Errorf("active = %d, registry = %d", h.downloads.ActiveCount(), h.registry.Len())
	}
}

// mergeResult runs a two-file merge and returns the session and its output.
func (h *harness) mergeResult(t *testing.T) (created, string) {
	t.Helper()
	s := h.open(t, "merge")
	base := "/api/sessions/" + s.SessionID
	h.upload(t, base+"/files", s.Token, "files",
		part{"one.pdf", "application/pdf", pdfBytes(t, 1)},
		part{"two.pdf", "application/pdf", pdfBytes(t, 1)},
	)
	if w := h.do(t, http.MethodPost, base+"/run", s.Token, nil); w.Code != http.StatusAccepted {
		t.Fatalf("run: %d %s", w.Code, w.Body.String())
	}
	v := h.waitDone(t, s)
	if v.State != "success" || v.Result == nil {
		t.Fatalf("view = %+v", v)
	}
	return s, v.Result.Outputs[0].URL
}

func TestDeleteBlobGoesThroughOwner(t *testing.T) {
	h := newHarness(t)
	s, url := h.mergeResult(t)
	other := h.open(t, "split")

	ctrl, ok := h.sessions.Get(s.SessionID)
	if !ok {
		t.Fatal("session missing")
	}
	if !ctrl.URLs().Owns(url) {
		t.Fatal("session does not own its result")
	}

	tests := []struct {
		token string
		want  int
	}{
		{"", http.StatusUnauthorized},
		{other.Token, http.StatusForbidden},
		{"garbage", http.StatusForbidden},
	}
	for _, tt := range tests {
		if w := h.do(t, http.MethodDelete, url, tt.token, nil); w.Code != tt.want {
			t.Errorf("delete with %q: %d, want %d", tt.token, w.Code, tt.want)
		}
	}
	if !ctrl.URLs().Owns(url) || h.registry.Len() != 1 {
		t.Fatal("a foreign caller revoked the result")
	}

	if w := h.do(t, http.MethodDelete, url, s.Token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if ctrl.URLs().Owns(url) || ctrl.URLs().ActiveCount() != 0 || h.registry.Len() != 0 {
		t.Errorf("owns = %v, active = %d, registry = %d", ctrl.URLs().Owns(url), ctrl.URLs().ActiveCount(), h.registry.Len())
	}
	if w := h.do(t, http.MethodGet, url, "", nil); w.Code != http.StatusNotFound {
		t.Errorf("blob after delete: %d", w.Code)
	}
	// already gone
	if w := h.do(t, http.MethodDelete, url, s.Token, nil); w.Code != http.StatusNoContent {
		t.Errorf("second delete: %d", w.Code)
	}
}
