package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rmitchellscott/pdfdesk/internal/config"
)

const goodAnalysis = `{"issues":[{"type":"grammar","text":"teh","suggestion":"the"}],"improvedContent":"The report.","summary":"One typo."}`

// fakeGemini answers every request with reply, or with status if non-zero.
func fakeGemini(t *testing.T, status int, reply string) (*httptest.Server, *atomic.Int32, *atomic.Value) {
	t.Helper()
	var calls atomic.Int32
	var lastPrompt atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("x-goog-api-key") == "" {
			t.Errorf("request without api key")
		}
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
			lastPrompt.Store(req.Contents[0].Parts[0].Text)
		}
		w.Header().Set("Content-Type", "application/json")
		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
			return
		}
		resp := map[string]any{
			"candidates": []any{
				map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": reply}}}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &lastPrompt
}

func newTestClient(url string) *Client {
	return NewClient(config.AIConfig{BaseURL: url, Model: "test-model", BreakerTrips: 2}, nil)
}

func TestDoctor(t *testing.T) {
	srv, calls, prompt := fakeGemini(t, 0, "Sure! Here you go:\n```json\n"+goodAnalysis+"\n```\nHope it helps {really}.")
	c := newTestClient(srv.URL)

	a, err := c.Doctor(context.Background(), "key", "Teh report is short.")
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Issues) != 1 || a.Issues[0].Suggestion != "the" || a.Summary != "One typo." {
		t.Errorf("analysis = %+v", a)
	}
	if !a.LimitedText {
		t.Error("short text not flagged")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d", calls.Load())
	}
	if p, _ := prompt.Load().(string); !strings.HasPrefix(p, "Analyze the following document text.") || !strings.HasSuffix(p, "Teh report is short.") {
		t.Errorf("prompt = %q", p)
	}
}

func TestDoctorTruncatesText(t *testing.T) {
	srv, _, prompt := fakeGemini(t, 0, goodAnalysis)
	c := newTestClient(srv.URL)
	long := strings.Repeat("é", DoctorMaxRunes+500)
	if _, err := c.Doctor(context.Background(), "key", long); err != nil {
		t.Fatal(err)
	}
	p, _ := prompt.Load().(string)
	if got := strings.Count(p, "é"); got != DoctorMaxRunes {
		t.Errorf("sent %d runes of document, want %d", got, DoctorMaxRunes)
	}
}

func TestDoctorMalformed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"prose only", "I could not analyze this document."},
		{"unbalanced", `{"issues": [`},
		{"missing summary", `{"issues":[],"improvedContent":"x"}`},
		{"bad issue type", `{"issues":[{"type":"tone","text":"a","suggestion":"b"}],"improvedContent":"x","summary":"y"}`},
		{"issues absent", `{"improvedContent":"x","summary":"y"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := fakeGemini(t, 0, tt.reply)
			a, err := newTestClient(srv.URL).Doctor(context.Background(), "key", strings.Repeat("text ", 20))
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("err = %v, want ErrMalformedResponse", err)
			}
			if a.Summary != "" || a.ImprovedContent != "" {
				t.Errorf("partial analysis leaked: %+v", a)
			}
		})
	}
}

func TestMissingKey(t *testing.T) {
	srv, calls, _ := fakeGemini(t, 0, "hi")
	c := newTestClient(srv.URL)
	if _, err := c.Chat(context.Background(), "  ", "", "hello"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 0 {
		t.Error("request sent without a key")
	}
}

func TestChat(t *testing.T) {
	srv, _, prompt := fakeGemini(t, 0, "**Yes**, it is.")
	c := newTestClient(srv.URL)
	reply, err := c.Chat(context.Background(), "key", "Quarterly numbers are up.", "Is it good news?")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "**Yes**, it is." {
		t.Errorf("reply = %q", reply)
	}
	p, _ := prompt.Load().(string)
	if !strings.Contains(p, "Quarterly numbers are up.") || !strings.HasSuffix(p, "User: Is it good news?") {
		t.Errorf("prompt = %q", p)
	}

	html, err := RenderHTML(reply)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "<strong>Yes</strong>") {
		t.Errorf("html = %q", html)
	}
}

func TestRenderHTMLOmitsRawHTML(t *testing.T) {
	html, err := RenderHTML("<script>alert(1)</script>\n\nhello")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(html, "<script>") {
		t.Errorf("raw html rendered: %q", html)
	}
}

func TestChatPromptWithoutDocument(t *testing.T) {
	p := ChatPrompt("", "Write a haiku")
	if strings.Contains(p, "document open") {
		t.Errorf("prompt mentions a document: %q", p)
	}
	if !strings.HasPrefix(p, chatSystem) {
		t.Errorf("prompt = %q", p)
	}
}

func TestHTTPStatusError(t *testing.T) {
	srv, _, _ := fakeGemini(t, http.StatusBadRequest, "")
	_, err := newTestClient(srv.URL).Chat(context.Background(), "bad", "", "hi")
	var se *HTTPStatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v", err)
	}
	if se.Message != "API key not valid" {
		t.Errorf("message = %q", se.Message)
	}
	if MessageKey(err) != "backend.errors.ai_invalid_key" {
		t.Errorf("key = %q", MessageKey(err))
	}
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	srv, calls, _ := fakeGemini(t, http.StatusInternalServerError, "")
	c := newTestClient(srv.URL)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := c.Chat(ctx, "key", "", "hi"); err == nil {
			t.Fatal("expected error")
		}
	}
	_, err := c.Chat(ctx, "key", "", "hi")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, open breaker should not call out", calls.Load())
	}
}

func TestBadKeyDoesNotTripBreaker(t *testing.T) {
	srv, calls, _ := fakeGemini(t, http.StatusBadRequest, "")
	c := newTestClient(srv.URL)
	for i := 0; i < 4; i++ {
		_, _ = c.Chat(context.Background(), "bad", "", "hi")
	}
	if calls.Load() != 4 {
		t.Errorf("calls = %d, want 4", calls.Load())
	}
}

func TestRateLimit(t *testing.T) {
	srv, _, _ := fakeGemini(t, 0, "ok")
	c := NewClient(config.AIConfig{BaseURL: srv.URL, RatePerMin: 1}, nil)
	if _, err := c.Chat(context.Background(), "key", "", "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Chat(context.Background(), "key", "", "two"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`before {"a":1} after {"b":2}`, `{"a":1}`, true},
		{`{"s":"closing } inside","n":{"m":1}}`, `{"s":"closing } inside","n":{"m":1}}`, true},
		{`{"s":"escaped \" quote }"}`, `{"s":"escaped \" quote }"}`, true},
		{`{ broken {"ok":true}`, `{"ok":true}`, true},
		{`no json`, ``, false},
		{`}{"x":[1,2]}`, `{"x":[1,2]}`, true},
	}
	for _, tt := range tests {
		got, ok := FirstJSONObject(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("FirstJSONObject(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "hé"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestIsLimitedText(t *testing.T) {
	if !IsLimitedText("   short   ") {
		t.Error("short text not limited")
	}
	if IsLimitedText(strings.Repeat("a", LimitedTextRunes)) {
		t.Error("long text flagged")
	}
}

func TestReport(t *testing.T) {
	a := Analysis{
		Issues:          []Issue{{Type: "grammar", Text: "Teh", Suggestion: "The"}},
		ImprovedContent: "The report.",
		Summary:         "One typo.",
	}
	got := a.Report()
	for _, want := range []string{"Summary\nOne typo.", "1. [grammar] Teh\n   The", "Improved version\n\nThe report."} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(Analysis{Summary: "Fine."}.Report(), "Issues") {
		t.Error("empty issue list rendered a heading")
	}
}
