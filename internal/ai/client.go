// Package ai talks to the Gemini generateContent endpoint for the document
// doctor and the chat assistant.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rmitchellscott/pdfdesk/internal/config"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
	"github.com/rmitchellscott/pdfdesk/internal/metrics"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

var (
	ErrMissingAPIKey     = errors.New("no AI API key configured")
	ErrMalformedResponse = errors.New("AI response could not be parsed")
	ErrEmptyResponse     = errors.New("AI response was empty")
	ErrRateLimited       = errors.New("AI request rate exceeded")
	ErrUnavailable       = errors.New("AI service temporarily unavailable")
	ErrNoInput           = errors.New("nothing to send to the AI service")
)

// HTTPStatusError is returned when the endpoint answers with a non-2xx
// status.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *HTTPStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("AI endpoint returned %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("AI endpoint returned %s", e.Status)
}

// clientFault reports statuses caused by the request rather than the
// service, such as a bad key. They do not trip the breaker.
func (e *HTTPStatusError) clientFault() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-1.5-flash"

	maxResponseBytes = 8 << 20
)

// Client sends one request per call. It never retries and never persists
// the key it is given.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[string]
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// NewClient builds a client from cfg. A zero RatePerMin disables the rate
// limit.
func NewClient(cfg config.AIConfig, m *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	trips := cfg.BreakerTrips
	if trips == 0 {
		trips = 5
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerMin > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), cfg.RatePerMin)
	}

	settings := gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var se *HTTPStatusError
			return errors.As(err, &se) && se.clientFault()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warnf("[AI] Circuit breaker %s: %s -> %s", name, from, to)
		},
	}

	return &Client{
		baseURL: base,
		model:   model,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[string](settings),
		limiter: limiter,
		metrics: m,
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends prompt and returns the model's text.
func (c *Client) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrMissingAPIKey
	}
	if !c.limiter.Allow() {
		return "", ErrRateLimited
	}

	text, err := c.breaker.Execute(func() (string, error) {
		return c.generate(ctx, apiKey, prompt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return text, err
}

func (c *Client) generate(ctx context.Context, apiKey, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("AI request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read AI response: %w", err)
	}
	logging.Debugf("[AI] %s answered %d in %s", c.model, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil {
			se.Message = er.Error.Message
		}
		return "", se
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if gr.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: blocked (%s)", ErrEmptyResponse, gr.PromptFeedback.BlockReason)
	}
	var sb strings.Builder
	for _, cand := range gr.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// MessageKey maps an AI error to the i18n key shown to the user.
func MessageKey(err error) string {
	var se *HTTPStatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingAPIKey):
		return "backend.errors.ai_missing_key"
	case errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrEmptyResponse):
		return "backend.errors.ai_analysis_failed"
	case errors.Is(err, ErrNoInput):
		return "backend.errors.ai_no_text"
	case errors.Is(err, ErrRateLimited):
		return "backend.errors.rate_limited"
	case errors.Is(err, ErrUnavailable):
		return "backend.errors.ai_unavailable"
	case errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden || se.StatusCode == http.StatusBadRequest):
		return "backend.errors.ai_invalid_key"
	}
	return "backend.errors.ai_request_failed"
}
