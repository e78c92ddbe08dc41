// Package backend is the HTTP client for the external privacy policy
// analysis service. The service is opaque: this package only shapes
// requests and decodes the fields the companion consumes.
package backend

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/clausebit/companion/internal/auth"
	"github.com/clausebit/companion/internal/model"
	"github.com/clausebit/companion/pkg/logger"
	"github.com/clausebit/companion/pkg/metrics"
)

// Endpoint names, used for metrics, spans and errors.
const (
	EndpointRecent        = "recent_conversations"
	EndpointHistory       = "conversation_history"
	EndpointChat          = "chat"
	EndpointCollector     = "collector"
	EndpointSummary       = "summary"
	EndpointExtensionAuth = "extension_auth"
)

const maxErrorBody = 512

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: HTTP error! status: %d", e.Endpoint, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client talks to the analysis backend.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tracer     trace.Tracer
	logger     *logger.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a backend client rooted at baseURL.
func New(baseURL string, timeout time.Duration, log *logger.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: timeout},
		tracer:     otel.Tracer("github.com/clausebit/companion/internal/backend"),
		logger:     log.Named("backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RecentConversations lists the user's recent conversations. A record that
// cannot be decoded is returned as a zero value so positions are preserved.
func (c *Client) RecentConversations(ctx context.Context, userID string) ([]model.RawConversation, error) {
	var items []json.RawMessage
	path := "/memory/recent/" + url.PathEscape(userID) + "/"
	if err := c.getJSON(ctx, EndpointRecent, path, &items); err != nil {
		return nil, err
	}

	records := make([]model.RawConversation, len(items))
	for i, item := range items {
		if err := json.Unmarshal(item, &records[i]); err != nil {
			c.logger.Warn("skipping malformed conversation record", zap.Int("index", i), zap.Error(err))
			records[i] = model.RawConversation{}
		}
	}
	return records, nil
}

// History fetches the stored messages of one session.
func (c *Client) History(ctx context.Context, userID, sessionID string) (*model.HistoryResponse, error) {
	var resp model.HistoryResponse
	path := "/memory/" + url.PathEscape(userID) + "/" + url.PathEscape(sessionID)
	if err := c.getJSON(ctx, EndpointHistory, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Chat posts a question and returns the assistant's reply text. The
// backend answers either with plain text or with {"response": "..."}.
func (c *Client) Chat(ctx context.Context, req *model.ChatRequest) (string, error) {
	body, err := c.post(ctx, EndpointChat, "/chat", req)
	if err != nil {
		return "", err
	}
	return decodeReply(body), nil
}

// Collect asks the backend to ingest the policy documents of origin.
// The response body is ignored.
func (c *Client) Collect(ctx context.Context, origin string) error {
	_, err := c.post(ctx, EndpointCollector, "/collector", &model.AnalysisRequest{CompanyName: origin})
	return err
}

// Summary fetches the risk summary for origin.
func (c *Client) Summary(ctx context.Context, origin string) (*model.Summary, error) {
	body, err := c.post(ctx, EndpointSummary, "/summary", &model.AnalysisRequest{CompanyName: origin})
	if err != nil {
		return nil, err
	}
	var summary model.Summary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %w", EndpointSummary, err)
	}
	return &summary, nil
}

// ExtensionAuth asks the backend whether the credential in ctx belongs to
// a signed-in user. Without a credential the answer is false.
func (c *Client) ExtensionAuth(ctx context.Context) (bool, error) {
	if auth.TokenFromContext(ctx) == "" {
		return false, nil
	}
	body, err := c.post(ctx, EndpointExtensionAuth, "/api/extension-auth", nil)
	if err != nil {
		if IsStatus(err, http.StatusUnauthorized) || IsStatus(err, http.StatusForbidden) {
			return false, nil
		}
		return false, err
	}
	var status model.AuthStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return false, fmt.Errorf("%s: failed to decode response: %w", EndpointExtensionAuth, err)
	}
	return status.IsAuthenticated, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, v any) error {
	body, err := c.do(ctx, endpoint, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to marshal request: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, endpoint, http.MethodPost, path, body)
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body io.Reader) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "backend."+endpoint, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.RecordBackendCall(endpoint, outcome, time.Since(start).Seconds())
	}()

	target := c.baseURL.String() + path
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", target),
	)

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil || method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := auth.TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, fmt.Errorf("%s: request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failure")
		return nil, fmt.Errorf("%s: failed to read response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = "status"
		statusErr := &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(data)), maxErrorBody),
		}
		span.SetStatus(codes.Error, statusErr.Error())
		return nil, statusErr
	}

	outcome = "success"
	return data, nil
}

// decodeReply extracts reply text from a chat response body.
func decodeReply(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '{':
		var obj struct {
			Response *string `json:"response"`
		}
		if err := json.Unmarshal(trimmed, &obj); err == nil && obj.Response != nil {
			return *obj.Response
		}
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
