// Package travelapi is the HTTP client for the travel suggestion and chat history endpoints.
package travelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	apperrors "github.com/hrygo/staybot/internal/errors"
)

// SessionHeader carries the chat session token on every request.
const SessionHeader = "X-Session-Id"

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 4 << 20

// Endpoint keys, also used as rate limiter keys.
const (
	EndpointSuggest      = "suggest"
	EndpointAutocomplete = "autocomplete"
	EndpointSessions     = "sessions"
	EndpointMessages     = "messages"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the backend root, e.g. http://localhost:8080/api
	BaseURL string
	// AuthToken is sent as a bearer token when non-empty.
	AuthToken string

	SuggestPath      string
	AutocompletePath string
	SessionsPath     string
	// MessagesPath must contain the {id} placeholder.
	MessagesPath string

	// Timeout is the HTTP timeout for every request.
	Timeout time.Duration
	// RateLimit is requests per second per endpoint; zero disables limiting.
	RateLimit float64
	RateBurst int

	// Transport overrides the base round tripper. Nil uses http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "http://localhost:8080/api",
		SuggestPath:      "/suggest",
		AutocompletePath: "/autocomplete",
		SessionsPath:     "/history/sessions",
		MessagesPath:     "/history/sessions/{id}/messages",
		Timeout:          30 * time.Second,
		RateLimit:        10,
		RateBurst:        20,
	}
}

// Client talks to the suggestion and history endpoints.
type Client struct {
	config     *Config
	httpClient *http.Client
	limiter    *RateLimiter
	logger     *slog.Logger
}

// NewClient creates a new client.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	base := config.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	transport := base
	if config.AuthToken != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: config.AuthToken,
				TokenType:   "Bearer",
			}),
			Base: base,
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		limiter: NewRateLimiter(config.RateLimit, config.RateBurst),
		logger:  logger,
	}
}

type sessionKey struct{}

// WithSessionID tags every request made with ctx with the session token.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func sessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// Suggest sends one chat message and returns the raw reply payload.
// A 2xx body that is not JSON comes back as a JSON string so renderers can still show it.
func (c *Client) Suggest(ctx context.Context, sessionID string, req *SuggestRequest) (json.RawMessage, error) {
	if req == nil || strings.TrimSpace(req.Message) == "" {
		return nil, apperrors.InvalidArgument("message is required")
	}
	if sessionID == "" {
		return nil, apperrors.InvalidArgument("session id is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode suggest request")
	}

	data, err := c.do(WithSessionID(ctx, sessionID), EndpointSuggest, http.MethodPost, c.config.SuggestPath, nil, body)
	if err != nil {
		return nil, err
	}

	if json.Valid(data) {
		return json.RawMessage(data), nil
	}
	quoted, err := json.Marshal(string(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to wrap non-json reply")
	}
	return quoted, nil
}

// Autocomplete returns place names matching query.
func (c *Client) Autocomplete(ctx context.Context, query string) ([]string, error) {
	params := url.Values{"q": []string{query}}
	data, err := c.do(ctx, EndpointAutocomplete, http.MethodGet, c.config.AutocompletePath, params, nil)
	if err != nil {
		return nil, err
	}

	items, err := listItems(data, "items", "data", "suggestions")
	if err != nil {
		return nil, apperrors.MalformedPayload("autocomplete response is not a list", err)
	}

	names := make([]string, 0, len(items))
	for _, raw := range items {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			if s = strings.TrimSpace(s); s != "" {
				names = append(names, s)
			}
			continue
		}
		var obj struct {
			Name  string `json:"name"`
			Label string `json:"label"`
		}
		if json.Unmarshal(raw, &obj) == nil {
			if name := strings.TrimSpace(firstNonEmpty(obj.Name, obj.Label)); name != "" {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// ListSessions returns the caller's stored sessions in server order.
// Both a bare array and {"sessions": [...]} are accepted; anything else yields an empty list.
func (c *Client) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	data, err := c.do(ctx, EndpointSessions, http.MethodGet, c.config.SessionsPath, nil, nil)
	if err != nil {
		return nil, err
	}

	items, err := listItems(data, "sessions")
	if err != nil {
		c.logger.Warn("unexpected sessions payload", slog.String("error", err.Error()))
		return []SessionSummary{}, nil
	}

	sessions := make([]SessionSummary, 0, len(items))
	for _, raw := range items {
		var s SessionSummary
		if err := json.Unmarshal(raw, &s); err != nil {
			c.logger.Warn("skipping malformed session summary", slog.String("error", err.Error()))
			continue
		}
		if s.SessionID == "" {
			continue
		}
		if s.badTime != "" {
			c.logger.Warn("unreadable session timestamp",
				slog.String("session_id", s.SessionID),
				slog.String("value", s.badTime),
			)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// ListMessages returns one page of a session's history.
// Both {"items": [...]} and {"data": [...]} are accepted.
func (c *Client) ListMessages(ctx context.Context, sessionID string, page, pageSize int) (*MessagePage, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidArgument("session id is required")
	}

	path := strings.ReplaceAll(c.config.MessagesPath, "{id}", url.PathEscape(sessionID))
	params := url.Values{
		"page":     []string{strconv.Itoa(page)},
		"pageSize": []string{strconv.Itoa(pageSize)},
	}
	data, err := c.do(WithSessionID(ctx, sessionID), EndpointMessages, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Items        []json.RawMessage `json:"items"`
		Data         []json.RawMessage `json:"data"`
		HasMore      *bool             `json:"hasMore"`
		HasMoreSnake *bool             `json:"has_more"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, apperrors.MalformedPayload("messages response is not an object", err)
	}

	rawItems := envelope.Items
	if rawItems == nil {
		rawItems = envelope.Data
	}

	result := &MessagePage{
		Items:    make([]HistoryRow, 0, len(rawItems)),
		Returned: len(rawItems),
		HasMore:  envelope.HasMore,
	}
	if result.HasMore == nil {
		result.HasMore = envelope.HasMoreSnake
	}
	for _, raw := range rawItems {
		var row HistoryRow
		if err := json.Unmarshal(raw, &row); err != nil {
			c.logger.Warn("skipping malformed history row",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if row.badTime != "" {
			c.logger.Warn("unreadable history timestamp",
				slog.String("session_id", sessionID),
				slog.String("value", row.badTime),
			)
		}
		result.Items = append(result.Items, row)
	}
	return result, nil
}

// do performs one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, endpoint, method, path string, params url.Values, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx, endpoint); err != nil {
		return nil, apperrors.ContextCanceled(err)
	}

	target := strings.TrimRight(c.config.BaseURL, "/") + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID := sessionFromContext(ctx); sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.ContextCanceled(err)
		}
		return nil, apperrors.Transport(err).WithContext("path", path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransport, "failed to read response").WithContext("path", path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(method, path, resp.StatusCode, data)
	}
	return data, nil
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Body:       body,
	}

	var parsed struct {
		Message json.RawMessage `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		apiErr.Message = textOf(parsed.Message)
		apiErr.ErrorText = textOf(parsed.Error)
	}
	return apiErr
}

// textOf renders a JSON string as itself and any other non-null value as compact JSON.
func textOf(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}

// listItems decodes a bare JSON array or an object holding an array under one of keys.
func listItems(data []byte, keys ...string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, errors.Wrap(err, "payload is neither an array nor an object")
	}
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &items); err == nil {
			return items, nil
		}
	}
	return nil, errors.Errorf("no list under %v", keys)
}
