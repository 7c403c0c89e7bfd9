// Package travelapitest runs an in-process fake of the suggestion and history endpoints for tests.
package travelapitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/staybot/plugin/travelapi"
)

// Request is one call the fake received.
type Request struct {
	Endpoint      string
	SessionID     string
	Authorization string
	Query         map[string]string
	Suggest       *travelapi.SuggestRequest
}

// Response is what a handler answers with. Body is JSON-encoded unless it is a []byte or string.
type Response struct {
	Status int
	Body   any
}

// Server is a fake backend. Handlers may be replaced before or between calls.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Request

	SuggestHandler      func(sessionID string, req travelapi.SuggestRequest) Response
	AutocompleteHandler func(query string) Response
	SessionsHandler     func() Response
	MessagesHandler     func(sessionID string, page, pageSize int) Response
}

// NewServer starts a fake backend serving the default paths.
// Close it with t.Cleanup(srv.Close).
func NewServer() *Server {
	s := &Server{
		SuggestHandler: func(string, travelapi.SuggestRequest) Response {
			return Response{Status: http.StatusOK, Body: map[string]any{"answer": "ok"}}
		},
		AutocompleteHandler: func(string) Response {
			return Response{Status: http.StatusOK, Body: []string{}}
		},
		SessionsHandler: func() Response {
			return Response{Status: http.StatusOK, Body: []any{}}
		},
		MessagesHandler: func(string, int, int) Response {
			return Response{Status: http.StatusOK, Body: map[string]any{"items": []any{}}}
		},
	}

	defaults := travelapi.DefaultConfig()
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.POST(defaults.SuggestPath, s.handleSuggest)
	e.GET(defaults.AutocompletePath, s.handleAutocomplete)
	e.GET(defaults.SessionsPath, s.handleSessions)
	e.GET(strings.ReplaceAll(defaults.MessagesPath, "{id}", ":id"), s.handleMessages)

	s.Server = httptest.NewServer(e)
	return s
}

// Config returns a client config pointed at the fake with rate limiting disabled.
func (s *Server) Config() *travelapi.Config {
	cfg := travelapi.DefaultConfig()
	cfg.BaseURL = s.URL
	cfg.RateLimit = 0
	return cfg
}

// Requests returns a copy of every call received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many calls hit endpoint.
func (s *Server) Count(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Endpoint == endpoint {
			n++
		}
	}
	return n
}

func (s *Server) record(c echo.Context, endpoint string, suggest *travelapi.SuggestRequest) {
	query := make(map[string]string)
	for k, v := range c.QueryParams() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{
		Endpoint:      endpoint,
		SessionID:     c.Request().Header.Get(travelapi.SessionHeader),
		Authorization: c.Request().Header.Get(echo.HeaderAuthorization),
		Query:         query,
		Suggest:       suggest,
	})
}

func (s *Server) handleSuggest(c echo.Context) error {
	var req travelapi.SuggestRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	s.record(c, travelapi.EndpointSuggest, &req)
	return write(c, s.SuggestHandler(c.Request().Header.Get(travelapi.SessionHeader), req))
}

func (s *Server) handleAutocomplete(c echo.Context) error {
	s.record(c, travelapi.EndpointAutocomplete, nil)
	return write(c, s.AutocompleteHandler(c.QueryParam("q")))
}

func (s *Server) handleSessions(c echo.Context) error {
	s.record(c, travelapi.EndpointSessions, nil)
	return write(c, s.SessionsHandler())
}

func (s *Server) handleMessages(c echo.Context) error {
	s.record(c, travelapi.EndpointMessages, nil)
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))
	return write(c, s.MessagesHandler(c.Param("id"), page, pageSize))
}

func write(c echo.Context, resp Response) error {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	switch body := resp.Body.(type) {
	case []byte:
		return c.Blob(status, echo.MIMEApplicationJSON, body)
	case string:
		return c.String(status, body)
	default:
		return c.JSON(status, body)
	}
}
