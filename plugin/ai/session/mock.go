package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hrygo/staybot/plugin/travelapi"
)

// MockBackend is an in-memory Backend for tests. Each Func field, when set, answers its call;
// unset fields answer with empty results.
type MockBackend struct {
	SuggestFunc      func(ctx context.Context, sessionID string, req *travelapi.SuggestRequest) (json.RawMessage, error)
	AutocompleteFunc func(ctx context.Context, query string) ([]string, error)
	SessionsFunc     func(ctx context.Context) ([]travelapi.SessionSummary, error)
	MessagesFunc     func(ctx context.Context, sessionID string, page, pageSize int) (*travelapi.MessagePage, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records one call made to a MockBackend.
type MockCall struct {
	Method    string
	SessionID string
	Query     string
	Page      int
	PageSize  int
	Request   *travelapi.SuggestRequest
}

// NewMockBackend creates an empty mock backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// Suggest implements Backend.
func (m *MockBackend) Suggest(ctx context.Context, sessionID string, req *travelapi.SuggestRequest) (json.RawMessage, error) {
	m.record(MockCall{Method: "Suggest", SessionID: sessionID, Request: req})
	if m.SuggestFunc != nil {
		return m.SuggestFunc(ctx, sessionID, req)
	}
	return json.RawMessage(`{}`), nil
}

// Autocomplete implements Backend.
func (m *MockBackend) Autocomplete(ctx context.Context, query string) ([]string, error) {
	m.record(MockCall{Method: "Autocomplete", Query: query})
	if m.AutocompleteFunc != nil {
		return m.AutocompleteFunc(ctx, query)
	}
	return []string{}, nil
}

// ListSessions implements Backend.
func (m *MockBackend) ListSessions(ctx context.Context) ([]travelapi.SessionSummary, error) {
	m.record(MockCall{Method: "ListSessions"})
	if m.SessionsFunc != nil {
		return m.SessionsFunc(ctx)
	}
	return []travelapi.SessionSummary{}, nil
}

// ListMessages implements Backend.
func (m *MockBackend) ListMessages(ctx context.Context, sessionID string, page, pageSize int) (*travelapi.MessagePage, error) {
	m.record(MockCall{Method: "ListMessages", SessionID: sessionID, Page: page, PageSize: pageSize})
	if m.MessagesFunc != nil {
		return m.MessagesFunc(ctx, sessionID, page, pageSize)
	}
	return &travelapi.MessagePage{}, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockBackend) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times method was called.
func (m *MockBackend) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears the recorded calls.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MockBackend) record(c MockCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}
