// Package session holds the client-side conversation state of the travel chatbot.
//
// A Store owns one transcript, the pending request flag, the clarification options offered by the
// last reply, and the history pagination of the session being viewed. It talks to the backend only
// through the Backend interface.
package session

import (
	"context"
	"encoding/json"

	"github.com/hrygo/staybot/plugin/travelapi"
)

// Backend is the subset of the suggestion and history API the store needs.
// *travelapi.Client implements it.
type Backend interface {
	Suggest(ctx context.Context, sessionID string, req *travelapi.SuggestRequest) (json.RawMessage, error)
	Autocomplete(ctx context.Context, query string) ([]string, error)
	ListSessions(ctx context.Context) ([]travelapi.SessionSummary, error)
	ListMessages(ctx context.Context, sessionID string, page, pageSize int) (*travelapi.MessagePage, error)
}

var _ Backend = (*travelapi.Client)(nil)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry. Timestamp is in unix milliseconds.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Pagination tracks the history page last loaded.
type Pagination struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasMore  bool `json:"hasMore"`
}

// State is a point-in-time copy of the store.
type State struct {
	Messages             []Message       `json:"messages"`
	PendingRequest       bool            `json:"pendingRequest"`
	ClarificationOptions []string        `json:"clarificationOptions"`
	LastRawResponse      json.RawMessage `json:"lastRawResponse,omitempty"`
	LastError            string          `json:"lastError,omitempty"`
	ActiveSessionID      string          `json:"activeSessionId,omitempty"`
	Pagination           Pagination      `json:"pagination"`

	HistoryLoading bool                       `json:"historyLoading"`
	HistoryError   string                     `json:"historyError,omitempty"`
	Sessions       []travelapi.SessionSummary `json:"sessions"`
}

func (s State) clone() State {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	out.ClarificationOptions = append([]string(nil), s.ClarificationOptions...)
	out.LastRawResponse = append(json.RawMessage(nil), s.LastRawResponse...)
	out.Sessions = append([]travelapi.SessionSummary(nil), s.Sessions...)
	return out
}

// Phase is the coarse conversation state. History loading is tracked separately.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingClarification
	PhasePending
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingClarification:
		return "awaiting_clarification"
	case PhasePending:
		return "pending"
	default:
		return "unknown"
	}
}

// Phase derives the coarse state from s.
func (s State) Phase() Phase {
	switch {
	case s.PendingRequest:
		return PhasePending
	case len(s.ClarificationOptions) > 0:
		return PhaseAwaitingClarification
	default:
		return PhaseIdle
	}
}

// SendOptions tunes one suggestion request. Zero values are omitted from the request.
type SendOptions struct {
	// TopN is the result-count hint.
	TopN int
	// Filters are merged over the store's default filters.
	Filters map[string]any
	// UseLLM overrides the server's choice of provider when non-nil.
	UseLLM *bool
}
