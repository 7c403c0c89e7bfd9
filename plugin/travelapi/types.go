package travelapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SuggestRequest is the body of a suggestion call.
type SuggestRequest struct {
	Message string         `json:"message"`
	TopN    int            `json:"top_n,omitempty"`
	Filters map[string]any `json:"filters,omitempty"`
	UseLLM  *bool          `json:"use_llm,omitempty"`
}

// SessionSummary describes one stored chat session.
type SessionSummary struct {
	SessionID      string    `json:"sessionId"`
	FirstMessageAt time.Time `json:"firstMessageAt"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
	TurnCount      int       `json:"turnCount"`

	// badTime holds a timestamp value that could not be read.
	badTime string
}

// UnmarshalJSON accepts both camelCase and snake_case keys.
func (s *SessionSummary) UnmarshalJSON(data []byte) error {
	var aux struct {
		SessionID      string   `json:"sessionId"`
		SessionIDSnake string   `json:"session_id"`
		ID             string   `json:"id"`
		First          flexTime `json:"firstMessageAt"`
		FirstSnake     flexTime `json:"first_message_at"`
		Last           flexTime `json:"lastMessageAt"`
		LastSnake      flexTime `json:"last_message_at"`
		TurnCount      *int     `json:"turnCount"`
		TurnCountSnake *int     `json:"turn_count"`
		Updated        flexTime `json:"updatedAt"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	s.SessionID = firstNonEmpty(aux.SessionID, aux.SessionIDSnake, aux.ID)
	s.FirstMessageAt = firstTime(aux.First, aux.FirstSnake)
	s.LastMessageAt = firstTime(aux.Last, aux.LastSnake, aux.Updated)
	s.badTime = firstInvalid(aux.First, aux.FirstSnake, aux.Last, aux.LastSnake, aux.Updated)
	switch {
	case aux.TurnCount != nil:
		s.TurnCount = *aux.TurnCount
	case aux.TurnCountSnake != nil:
		s.TurnCount = *aux.TurnCountSnake
	}
	return nil
}

// HistoryRow is one stored turn: the user's message and the reply payload it got.
type HistoryRow struct {
	MessageText  string          `json:"messageText,omitempty"`
	ReplyPayload json.RawMessage `json:"replyPayload,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`

	badTime string
}

// UnmarshalJSON accepts both camelCase and snake_case keys.
func (r *HistoryRow) UnmarshalJSON(data []byte) error {
	var aux struct {
		MessageText       string          `json:"messageText"`
		MessageTextSnake  string          `json:"message_text"`
		ReplyPayload      json.RawMessage `json:"replyPayload"`
		ReplyPayloadSnake json.RawMessage `json:"reply_payload"`
		CreatedAt         flexTime        `json:"createdAt"`
		CreatedAtSnake    flexTime        `json:"created_at"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.MessageText = firstNonEmpty(aux.MessageText, aux.MessageTextSnake)
	r.ReplyPayload = nil
	for _, raw := range []json.RawMessage{aux.ReplyPayload, aux.ReplyPayloadSnake} {
		if len(raw) > 0 && string(raw) != "null" {
			r.ReplyPayload = raw
			break
		}
	}
	r.CreatedAt = firstTime(aux.CreatedAt, aux.CreatedAtSnake)
	r.badTime = firstInvalid(aux.CreatedAt, aux.CreatedAtSnake)
	return nil
}

// MessagePage is one page of a session's history.
type MessagePage struct {
	Items []HistoryRow
	// Returned is how many items the server sent, including rows that could not be decoded.
	Returned int
	// HasMore is nil when the server did not say.
	HasMore *bool
}

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	// Message is the body's "message" field.
	Message string
	// ErrorText is the body's "error" field.
	ErrorText string
	Body      []byte
}

func (e *APIError) Error() string {
	detail := e.Message
	if detail == "" {
		detail = e.ErrorText
	}
	if detail == "" {
		detail = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, detail)
}

// ServerMessage implements errors.ServerError.
func (e *APIError) ServerMessage() string { return e.Message }

// ServerErrorText implements errors.ServerError.
func (e *APIError) ServerErrorText() string { return e.ErrorText }

// timeLayouts are tried in order for string timestamps. Zoneless values are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// flexTime decodes ISO 8601 strings and unix timestamps in seconds or milliseconds.
// Unreadable values leave the zero time and are kept in invalid.
type flexTime struct {
	time.Time
	invalid string
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s = strings.TrimSpace(s); s == "" {
			return nil
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed
				return nil
			}
		}
		t.invalid = s
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		t.invalid = raw
		return nil
	}
	// Values past year 2286 in seconds are treated as milliseconds.
	if n > 1e10 {
		t.Time = time.UnixMilli(int64(n)).UTC()
	} else {
		t.Time = time.Unix(int64(n), 0).UTC()
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInvalid(values ...flexTime) string {
	for _, v := range values {
		if v.invalid != "" {
			return v.invalid
		}
	}
	return ""
}

func firstTime(values ...flexTime) time.Time {
	for _, v := range values {
		if !v.IsZero() {
			return v.Time
		}
	}
	return time.Time{}
}
