package session

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/hrygo/staybot/internal/errors"
	"github.com/hrygo/staybot/internal/observability"
	"github.com/hrygo/staybot/plugin/ai/reply"
	"github.com/hrygo/staybot/plugin/travelapi"
)

// LoadSessions fetches the stored session list, newest first.
// When no session is active yet the newest one becomes active.
// Failures are recorded in HistoryError and yield an empty list.
func (s *Store) LoadSessions(ctx context.Context) []travelapi.SessionSummary {
	if s.isClosed() {
		return []travelapi.SessionSummary{}
	}

	// The shared fetch outlives any single caller; Close still aborts it.
	ch := s.group.DoChan(OpLoadSessions, func() (any, error) {
		return s.fetchSessions(context.WithoutCancel(ctx))
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return []travelapi.SessionSummary{}
	}
	if res.Err != nil {
		return []travelapi.SessionSummary{}
	}
	sessions := res.Val.([]travelapi.SessionSummary)
	if res.Shared {
		return slices.Clone(sessions)
	}
	return sessions
}

func (s *Store) fetchSessions(ctx context.Context) ([]travelapi.SessionSummary, error) {
	ctx, done := s.opContext(ctx)
	defer done()
	s.beginHistory()

	rc := observability.NewRequestContext(s.logger, OpLoadSessions, "")
	sessions, err := s.backend.ListSessions(ctx)
	s.metrics.RecordRequest(ctx, OpLoadSessions, rc.Duration(), errorCode(err))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endHistoryLocked()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if err != nil {
		s.state.HistoryError = apperrors.Normalize(err)
		rc.Error("load sessions failed", err)
		return nil, err
	}

	sessions = slices.Clone(sessions)
	slices.SortStableFunc(sessions, func(a, b travelapi.SessionSummary) int {
		return b.LastMessageAt.Compare(a.LastMessageAt)
	})
	s.state.Sessions = sessions
	if s.state.ActiveSessionID == "" && len(sessions) > 0 {
		s.state.ActiveSessionID = sessions[0].SessionID
		s.token = sessions[0].SessionID
	}
	rc.Info("sessions loaded", slog.Int(observability.LogFieldCount, len(sessions)))
	return slices.Clone(sessions), nil
}

// LoadMessages fetches one page of a session's history and merges it into the transcript.
//
// Page 1 replaces the transcript; later pages add older turns. Outgoing requests are tagged with
// sessionID afterwards. An empty sessionID returns an empty list without a call. Failures are
// recorded in HistoryError and yield an empty list.
func (s *Store) LoadMessages(ctx context.Context, sessionID string, page, pageSize int) []Message {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || s.isClosed() {
		return []Message{}
	}
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	if pageSize < 1 {
		pageSize = s.state.Pagination.PageSize
	}
	s.token = sessionID
	if page == 1 {
		s.generation++
	}
	gen := s.generation
	s.mu.Unlock()

	ctx, done := s.opContext(ctx)
	defer done()
	s.beginHistory()

	rc := observability.NewRequestContext(s.logger, OpLoadMessages, sessionID)
	result, err := s.backend.ListMessages(ctx, sessionID, page, pageSize)
	s.metrics.RecordRequest(ctx, OpLoadMessages, rc.Duration(), errorCode(err))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endHistoryLocked()
	if s.closed {
		return []Message{}
	}
	if gen != s.generation {
		rc.Debug("dropping history for a replaced transcript", slog.Int(observability.LogFieldPage, page))
		return []Message{}
	}
	if err != nil {
		s.state.HistoryError = apperrors.Normalize(err)
		rc.Error("load messages failed", err, slog.Int(observability.LogFieldPage, page))
		return []Message{}
	}

	msgs := historyMessages(result.Items)
	returned := max(result.Returned, len(result.Items))
	hasMore := returned == pageSize
	if result.HasMore != nil {
		hasMore = *result.HasMore
	}

	if page == 1 {
		s.state.Messages = slices.Clone(msgs)
		s.state.ClarificationOptions = nil
		s.state.LastRawResponse = nil
		s.state.LastError = ""
		sortMessages(s.state.Messages)
	} else {
		s.appendLocked(msgs...)
	}
	s.state.Pagination = Pagination{Page: page, PageSize: pageSize, HasMore: hasMore}

	rc.Info("history loaded",
		slog.Int(observability.LogFieldPage, page),
		slog.Int(observability.LogFieldCount, len(result.Items)),
	)
	return msgs
}

// RestoreSession makes sessionID active and loads its first history page.
func (s *Store) RestoreSession(ctx context.Context, sessionID string) []Message {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || s.isClosed() {
		return []Message{}
	}

	s.mu.Lock()
	s.state.ActiveSessionID = sessionID
	s.token = sessionID
	pageSize := s.state.Pagination.PageSize
	s.mu.Unlock()

	return s.LoadMessages(ctx, sessionID, 1, pageSize)
}

// LoadMore loads the next history page of the active session.
// It returns an empty list when the server reported no more pages.
func (s *Store) LoadMore(ctx context.Context) []Message {
	s.mu.Lock()
	sessionID := s.state.ActiveSessionID
	p := s.state.Pagination
	s.mu.Unlock()

	if sessionID == "" || !p.HasMore {
		return []Message{}
	}
	return s.LoadMessages(ctx, sessionID, p.Page+1, p.PageSize)
}

func (s *Store) beginHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyInFlight++
	s.state.HistoryLoading = true
	s.state.HistoryError = ""
}

func (s *Store) endHistoryLocked() {
	if s.historyInFlight > 0 {
		s.historyInFlight--
	}
	s.state.HistoryLoading = s.historyInFlight > 0 && !s.closed
}

// historyMessages turns stored rows into transcript entries. A reply is stamped one millisecond
// after its row so it sorts after the paired user message.
func historyMessages(rows []travelapi.HistoryRow) []Message {
	msgs := make([]Message, 0, len(rows)*2)
	for _, row := range rows {
		var ts int64
		if !row.CreatedAt.IsZero() {
			ts = row.CreatedAt.UnixMilli()
		}
		if text := strings.TrimSpace(row.MessageText); text != "" {
			msgs = append(msgs, newMessage(RoleUser, text, ts))
		}
		if len(row.ReplyPayload) > 0 {
			msgs = append(msgs, newMessage(RoleAssistant, reply.Render(row.ReplyPayload), ts+1))
		}
	}
	sortMessages(msgs)
	return msgs
}
