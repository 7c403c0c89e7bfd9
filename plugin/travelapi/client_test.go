package travelapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hrygo/staybot/internal/errors"
	"github.com/hrygo/staybot/plugin/travelapi"
	"github.com/hrygo/staybot/plugin/travelapi/travelapitest"
)

func newFake(t *testing.T) (*travelapitest.Server, *travelapi.Client) {
	t.Helper()
	srv := travelapitest.NewServer()
	t.Cleanup(srv.Close)
	return srv, travelapi.NewClient(srv.Config())
}

func TestDefaultConfig(t *testing.T) {
	cfg := travelapi.DefaultConfig()
	assert.Equal(t, "http://localhost:8080/api", cfg.BaseURL)
	assert.Equal(t, "/suggest", cfg.SuggestPath)
	assert.Equal(t, "/history/sessions/{id}/messages", cfg.MessagesPath)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.NotNil(t, travelapi.NewClient(nil))
}

func TestSuggest(t *testing.T) {
	ctx := context.Background()

	t.Run("SendsBodyAndHeaders", func(t *testing.T) {
		srv := travelapitest.NewServer()
		t.Cleanup(srv.Close)
		cfg := srv.Config()
		cfg.AuthToken = "tok-123"
		client := travelapi.NewClient(cfg)

		useLLM := false
		payload, err := client.Suggest(ctx, "sess-1", &travelapi.SuggestRequest{
			Message: "khách sạn ở Huế",
			TopN:    3,
			Filters: map[string]any{"stars": 4},
			UseLLM:  &useLLM,
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"answer":"ok"}`, string(payload))

		reqs := srv.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, "sess-1", reqs[0].SessionID)
		assert.Equal(t, "Bearer tok-123", reqs[0].Authorization)
		require.NotNil(t, reqs[0].Suggest)
		assert.Equal(t, "khách sạn ở Huế", reqs[0].Suggest.Message)
		assert.Equal(t, 3, reqs[0].Suggest.TopN)
		assert.EqualValues(t, 4, reqs[0].Suggest.Filters["stars"])
		require.NotNil(t, reqs[0].Suggest.UseLLM)
		assert.False(t, *reqs[0].Suggest.UseLLM)
	})

	t.Run("NoAuthHeaderWithoutToken", func(t *testing.T) {
		srv, client := newFake(t)
		_, err := client.Suggest(ctx, "s", &travelapi.SuggestRequest{Message: "hi"})
		require.NoError(t, err)
		assert.Empty(t, srv.Requests()[0].Authorization)
	})

	t.Run("NonJSONBodyBecomesString", func(t *testing.T) {
		srv, client := newFake(t)
		srv.SuggestHandler = func(string, travelapi.SuggestRequest) travelapitest.Response {
			return travelapitest.Response{Status: http.StatusOK, Body: "xin chào"}
		}
		payload, err := client.Suggest(ctx, "s", &travelapi.SuggestRequest{Message: "hi"})
		require.NoError(t, err)
		var s string
		require.NoError(t, json.Unmarshal(payload, &s))
		assert.Equal(t, "xin chào", s)
	})

	t.Run("ServerErrorCarriesBody", func(t *testing.T) {
		srv, client := newFake(t)
		srv.SuggestHandler = func(string, travelapi.SuggestRequest) travelapitest.Response {
			return travelapitest.Response{
				Status: http.StatusBadGateway,
				Body:   map[string]string{"message": "Dịch vụ gợi ý tạm thời gián đoạn", "error": "Bad Gateway"},
			}
		}
		_, err := client.Suggest(ctx, "s", &travelapi.SuggestRequest{Message: "hi"})
		require.Error(t, err)

		var apiErr *travelapi.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
		assert.Equal(t, "Bad Gateway", apiErr.ErrorText)
		assert.Equal(t, "Dịch vụ gợi ý tạm thời gián đoạn", apperrors.Normalize(err))
		assert.Equal(t, apperrors.ErrCodeServer, apperrors.GetCodeFromError(err, apperrors.ErrCodeUnknown))
	})

	t.Run("ServerErrorWithoutBody", func(t *testing.T) {
		srv, client := newFake(t)
		srv.SuggestHandler = func(string, travelapi.SuggestRequest) travelapitest.Response {
			return travelapitest.Response{Status: http.StatusInternalServerError, Body: []byte("oops")}
		}
		_, err := client.Suggest(ctx, "s", &travelapi.SuggestRequest{Message: "hi"})
		require.Error(t, err)
		assert.Equal(t, "POST /suggest returned 500: Internal Server Error", apperrors.Normalize(err))
	})

	t.Run("InvalidArguments", func(t *testing.T) {
		srv, client := newFake(t)
		_, err := client.Suggest(ctx, "s", &travelapi.SuggestRequest{Message: "   "})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
		_, err = client.Suggest(ctx, "", &travelapi.SuggestRequest{Message: "hi"})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
		assert.Zero(t, srv.Count(travelapi.EndpointSuggest))
	})
}

func TestTransportError(t *testing.T) {
	srv := travelapitest.NewServer()
	cfg := srv.Config()
	srv.Close()

	client := travelapi.NewClient(cfg)
	_, err := client.Suggest(context.Background(), "s", &travelapi.SuggestRequest{Message: "hi"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTransport))
	assert.NotEmpty(t, apperrors.Normalize(err))
}

func TestCanceledContext(t *testing.T) {
	_, client := newFake(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListSessions(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeContextCanceled))
}

func TestAutocomplete(t *testing.T) {
	srv, client := newFake(t)

	srv.AutocompleteHandler = func(q string) travelapitest.Response {
		return travelapitest.Response{Body: []string{q + " 1", "", q + " 2"}}
	}
	names, err := client.Autocomplete(context.Background(), "Hà")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hà 1", "Hà 2"}, names)
	assert.Equal(t, "Hà", srv.Requests()[0].Query["q"])

	srv.AutocompleteHandler = func(string) travelapitest.Response {
		return travelapitest.Response{Body: map[string]any{"items": []any{map[string]string{"name": "Hội An"}}}}
	}
	names, err = client.Autocomplete(context.Background(), "Hộ")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hội An"}, names)

	srv.AutocompleteHandler = func(string) travelapitest.Response {
		return travelapitest.Response{Body: map[string]any{"weird": true}}
	}
	_, err = client.Autocomplete(context.Background(), "x")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMalformedPayload))
}

func TestListSessions(t *testing.T) {
	t.Run("BareArray", func(t *testing.T) {
		srv, client := newFake(t)
		srv.SessionsHandler = func() travelapitest.Response {
			return travelapitest.Response{Body: []byte(`[
				{"sessionId": "s1", "firstMessageAt": "2026-03-01T08:00:00Z", "lastMessageAt": "2026-03-01T09:00:00Z", "turnCount": 4},
				{"session_id": "s2", "last_message_at": 1772355600000, "turn_count": 1},
				{"turnCount": 2}
			]`)}
		}
		sessions, err := client.ListSessions(context.Background())
		require.NoError(t, err)
		require.Len(t, sessions, 2)

		assert.Equal(t, "s1", sessions[0].SessionID)
		assert.Equal(t, 4, sessions[0].TurnCount)
		assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), sessions[0].LastMessageAt.UTC())

		assert.Equal(t, "s2", sessions[1].SessionID)
		assert.Equal(t, 1, sessions[1].TurnCount)
		assert.Equal(t, int64(1772355600000), sessions[1].LastMessageAt.UnixMilli())
	})

	t.Run("ZonelessTimestamps", func(t *testing.T) {
		srv, client := newFake(t)
		srv.SessionsHandler = func() travelapitest.Response {
			return travelapitest.Response{Body: []byte(`[
				{"sessionId": "s1", "lastMessageAt": "2024-05-01T10:00:00.5"},
				{"sessionId": "s2", "lastMessageAt": {"nested": true}}
			]`)}
		}
		sessions, err := client.ListSessions(context.Background())
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 500_000_000, time.UTC), sessions[0].LastMessageAt)
		assert.Equal(t, "s2", sessions[1].SessionID)
		assert.True(t, sessions[1].LastMessageAt.IsZero())
	})

	t.Run("WrappedObject", func(t *testing.T) {
		srv, client := newFake(t)
		srv.SessionsHandler = func() travelapitest.Response {
			return travelapitest.Response{Body: []byte(`{"sessions": [{"sessionId": "s9"}]}`)}
		}
		sessions, err := client.ListSessions(context.Background())
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "s9", sessions[0].SessionID)
	})

	t.Run("UnknownShapeIsEmpty", func(t *testing.T) {
		srv, client := newFake(t)
		srv.SessionsHandler = func() travelapitest.Response {
			return travelapitest.Response{Body: []byte(`{"total": 0}`)}
		}
		sessions, err := client.ListSessions(context.Background())
		require.NoError(t, err)
		assert.Empty(t, sessions)
	})
}

func TestListMessages(t *testing.T) {
	t.Run("ItemsWithHasMore", func(t *testing.T) {
		srv, client := newFake(t)
		srv.MessagesHandler = func(id string, page, pageSize int) travelapitest.Response {
			return travelapitest.Response{Body: []byte(`{
				"items": [{"messageText": "Đà Nẵng có gì?", "replyPayload": {"hotels": []}, "createdAt": "2026-03-01T08:00:00Z"}],
				"hasMore": true
			}`)}
		}
		result, err := client.ListMessages(context.Background(), "s1", 2, 10)
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "Đà Nẵng có gì?", result.Items[0].MessageText)
		assert.JSONEq(t, `{"hotels": []}`, string(result.Items[0].ReplyPayload))
		require.NotNil(t, result.HasMore)
		assert.True(t, *result.HasMore)

		req := srv.Requests()[0]
		assert.Equal(t, "s1", req.SessionID)
		assert.Equal(t, "2", req.Query["page"])
		assert.Equal(t, "10", req.Query["pageSize"])
	})

	t.Run("DataSnakeCase", func(t *testing.T) {
		srv, client := newFake(t)
		srv.MessagesHandler = func(string, int, int) travelapitest.Response {
			return travelapitest.Response{Body: []byte(`{
				"data": [
					{"message_text": "hi", "created_at": "2026-03-01T08:00:00Z"},
					{"reply_payload": {"x": 1}, "created_at": 1772352000}
				]
			}`)}
		}
		result, err := client.ListMessages(context.Background(), "s1", 1, 20)
		require.NoError(t, err)
		require.Len(t, result.Items, 2)
		assert.Nil(t, result.HasMore)
		assert.Equal(t, "hi", result.Items[0].MessageText)
		assert.Nil(t, result.Items[0].ReplyPayload)
		assert.Equal(t, int64(1772352000), result.Items[1].CreatedAt.Unix())
	})

	t.Run("ZonelessAndUnreadableTimestamps", func(t *testing.T) {
		srv, client := newFake(t)
		srv.MessagesHandler = func(string, int, int) travelapitest.Response {
			return travelapitest.Response{Body: []byte(`{
				"items": [
					{"messageText": "a", "createdAt": "2024-05-01T10:00:00"},
					{"messageText": "b", "createdAt": "2024-05-01T10:00:00.123"},
					{"messageText": "c", "created_at": "2024-05-01 10:00:00"},
					{"messageText": "d", "createdAt": "hôm qua"},
					"not a row"
				]
			}`)}
		}
		result, err := client.ListMessages(context.Background(), "s1", 1, 5)
		require.NoError(t, err)
		require.Len(t, result.Items, 4)
		assert.Equal(t, 5, result.Returned)

		want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		assert.Equal(t, want, result.Items[0].CreatedAt)
		assert.Equal(t, want.Add(123*time.Millisecond), result.Items[1].CreatedAt)
		assert.Equal(t, want, result.Items[2].CreatedAt)
		assert.Equal(t, "d", result.Items[3].MessageText)
		assert.True(t, result.Items[3].CreatedAt.IsZero())
	})

	t.Run("RequiresSession", func(t *testing.T) {
		_, client := newFake(t)
		_, err := client.ListMessages(context.Background(), "", 1, 20)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
	})
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	rl := travelapi.NewRateLimiter(1, 2)
	require.NoError(t, rl.Wait(ctx, "suggest"))
	require.NoError(t, rl.Wait(ctx, "suggest"))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(short, "suggest"), "burst spent, next token is a second away")
	assert.NoError(t, rl.Wait(short, "sessions"), "keys are limited independently")

	unlimited := travelapi.NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, unlimited.Wait(ctx, "x"))
	}

	canceled, cancelNow := context.WithCancel(ctx)
	cancelNow()
	assert.Error(t, rl.Wait(canceled, "suggest"))
}
