package main

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/staybot/plugin/travelapi"
	"github.com/hrygo/staybot/plugin/travelapi/travelapitest"
)

func newFake(t *testing.T) *travelapitest.Server {
	t.Helper()
	srv := travelapitest.NewServer()
	t.Cleanup(srv.Close)
	return srv
}

// run executes the CLI against srv and returns stdout, stderr and the command error.
func run(t *testing.T, srv *travelapitest.Server, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(append([]string{"--base-url", srv.URL, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestLoadProfile(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		p, err := loadProfile(viper.New())
		require.NoError(t, err)
		assert.Equal(t, "demo", p.Mode)
		assert.Equal(t, "http://localhost:8080/api", p.BaseURL)
		assert.Equal(t, 20, p.PageSize)
		assert.Nil(t, p.Filters)
	})

	t.Run("InvalidBaseURL", func(t *testing.T) {
		v := viper.New()
		v.Set("base-url", "ftp://example.com")
		_, err := loadProfile(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("NegativeTopN", func(t *testing.T) {
		v := viper.New()
		v.Set("top-n", -1)
		_, err := loadProfile(v)
		assert.Error(t, err)
	})

	t.Run("Filters", func(t *testing.T) {
		v := viper.New()
		v.Set("filters", map[string]any{"stars": 4})
		p, err := loadProfile(v)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"stars": 4}, p.Filters)
	})
}

func TestRootCmd_Environment(t *testing.T) {
	srv := newFake(t)
	t.Setenv("STAYBOT_BASE_URL", srv.URL)
	t.Setenv("STAYBOT_TOKEN", "env-token")

	var out, errOut bytes.Buffer
	cmd := newRootCmd(strings.NewReader(""), &out, &errOut)
	cmd.SetArgs([]string{"ask", "xin chào"})
	require.NoError(t, cmd.Execute())

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer env-token", reqs[0].Authorization)
	assert.Contains(t, out.String(), `"answer": "ok"`)
}

func TestRootCmd_ConfigFile(t *testing.T) {
	srv := newFake(t)
	path := filepath.Join(t.TempDir(), "staybot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("top-n: 3\nfilters:\n  stars: 4\n"), 0o600))

	_, _, err := run(t, srv, "", "--config", path, "ask", "khách sạn Huế")
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Suggest)
	assert.Equal(t, 3, reqs[0].Suggest.TopN)
	assert.EqualValues(t, 4, reqs[0].Suggest.Filters["stars"])

	_, _, err = run(t, srv, "", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "ask", "x")
	assert.Error(t, err)
}

func TestAskCmd(t *testing.T) {
	srv := newFake(t)
	srv.SuggestHandler = func(string, travelapi.SuggestRequest) travelapitest.Response {
		return travelapitest.Response{Body: map[string]any{
			"suggestions": []string{"Huế", "Đà Nẵng"},
		}}
	}

	out, _, err := run(t, srv, "", "ask", "--filter", "city=hue", "--top-n", "5", "đi", "đâu")
	require.NoError(t, err)
	assert.Contains(t, out, `"Huế", "Đà Nẵng"`)
	assert.Contains(t, out, "  1) Huế\n")
	assert.Contains(t, out, "  2) Đà Nẵng\n")

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "đi đâu", reqs[0].Suggest.Message)
	assert.Equal(t, 5, reqs[0].Suggest.TopN)
	assert.Equal(t, "hue", reqs[0].Suggest.Filters["city"])
	assert.NotEmpty(t, reqs[0].SessionID)

	t.Run("ServerError", func(t *testing.T) {
		srv.SuggestHandler = func(string, travelapi.SuggestRequest) travelapitest.Response {
			return travelapitest.Response{Status: http.StatusServiceUnavailable, Body: map[string]any{"message": "hệ thống đang bận"}}
		}
		_, _, err := run(t, srv, "", "ask", "xin chào")
		require.Error(t, err)
		assert.Equal(t, "hệ thống đang bận", err.Error())
	})
}

func TestSessionsCmd(t *testing.T) {
	srv := newFake(t)
	srv.SessionsHandler = func() travelapitest.Response {
		return travelapitest.Response{Body: []map[string]any{
			{"sessionId": "older", "lastMessageAt": "2026-03-01T08:00:00Z", "turnCount": 2},
			{"sessionId": "newer", "lastMessageAt": "2026-03-02T08:00:00Z", "turnCount": 7},
		}}
	}

	out, _, err := run(t, srv, "", "sessions")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "PHIÊN"))
	assert.True(t, strings.HasPrefix(lines[1], "newer"))
	assert.True(t, strings.HasSuffix(lines[1], "  7"))
	assert.True(t, strings.HasPrefix(lines[2], "older"))

	t.Run("Empty", func(t *testing.T) {
		srv.SessionsHandler = func() travelapitest.Response {
			return travelapitest.Response{Body: []any{}}
		}
		out, _, err := run(t, srv, "", "sessions")
		require.NoError(t, err)
		assert.Equal(t, "Chưa có phiên trò chuyện nào.\n", out)
	})

	t.Run("Failure", func(t *testing.T) {
		srv.SessionsHandler = func() travelapitest.Response {
			return travelapitest.Response{Status: http.StatusInternalServerError, Body: map[string]any{"error": "db down"}}
		}
		_, _, err := run(t, srv, "", "sessions")
		require.Error(t, err)
		assert.Equal(t, "db down", err.Error())
	})
}

func historyRows(n int) []map[string]any {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{
			"messageText":  "câu hỏi",
			"replyPayload": map[string]any{"hotels": []any{}},
			"createdAt":    base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		}
	}
	return rows
}

func TestHistoryCmd(t *testing.T) {
	srv := newFake(t)
	srv.MessagesHandler = func(_ string, _, pageSize int) travelapitest.Response {
		return travelapitest.Response{Body: map[string]any{"items": historyRows(pageSize)}}
	}

	out, errOut, err := run(t, srv, "", "history", "s-1", "--page-size", "2", "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# Cuộc trò chuyện s-1")
	assert.Contains(t, out, "- **Số tin nhắn**: 4")
	assert.Contains(t, out, "Không tìm thấy khách sạn phù hợp")
	assert.Contains(t, errOut, "Còn tin nhắn cũ hơn: --page 2")

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "s-1", reqs[0].SessionID)
	assert.Equal(t, "1", reqs[0].Query["page"])
	assert.Equal(t, "2", reqs[0].Query["pageSize"])

	t.Run("OutputFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "s-1.html")
		out, _, err := run(t, srv, "", "history", "s-1", "--page-size", "1", "--format", "html", "-o", path)
		require.NoError(t, err)
		assert.Equal(t, "Đã lưu 2 tin nhắn vào "+path+"\n", out)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "<!DOCTYPE html>"))
	})

	t.Run("BadFormat", func(t *testing.T) {
		_, _, err := run(t, srv, "", "history", "s-1", "--format", "pdf")
		assert.Error(t, err)
	})
}

func TestAutocompleteCmd(t *testing.T) {
	srv := newFake(t)
	srv.AutocompleteHandler = func(q string) travelapitest.Response {
		return travelapitest.Response{Body: []string{q + " 1", q + " 2"}}
	}

	out, _, err := run(t, srv, "", "autocomplete", "Đà")
	require.NoError(t, err)
	assert.Equal(t, "Đà 1\nĐà 2\n", out)

	out, _, err = run(t, srv, "", "autocomplete", "Đ")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 1, srv.Count(travelapi.EndpointAutocomplete))
}

func TestChatCmd(t *testing.T) {
	srv := newFake(t)
	srv.SuggestHandler = func(_ string, req travelapi.SuggestRequest) travelapitest.Response {
		if req.Message == "Huế" {
			return travelapitest.Response{Body: map[string]any{"hotels": []any{}}}
		}
		return travelapitest.Response{Body: map[string]any{"suggestions": []string{"Huế", "Hà Nội"}}}
	}
	srv.MessagesHandler = func(string, int, int) travelapitest.Response {
		return travelapitest.Response{Body: map[string]any{"items": historyRows(1), "hasMore": false}}
	}

	script := strings.Join([]string{
		"khách sạn",
		"/pick 1",
		"/pick 9",
		"/more",
		"/restore s-9",
		"/new",
		"/stats",
		"/help",
		"/unknown",
		"/quit",
		"never sent",
	}, "\n")

	out, _, err := run(t, srv, script, "chat")
	require.NoError(t, err)

	assert.Contains(t, out, "  1) Huế\n")
	assert.Contains(t, out, "Không tìm thấy khách sạn phù hợp")
	assert.Contains(t, out, "Không có gợi ý nào để chọn.")
	assert.Contains(t, out, "Không còn tin nhắn cũ hơn.")
	assert.Contains(t, out, "Bạn: câu hỏi\n")
	assert.Contains(t, out, "Đã bắt đầu phiên mới ")
	assert.Contains(t, out, "Yêu cầu: 3")
	assert.Contains(t, out, "/help         hiện danh sách lệnh")
	assert.Contains(t, out, "Lệnh không hợp lệ: /unknown")

	assert.Equal(t, 2, srv.Count(travelapi.EndpointSuggest))
	for _, r := range srv.Requests() {
		if r.Suggest != nil {
			assert.NotEqual(t, "never sent", r.Suggest.Message)
		}
	}
}

func TestChatCmd_SendError(t *testing.T) {
	srv := newFake(t)
	srv.SuggestHandler = func(string, travelapi.SuggestRequest) travelapitest.Response {
		return travelapitest.Response{Status: http.StatusBadGateway, Body: map[string]any{"message": "upstream lỗi"}}
	}

	out, _, err := run(t, srv, "xin chào\n", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "Lỗi: upstream lỗi\n")
}

func TestFit(t *testing.T) {
	assert.Equal(t, "abc  ", fit("abc", 5))
	assert.Equal(t, "Đà Nẵng", fit("Đà Nẵng", 7))
	got := fit("0123456789", 6)
	assert.True(t, strings.HasPrefix(got, "0123"))
	assert.LessOrEqual(t, len([]rune(got)), 6)
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "-", formatDate(time.Time{}))
	assert.Len(t, formatDate(time.Now()), len(dateLayout))
}
