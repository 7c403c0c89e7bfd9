package transcript

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/staybot/plugin/ai/session"
)

var at = time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)

func sample() []session.Message {
	return []session.Message{
		{ID: "m1", Role: session.RoleUser, Content: "Đà Nẵng có gì *hay*?", Timestamp: at.UnixMilli()},
		{ID: "m2", Role: session.RoleAssistant, Content: "Gợi ý cho Đà Nẵng:\n\nĐịa điểm:\n• Cầu Rồng - sông Hàn", Timestamp: at.UnixMilli() + 1},
		{ID: "m3", Role: session.RoleUser, Content: "<script>alert(1)</script>", Timestamp: at.Add(time.Minute).UnixMilli()},
		{ID: "m4", Role: session.RoleAssistant, Content: "{\n  \"answer\": 42\n}", Timestamp: at.Add(time.Minute).UnixMilli() + 1},
	}
}

func utcOptions() *Options {
	return &Options{SessionID: "s-123", IncludeTimestamps: true, Location: time.UTC}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatText},
		{in: "txt", want: FormatText},
		{in: "MD", want: FormatMarkdown},
		{in: "markdown", want: FormatMarkdown},
		{in: " html ", want: FormatHTML},
		{in: "pdf", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	for _, f := range []Format{FormatText, FormatMarkdown, FormatHTML} {
		e, err := New(f, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, e.FileExtension())
		assert.NotEmpty(t, e.MimeType())
	}
	_, err := New("pdf", nil)
	assert.Error(t, err)
}

func TestTextExporter(t *testing.T) {
	e, err := New(FormatText, utcOptions())
	require.NoError(t, err)

	out, err := e.Export(sample())
	require.NoError(t, err)
	text := string(out)

	assert.True(t, strings.HasPrefix(text, "Phiên: s-123\n\n"))
	assert.Contains(t, text, "[2026-03-01 08:30:00] Bạn: Đà Nẵng có gì *hay*?\n")
	assert.Contains(t, text, "Trợ lý: Gợi ý cho Đà Nẵng:")
	assert.Equal(t, ".txt", e.FileExtension())

	t.Run("WithoutTimestamps", func(t *testing.T) {
		e, err := New(FormatText, &Options{})
		require.NoError(t, err)
		out, err := e.Export(sample()[:1])
		require.NoError(t, err)
		assert.Equal(t, "Bạn: Đà Nẵng có gì *hay*?\n", string(out))
	})
}

func TestMarkdownExporter(t *testing.T) {
	e, err := New(FormatMarkdown, utcOptions())
	require.NoError(t, err)

	out, err := e.Export(sample())
	require.NoError(t, err)
	md := string(out)

	assert.Contains(t, md, "# Cuộc trò chuyện s-123\n")
	assert.Contains(t, md, "- **Số tin nhắn**: 4\n")
	assert.Contains(t, md, "### Bạn _(2026-03-01 08:30:00)_\n")
	assert.Contains(t, md, `Đà Nẵng có gì \*hay\*?`)
	assert.Contains(t, md, "• Cầu Rồng - sông Hàn")
	assert.Contains(t, md, "```json\n{\n  \"answer\": 42\n}\n```")
	assert.Equal(t, 3, strings.Count(md, "---\n"))
}

func TestHTMLExporter(t *testing.T) {
	e, err := New(FormatHTML, utcOptions())
	require.NoError(t, err)

	out, err := e.Export(sample())
	require.NoError(t, err)
	page := string(out)

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<title>Cuộc trò chuyện s-123</title>")
	assert.Contains(t, page, "<h1>Cuộc trò chuyện s-123</h1>")
	assert.Contains(t, page, "Cầu Rồng - sông Hàn")
	assert.Contains(t, page, "<hr>")
	assert.NotContains(t, page, "<script>")
	assert.Contains(t, page, "&lt;script&gt;")
	assert.True(t, strings.HasSuffix(page, "</html>\n"))
	assert.Equal(t, "text/html; charset=utf-8", e.MimeType())
}

func TestEmptyTranscript(t *testing.T) {
	for _, f := range []Format{FormatText, FormatMarkdown, FormatHTML} {
		e, err := New(f, &Options{Location: time.UTC})
		require.NoError(t, err)
		_, err = e.Export(nil)
		assert.NoError(t, err, "format %s", f)
	}
}
