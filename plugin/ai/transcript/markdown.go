package transcript

import (
	"fmt"
	"strings"

	"github.com/hrygo/staybot/plugin/ai/session"
)

// MarkdownExporter renders a transcript as Markdown.
type MarkdownExporter struct {
	options *Options
}

// Export implements Exporter.
func (e *MarkdownExporter) Export(msgs []session.Message) ([]byte, error) {
	var sb strings.Builder

	title := "Cuộc trò chuyện"
	if e.options.SessionID != "" {
		title += " " + escapeMarkdown(e.options.SessionID)
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "- **Số tin nhắn**: %d\n", len(msgs))
	if len(msgs) > 0 && e.options.IncludeTimestamps {
		fmt.Fprintf(&sb, "- **Từ**: %s\n", formatTimestamp(msgs[0].Timestamp, e.options.Location))
		fmt.Fprintf(&sb, "- **Đến**: %s\n", formatTimestamp(msgs[len(msgs)-1].Timestamp, e.options.Location))
	}
	sb.WriteString("\n")

	for i, msg := range msgs {
		if i > 0 {
			sb.WriteString("---\n\n")
		}
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, "### %s _(%s)_\n\n", roleLabel(msg.Role), formatTimestamp(msg.Timestamp, e.options.Location))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", roleLabel(msg.Role))
		}
		sb.WriteString(formatContent(msg))
		sb.WriteString("\n\n")
	}
	return []byte(sb.String()), nil
}

// FileExtension implements Exporter.
func (e *MarkdownExporter) FileExtension() string { return ".md" }

// MimeType implements Exporter.
func (e *MarkdownExporter) MimeType() string { return "text/markdown; charset=utf-8" }

// formatContent keeps line structure: user text is escaped, and reply text that is a JSON dump
// goes into a code fence.
func formatContent(msg session.Message) string {
	content := strings.TrimSpace(msg.Content)
	if msg.Role == session.RoleAssistant && (strings.HasPrefix(content, "{") || strings.HasPrefix(content, "[")) {
		return "```json\n" + content + "\n```"
	}
	if msg.Role == session.RoleUser {
		content = escapeMarkdown(content)
	}
	return content
}

// escapeMarkdown escapes characters that would turn plain text into formatting.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"#", `\#`,
	"*", `\*`,
	"_", `\_`,
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
	"`", "\\`",
)
