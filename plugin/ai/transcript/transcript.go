// Package transcript renders a conversation transcript as plain text, Markdown or HTML.
package transcript

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/staybot/plugin/ai/session"
)

// Format is an export format.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat accepts a format name or a common alias (txt, md, htm).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	default:
		return "", errors.Errorf("unknown transcript format %q (want text, markdown or html)", s)
	}
}

// Exporter renders a transcript.
type Exporter interface {
	// Export renders msgs in the exporter's format.
	Export(msgs []session.Message) ([]byte, error)
	// FileExtension returns the file extension, including the dot.
	FileExtension() string
	// MimeType returns the MIME type of the output.
	MimeType() string
}

// Options configures an exporter.
type Options struct {
	// SessionID is shown in the header when set.
	SessionID string
	// IncludeTimestamps prefixes each message with its time.
	IncludeTimestamps bool
	// Location formats timestamps. Defaults to time.Local.
	Location *time.Location
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeTimestamps: true,
		Location:          time.Local,
	}
}

// New returns the exporter for format.
func New(format Format, opts *Options) (Exporter, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	switch format {
	case FormatText:
		return &TextExporter{options: opts}, nil
	case FormatMarkdown:
		return &MarkdownExporter{options: opts}, nil
	case FormatHTML:
		return NewHTMLExporter(opts), nil
	default:
		return nil, errors.Errorf("unsupported transcript format %q", format)
	}
}

// roleLabel is the speaker label shown to Vietnamese-speaking users.
func roleLabel(role session.Role) string {
	switch role {
	case session.RoleUser:
		return "Bạn"
	case session.RoleAssistant:
		return "Trợ lý"
	default:
		return string(role)
	}
}

func formatTimestamp(ms int64, loc *time.Location) string {
	return time.UnixMilli(ms).In(loc).Format("2006-01-02 15:04:05")
}

// TextExporter renders one block per message.
type TextExporter struct {
	options *Options
}

// Export implements Exporter.
func (e *TextExporter) Export(msgs []session.Message) ([]byte, error) {
	var sb strings.Builder
	if e.options.SessionID != "" {
		fmt.Fprintf(&sb, "Phiên: %s\n\n", e.options.SessionID)
	}

	for i, msg := range msgs {
		if i > 0 {
			sb.WriteString("\n")
		}
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, "[%s] ", formatTimestamp(msg.Timestamp, e.options.Location))
		}
		fmt.Fprintf(&sb, "%s: %s\n", roleLabel(msg.Role), strings.TrimSpace(msg.Content))
	}
	return []byte(sb.String()), nil
}

// FileExtension implements Exporter.
func (e *TextExporter) FileExtension() string { return ".txt" }

// MimeType implements Exporter.
func (e *TextExporter) MimeType() string { return "text/plain; charset=utf-8" }
