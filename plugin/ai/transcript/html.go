package transcript

import (
	"bytes"
	"fmt"
	"html"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/hrygo/staybot/plugin/ai/session"
)

const htmlHead = `<!DOCTYPE html>
<html lang="vi">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
h3 { margin-bottom: 0.25rem; }
h3 em { color: #666; font-weight: normal; }
pre { background: #f5f5f5; padding: 0.75rem; overflow-x: auto; }
</style>
</head>
<body>
`

const htmlFoot = "</body>\n</html>\n"

// HTMLExporter renders the Markdown transcript to a standalone HTML page.
// Raw HTML in messages is not passed through.
type HTMLExporter struct {
	markdown *MarkdownExporter
	md       goldmark.Markdown
}

// NewHTMLExporter creates an HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{
		markdown: &MarkdownExporter{options: opts},
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
	}
}

// Export implements Exporter.
func (e *HTMLExporter) Export(msgs []session.Message) ([]byte, error) {
	src, err := e.markdown.Export(msgs)
	if err != nil {
		return nil, err
	}

	title := "Cuộc trò chuyện"
	if id := e.markdown.options.SessionID; id != "" {
		title += " " + id
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, htmlHead, html.EscapeString(title))
	if err := e.md.Convert(src, &buf); err != nil {
		return nil, errors.Wrap(err, "failed to render transcript html")
	}
	buf.WriteString(htmlFoot)
	return buf.Bytes(), nil
}

// FileExtension implements Exporter.
func (e *HTMLExporter) FileExtension() string { return ".html" }

// MimeType implements Exporter.
func (e *HTMLExporter) MimeType() string { return "text/html; charset=utf-8" }
