// Package exporter converts documentation pages into downloadable formats.
package exporter

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html"
	"html/template"
	"io"
	"log/slog"
	"strings"

	pdf "github.com/stephenafamo/goldmark-pdf"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/Love-Rox/rox-homepage/internal/content"
	d2renderer "github.com/Love-Rox/rox-homepage/internal/renderer/d2"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/export.gohtml"))

// Format represents an export format.
type Format string

const (
	// FormatHTML exports a standalone HTML document.
	FormatHTML Format = "html"
	// FormatMarkdown exports the markdown body without front matter.
	FormatMarkdown Format = "markdown"
	// FormatPlainText exports the rendered text without markup.
	FormatPlainText Format = "txt"
	// FormatPDF exports a PDF with diagrams rasterized.
	FormatPDF Format = "pdf"
)

// ErrUnsupportedFormat is returned for formats outside ValidFormats.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ValidFormats returns the list of supported export formats.
func ValidFormats() []Format {
	return []Format{FormatHTML, FormatMarkdown, FormatPlainText, FormatPDF}
}

// ParseFormat normalizes a format name. An empty name selects markdown.
func ParseFormat(format string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(format)))
	switch f {
	case "", "md":
		return FormatMarkdown, nil
	case "text":
		return FormatPlainText, nil
	}
	for _, valid := range ValidFormats() {
		if f == valid {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %s (allowed: html, pdf, markdown, txt)", ErrUnsupportedFormat, format)
}

// Loader resolves the document to export.
type Loader interface {
	Resolve(ctx context.Context, loc content.Locator) (content.Document, error)
}

// Exporter renders resolved documents into download formats.
type Exporter struct {
	loader   Loader
	diagrams *diagramEncoder
	logger   *slog.Logger
	siteName string
}

// New constructs an exporter. diagrams may be nil, in which case d2 fences stay as code in PDFs.
func New(loader Loader, diagrams *d2renderer.Renderer, siteName string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "exporter")
	return &Exporter{
		loader:   loader,
		diagrams: &diagramEncoder{d2: diagrams, logger: logger},
		logger:   logger,
		siteName: siteName,
	}
}

// ExportPageOptions configures a single page export.
type ExportPageOptions struct {
	Writer    io.Writer
	Format    Format
	Locator   content.Locator
	SourceURL string
}

// ExportPage resolves one page and writes it in the requested format.
// Resolution errors from the loader are returned unchanged so callers can match them.
func (e *Exporter) ExportPage(ctx context.Context, opts ExportPageOptions) error {
	if opts.Writer == nil {
		return errors.New("writer is required")
	}
	format, err := ParseFormat(string(opts.Format))
	if err != nil {
		return err
	}

	doc, err := e.loader.Resolve(ctx, opts.Locator)
	if err != nil {
		return err
	}

	switch format {
	case FormatHTML:
		return e.exportHTML(doc, opts)
	case FormatMarkdown:
		_, err = io.WriteString(opts.Writer, doc.RawBody)
		return err
	case FormatPlainText:
		_, err = io.WriteString(opts.Writer, stripHTML(doc.HTML)+"\n")
		return err
	case FormatPDF:
		return e.exportPDF(ctx, doc, opts.Writer)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func (e *Exporter) exportHTML(doc content.Document, opts ExportPageOptions) error {
	data := struct {
		Title  string
		Site   string
		Locale string
		Source string
		HTML   template.HTML
	}{
		Title:  doc.Metadata.Title,
		Site:   e.siteName,
		Locale: doc.Locator.Locale,
		Source: opts.SourceURL,
		HTML:   template.HTML(doc.HTML), //nolint:gosec // HTML from the trusted content renderer
	}
	if err := pageTemplate.Execute(opts.Writer, data); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

func (e *Exporter) exportPDF(ctx context.Context, doc content.Document, w io.Writer) error {
	source, err := e.diagrams.encode(ctx, []byte(doc.RawBody))
	if err != nil {
		return fmt.Errorf("prepare diagrams: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			meta.Meta,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRenderer(pdf.New()),
	)

	if err := md.Convert(source, w); err != nil {
		return fmt.Errorf("convert markdown to PDF: %w", err)
	}
	return nil
}

// stripHTML removes tags and decodes entities, keeping the text between them.
func stripHTML(s string) string {
	s = removeTagWithContent(s, "script")
	s = removeTagWithContent(s, "style")
	s = removeTagWithContent(s, "svg")

	var result strings.Builder
	inTag := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '<':
			inTag = true
		case c == '>':
			inTag = false
		case !inTag:
			result.WriteByte(c)
		}
	}

	text := html.UnescapeString(result.String())
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}

// removeTagWithContent removes all occurrences of a tag and its content.
func removeTagWithContent(s, tag string) string {
	openTag := "<" + tag
	closeTag := "</" + tag + ">"
	for {
		lower := strings.ToLower(s)
		start := strings.Index(lower, openTag)
		if start == -1 {
			return s
		}
		end := strings.Index(lower[start:], closeTag)
		if end == -1 {
			return s
		}
		s = s[:start] + s[start+end+len(closeTag):]
	}
}

// ContentType returns the MIME type for the given format.
func ContentType(format Format) string {
	switch format {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatPlainText:
		return "text/plain; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// FileExtension returns the file extension for the given format.
func FileExtension(format Format) string {
	switch format {
	case FormatHTML:
		return ".html"
	case FormatMarkdown:
		return ".md"
	case FormatPlainText:
		return ".txt"
	case FormatPDF:
		return ".pdf"
	default:
		return ""
	}
}

// Filename returns the download name for a page, e.g. "introduction.ja.pdf".
func Filename(loc content.Locator, format Format) string {
	return loc.Slug + "." + loc.Locale + FileExtension(format)
}
