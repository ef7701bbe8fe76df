// Package renderer converts markdown documents with front matter into HTML.
package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	goldmarkmeta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"go.abhg.dev/goldmark/anchor"

	d2renderer "github.com/Love-Rox/rox-homepage/internal/renderer/d2"
	"github.com/Love-Rox/rox-homepage/internal/renderer/transform"
)

// ErrMalformed reports front matter that cannot be decoded or a body the pipeline failed to transform.
var ErrMalformed = errors.New("malformed markdown document")

// Document represents a rendered markdown file.
type Document struct {
	HTML     string
	Metadata Metadata
	RawBody  string
}

// Service renders markdown into HTML.
// The pipeline is fixed: CommonMark, GFM, alert blockquotes, server-side d2 diagrams,
// then raw HTML passthrough. Nothing is cached; callers re-render on every request.
type Service struct {
	md     goldmark.Markdown
	logger *slog.Logger
}

// Options configures optional pipeline stages.
type Options struct {
	// Diagrams compiles ```d2 fences into inline SVG. Nil leaves them as plain code blocks.
	Diagrams *d2renderer.Renderer
	// HighlightStyle is the chroma style name; classes are emitted either way.
	HighlightStyle string
}

var (
	headingTitleKey = parser.NewContextKey()
	requestCtxKey   = parser.NewContextKey()
)

// headingTitleTransformer records the text of the first level-1 heading so documents
// without front matter still get a title.
type headingTitleTransformer struct{}

func (headingTitleTransformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
			if title := strings.TrimSpace(nodeText(h, reader.Source())); title != "" {
				pc.Set(headingTitleKey, title)
			}
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
}

// linkTransformer rewrites sibling links such as "installation.md#setup" to slug routes.
type linkTransformer struct{}

func (linkTransformer) Transform(node *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if link, ok := n.(*ast.Link); ok {
			link.Destination = []byte(rewriteDocLink(string(link.Destination)))
		}
		return ast.WalkContinue, nil
	})
}

func rewriteDocLink(dest string) string {
	if dest == "" || strings.HasPrefix(dest, "#") || strings.Contains(dest, "://") || strings.HasPrefix(dest, "mailto:") {
		return dest
	}
	target, fragment, _ := strings.Cut(dest, "#")
	target = strings.TrimPrefix(target, "./")
	if !strings.HasSuffix(target, ".md") || strings.Contains(target, "/") {
		return dest
	}
	slug := strings.TrimSuffix(target, ".md")
	if fragment != "" {
		return slug + "#" + fragment
	}
	return slug
}

// NewService constructs the markdown pipeline.
// If logger is nil, the default slog logger is used.
func NewService(logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	style := opts.HighlightStyle
	if style == "" {
		style = "github"
	}
	logger = logger.With("component", "renderer")

	highlight := highlighting.NewHighlighting(
		highlighting.WithStyle(style),
		highlighting.WithFormatOptions(
			html.WithLineNumbers(false),
			html.WithClasses(true),
		),
	)

	extensions := []goldmark.Extender{
		extension.GFM,
		goldmarkmeta.Meta,
		transform.Alerts,
		highlight,
		&anchor.Extender{
			Position: anchor.After,
		},
	}
	if opts.Diagrams != nil {
		extensions = append(extensions, transform.Diagrams(opts.Diagrams, requestCtxKey, logger))
	}

	md := goldmark.New(
		goldmark.WithExtensions(extensions...),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithAttribute(),
			parser.WithASTTransformers(
				util.Prioritized(headingTitleTransformer{}, 1000),
				util.Prioritized(linkTransformer{}, 100),
			),
		),
		goldmark.WithRendererOptions(
			// Content is authored in the repository, so raw HTML is passed through unescaped.
			htmlrenderer.WithUnsafe(),
			htmlrenderer.WithXHTML(),
		),
	)

	return &Service{
		md:     md,
		logger: logger,
	}
}

// Render converts markdown content to HTML. name identifies the document in logs and errors.
// Undecodable front matter and failures inside the pipeline are reported as ErrMalformed.
func (s *Service) Render(ctx context.Context, name string, content []byte) (doc Document, err error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "markdown pipeline panicked", slog.String("doc", name), slog.Any("err", r))
			doc = Document{}
			err = fmt.Errorf("%w: %s: %v", ErrMalformed, name, r)
		}
	}()

	pc := parser.NewContext()
	pc.Set(requestCtxKey, ctx)
	buf := bytes.NewBuffer(nil)

	if err := s.md.Convert(content, buf, parser.WithContext(pc)); err != nil {
		return Document{}, fmt.Errorf("%w: %s: %w", ErrMalformed, name, err)
	}

	raw, err := goldmarkmeta.TryGet(pc)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s: front matter: %w", ErrMalformed, name, err)
	}

	meta := extractMetadata(raw)
	if meta.Title == "" {
		if v, ok := pc.Get(headingTitleKey).(string); ok {
			meta.Title = v
		}
	}

	return Document{
		HTML:     buf.String(),
		Metadata: meta,
		RawBody:  string(SplitFrontMatter(content)),
	}, nil
}

// SplitFrontMatter returns content with a leading "---" delimited block removed.
// Content without a complete block is returned unchanged.
func SplitFrontMatter(content []byte) []byte {
	first, rest, ok := cutLine(content)
	if !ok || !isDelimiter(first) {
		return content
	}
	for len(rest) > 0 {
		var line []byte
		line, rest, _ = cutLine(rest)
		if isDelimiter(line) {
			return rest
		}
	}
	return content
}

func cutLine(b []byte) (line, rest []byte, found bool) {
	line, rest, found = bytes.Cut(b, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r")), rest, found
}

func isDelimiter(line []byte) bool {
	return string(bytes.TrimRight(line, " \t")) == "---"
}

func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
