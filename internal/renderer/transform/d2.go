package transform

import (
	"context"
	"html"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	d2renderer "github.com/Love-Rox/rox-homepage/internal/renderer/d2"
)

// Diagrams returns an extender that compiles ```d2 fences into inline SVG at render time.
// ctxKey names the parser context slot holding the request context, if any.
// A nil renderer leaves the fences as highlighted code.
func Diagrams(r *d2renderer.Renderer, ctxKey parser.ContextKey, logger *slog.Logger) goldmark.Extender {
	if logger == nil {
		logger = slog.Default()
	}
	return &diagrams{renderer: r, ctxKey: ctxKey, logger: logger}
}

type diagrams struct {
	renderer *d2renderer.Renderer
	ctxKey   parser.ContextKey
	logger   *slog.Logger
}

func (d *diagrams) Extend(m goldmark.Markdown) {
	if d.renderer == nil {
		return
	}
	m.Parser().AddOptions(parser.WithASTTransformers(util.Prioritized(d, 300)))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(util.Prioritized(diagramHTML{}, 100)))
}

// Transform replaces every d2 fence with a diagram node holding the compiled SVG,
// or the compile error when the source is invalid.
func (d *diagrams) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	source := reader.Source()

	var fences []*ast.FencedCodeBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if fence, ok := n.(*ast.FencedCodeBlock); ok {
			if strings.EqualFold(strings.TrimSpace(string(fence.Language(source))), "d2") {
				fences = append(fences, fence)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if len(fences) == 0 {
		return
	}

	ctx := requestContext(pc, d.ctxKey)
	for _, fence := range fences {
		node := &diagram{Source: string(fence.Lines().Value(source))}
		res, err := d.renderer.Render(ctx, node.Source)
		if err != nil {
			d.logger.WarnContext(ctx, "d2 diagram failed to compile", slog.Any("err", err))
			node.Err = err.Error()
		} else {
			node.SVG = res.SVG
		}
		node.SetBlankPreviousLines(fence.HasBlankPreviousLines())
		fence.Parent().ReplaceChild(fence.Parent(), fence, node)
	}
}

func requestContext(pc parser.Context, key parser.ContextKey) context.Context {
	if pc != nil {
		if ctx, ok := pc.Get(key).(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

var kindDiagram = ast.NewNodeKind("Diagram")

type diagram struct {
	ast.BaseBlock
	Source string
	SVG    string
	Err    string
}

func (n *diagram) Kind() ast.NodeKind { return kindDiagram }

func (n *diagram) IsRaw() bool { return true }

func (n *diagram) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Err": n.Err}, nil)
}

type diagramHTML struct{}

func (diagramHTML) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(kindDiagram, func(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkSkipChildren, nil
		}
		n := node.(*diagram)
		_, _ = w.WriteString(`<div class="d2-block">`)
		if n.Err != "" {
			_, _ = w.WriteString(`<pre class="d2-error" title="`)
			_, _ = w.WriteString(html.EscapeString(n.Err))
			_, _ = w.WriteString(`"><code>`)
			_, _ = w.WriteString(html.EscapeString(n.Source))
			_, _ = w.WriteString("</code></pre>")
		} else {
			_, _ = w.WriteString(n.SVG)
		}
		_, _ = w.WriteString("</div>\n")
		return ast.WalkSkipChildren, nil
	})
}
