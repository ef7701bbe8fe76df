// Package transform provides custom AST transformations for markdown elements.
package transform

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// alertMarker matches the first line of a GitHub-style alert: "> [!NOTE]".
var alertMarker = regexp.MustCompile(`^\s*\[!(?i:(note|tip|important|warning|caution))\]\s*$`)

var alertTitles = map[string]string{
	"note":      "Note",
	"tip":       "Tip",
	"important": "Important",
	"warning":   "Warning",
	"caution":   "Caution",
}

// Alerts turns blockquotes opening with "[!NOTE]", "[!TIP]", "[!IMPORTANT]", "[!WARNING]"
// or "[!CAUTION]" into admonition blocks.
var Alerts goldmark.Extender = &alertExtender{}

type alertExtender struct{}

func (e *alertExtender) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithASTTransformers(util.Prioritized(&AlertTransformer{}, 200)))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(util.Prioritized(&AlertRenderer{}, 200)))
}

// Alert is an admonition block replacing a tagged blockquote.
type Alert struct {
	ast.BaseBlock
	AlertKind string
}

// KindAlert represents an alert node kind.
var KindAlert = ast.NewNodeKind("Alert")

// Kind implements ast.Node.
func (a *Alert) Kind() ast.NodeKind {
	return KindAlert
}

// Dump aids debugging.
func (a *Alert) Dump(source []byte, level int) {
	ast.DumpHelper(a, source, level, map[string]string{"AlertKind": a.AlertKind}, nil)
}

// AlertTransformer rewrites tagged blockquotes into Alert nodes.
type AlertTransformer struct{}

// Transform implements parser.ASTTransformer.
func (t *AlertTransformer) Transform(node *ast.Document, reader text.Reader, _ parser.Context) {
	var quotes []*ast.Blockquote
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if bq, ok := n.(*ast.Blockquote); ok && entering {
			quotes = append(quotes, bq)
		}
		return ast.WalkContinue, nil
	})

	source := reader.Source()
	for _, bq := range quotes {
		para, ok := bq.FirstChild().(*ast.Paragraph)
		if !ok || para.Lines().Len() == 0 {
			continue
		}
		first := para.Lines().At(0)
		m := alertMarker.FindSubmatch(first.Value(source))
		if m == nil {
			continue
		}

		stripMarkerLine(para, first)
		if para.ChildCount() == 0 {
			bq.RemoveChild(bq, para)
		}

		alert := &Alert{AlertKind: strings.ToLower(string(m[1]))}
		for child := bq.FirstChild(); child != nil; {
			next := child.NextSibling()
			alert.AppendChild(alert, child)
			child = next
		}
		parent := bq.Parent()
		if parent == nil {
			continue
		}
		parent.ReplaceChild(parent, bq, alert)
	}
}

// stripMarkerLine removes the inline nodes that came from the marker line.
func stripMarkerLine(para *ast.Paragraph, line text.Segment) {
	for child := para.FirstChild(); child != nil; {
		next := child.NextSibling()
		txt, ok := child.(*ast.Text)
		if !ok || txt.Segment.Start >= line.Stop {
			break
		}
		para.RemoveChild(para, child)
		child = next
	}
	lines := para.Lines()
	if lines.Len() > 0 {
		rest := text.NewSegments()
		for i := 1; i < lines.Len(); i++ {
			rest.Append(lines.At(i))
		}
		para.SetLines(rest)
	}
}

// AlertRenderer writes Alert nodes as GitHub-compatible markup.
type AlertRenderer struct{}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *AlertRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindAlert, r.renderAlert)
}

func (r *AlertRenderer) renderAlert(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	alert := node.(*Alert)
	if !entering {
		_, err := w.WriteString("</div>\n")
		return ast.WalkContinue, err
	}

	_, _ = w.WriteString(`<div class="markdown-alert markdown-alert-` + alert.AlertKind + `">` + "\n")
	_, _ = w.WriteString(`<p class="markdown-alert-title">`)
	_, _ = w.Write(util.EscapeHTML([]byte(alertTitles[alert.AlertKind])))
	_, err := w.WriteString("</p>\n")
	return ast.WalkContinue, err
}
