package renderer_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Love-Rox/rox-homepage/internal/renderer"
	"github.com/Love-Rox/rox-homepage/internal/renderer/d2"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRenderWithMetadataAndHighlighting(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger(), renderer.Options{})

	content := []byte("---\n" +
		"title: Example Doc\n" +
		"description: Sample description\n" +
		"date: 2024-03-01\n" +
		"author: Rox Team\n" +
		"tags:\n" +
		"  - go\n" +
		"  - activitypub\n" +
		"---\n\n" +
		"# Hello\n\n" +
		"Some inline text.\n\n" +
		"```go\n" +
		"package main\n\n" +
		"func main() {}\n" +
		"```\n")

	doc, err := svc.Render(context.Background(), "docs/en/example.md", content)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	if doc.Metadata.Title != "Example Doc" {
		t.Fatalf("expected title 'Example Doc', got %q", doc.Metadata.Title)
	}
	if doc.Metadata.Description != "Sample description" {
		t.Fatalf("unexpected description: %q", doc.Metadata.Description)
	}
	if doc.Metadata.Author != "Rox Team" {
		t.Fatalf("unexpected author: %q", doc.Metadata.Author)
	}
	if want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC); !doc.Metadata.Date.Equal(want) {
		t.Fatalf("expected date %v, got %v", want, doc.Metadata.Date)
	}
	if len(doc.Metadata.Tags) != 2 || doc.Metadata.Tags[0] != "go" || doc.Metadata.Tags[1] != "activitypub" {
		t.Fatalf("unexpected tags: %#v", doc.Metadata.Tags)
	}

	html := doc.HTML
	if strings.Contains(html, "---") || strings.Contains(html, "title: Example Doc") {
		t.Fatalf("front matter leaked into HTML: %s", html)
	}
	if !strings.Contains(html, `class="chroma"`) {
		t.Fatalf("expected chroma highlighter output, got %s", html)
	}
	if !strings.Contains(html, `<span class="kn">package</span>`) {
		t.Fatalf("expected go syntax tokens in HTML, got %s", html)
	}
	if !strings.HasPrefix(doc.RawBody, "\n# Hello") {
		t.Fatalf("expected raw body without front matter, got %q", doc.RawBody)
	}
}

func TestRenderPrefersTagsAndDescription(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger(), renderer.Options{})

	content := []byte("---\n" +
		"title: Precedence\n" +
		"summary: Short summary\n" +
		"description: Full description\n" +
		"keywords: [search, seo]\n" +
		"tags: [go]\n" +
		"---\n\nBody\n")

	// Front-matter keys decode into a map, so repeat to cover iteration order.
	for i := range 20 {
		doc, err := svc.Render(context.Background(), "blog/en/precedence.md", content)
		if err != nil {
			t.Fatalf("Render returned error: %v", err)
		}
		if len(doc.Metadata.Tags) != 1 || doc.Metadata.Tags[0] != "go" {
			t.Fatalf("run %d: expected tags to win over keywords, got %#v", i, doc.Metadata.Tags)
		}
		if doc.Metadata.Description != "Full description" {
			t.Fatalf("run %d: expected description to win over summary, got %q", i, doc.Metadata.Description)
		}
	}

	doc, err := svc.Render(context.Background(), "blog/en/keywords.md", []byte("---\nkeywords: [search, seo]\n---\n\nBody\n"))
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if len(doc.Metadata.Tags) != 2 || doc.Metadata.Tags[1] != "seo" {
		t.Fatalf("expected keywords as tags when tags are absent, got %#v", doc.Metadata.Tags)
	}
}

func TestRenderDerivesTitleWithoutFrontMatter(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger(), renderer.Options{})

	doc, err := svc.Render(context.Background(), "blog/en/plain.md", []byte("Intro line.\n\n# Plain *Title*\n\nBody.\n"))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if doc.Metadata.Title != "Plain Title" {
		t.Fatalf("expected heading-derived title, got %q", doc.Metadata.Title)
	}
	if doc.Metadata.Raw != nil {
		t.Fatalf("expected no raw metadata, got %#v", doc.Metadata.Raw)
	}
}

func TestRenderGFMTable(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger(), renderer.Options{})

	content := []byte("| Name | Port |\n|------|------|\n| web | 8080 |\n| db | 5432 |\n\n~~old~~ https://love-rox.cc\n\n- [x] done\n")
	doc, err := svc.Render(context.Background(), "t.md", content)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	html := doc.HTML
	if !strings.Contains(html, "<table>") {
		t.Fatalf("expected table, got %s", html)
	}
	order := []string{"<th>Name</th>", "<th>Port</th>", "<td>web</td>", "<td>8080</td>", "<td>db</td>", "<td>5432</td>"}
	last := -1
	for _, cell := range order {
		idx := strings.Index(html, cell)
		if idx < 0 {
			t.Fatalf("missing cell %s in %s", cell, html)
		}
		if idx < last {
			t.Fatalf("cell %s out of order in %s", cell, html)
		}
		last = idx
	}
	if !strings.Contains(html, "<del>old</del>") {
		t.Fatalf("expected strikethrough, got %s", html)
	}
	if !strings.Contains(html, `<a href="https://love-rox.cc">`) {
		t.Fatalf("expected autolink, got %s", html)
	}
	if !strings.Contains(html, `type="checkbox"`) {
		t.Fatalf("expected task list checkbox, got %s", html)
	}
}

func TestRenderAlerts(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger(), renderer.Options{})

	content := []byte("> [!WARNING]\n> Back up your database first.\n\n> [!tip]\n>\n> Separate paragraph.\n\n> Just a quote.\n")
	doc, err := svc.Render(context.Background(), "alerts.md", content)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	html := doc.HTML
	if !strings.Contains(html, `<div class="markdown-alert markdown-alert-warning">`) {
		t.Fatalf("expected warning alert, got %s", html)
	}
	if !strings.Contains(html, `<p class="markdown-alert-title">Warning</p>`) {
		t.Fatalf("expected warning title, got %s", html)
	}
	if !strings.Contains(html, "Back up your database first.") {
		t.Fatalf("expected alert body, got %s", html)
	}
	if strings.Contains(html, "[!WARNING]") || strings.Contains(html, "[!tip]") {
		t.Fatalf("expected marker to be stripped, got %s", html)
	}
	if !strings.Contains(html, `markdown-alert-tip`) || !strings.Contains(html, "<p>Separate paragraph.</p>") {
		t.Fatalf("expected tip alert with paragraph, got %s", html)
	}
	if !strings.Contains(html, "<blockquote>") {
		t.Fatalf("expected plain blockquote to survive, got %s", html)
	}
}

func TestRenderPassesRawHTMLThrough(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger(), renderer.Options{})

	doc, err := svc.Render(context.Background(), "raw.md", []byte("<div class=\"hero\"><strong>Hi</strong></div>\n\nText with <kbd>Ctrl</kbd>.\n"))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(doc.HTML, `<div class="hero"><strong>Hi</strong></div>`) {
		t.Fatalf("expected raw block HTML, got %s", doc.HTML)
	}
	if !strings.Contains(doc.HTML, "<kbd>Ctrl</kbd>") {
		t.Fatalf("expected raw inline HTML, got %s", doc.HTML)
	}
}

func TestRenderRewritesSiblingLinks(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger(), renderer.Options{})

	content := []byte("[install](installation.md#docker) [here](./configuration.md) [ext](https://example.com/a.md) [deep](../blog/post.md)\n")
	doc, err := svc.Render(context.Background(), "links.md", content)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		`href="installation#docker"`,
		`href="configuration"`,
		`href="https://example.com/a.md"`,
		`href="../blog/post.md"`,
	} {
		if !strings.Contains(doc.HTML, want) {
			t.Fatalf("expected %s in %s", want, doc.HTML)
		}
	}
}

func TestRenderMalformedFrontMatter(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger(), renderer.Options{})

	content := []byte("---\ntitle: [unclosed\n  : :\n---\n\nBody\n")
	_, err := svc.Render(context.Background(), "broken.md", content)
	if !errors.Is(err, renderer.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger(), renderer.Options{Diagrams: d2.New(quietLogger(), nil)})

	content := []byte("---\ntitle: Diagram\n---\n\n## Flow\n\n```d2\nclient -> server: request\n```\n\n> [!NOTE]\n> Stable.\n")
	first, err := svc.Render(context.Background(), "d.md", content)
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	second, err := svc.Render(context.Background(), "d.md", content)
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if first.HTML != second.HTML {
		t.Fatalf("expected byte-identical HTML across renders")
	}
	if !strings.Contains(first.HTML, `<div class="d2-block"`) || !strings.Contains(first.HTML, "<svg") {
		t.Fatalf("expected inline d2 svg, got %s", first.HTML)
	}
	if strings.Contains(first.HTML, "language-d2") {
		t.Fatalf("expected d2 fence to be replaced, got %s", first.HTML)
	}
}

func TestRenderKeepsInvalidDiagramSource(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger(), renderer.Options{Diagrams: d2.New(quietLogger(), nil)})

	content := []byte("# Broken\n\n```d2\na -> b: {\n  label: <edge>\n```\n\nAfter.\n")
	doc, err := svc.Render(context.Background(), "broken.md", content)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if !strings.Contains(doc.HTML, `<pre class="d2-error"`) {
		t.Fatalf("expected d2 error block, got %s", doc.HTML)
	}
	if !strings.Contains(doc.HTML, "label: &lt;edge&gt;") {
		t.Fatalf("expected escaped diagram source, got %s", doc.HTML)
	}
	if strings.Contains(doc.HTML, "<svg") {
		t.Fatalf("expected no svg for an invalid diagram, got %s", doc.HTML)
	}
	if !strings.Contains(doc.HTML, "<p>After.</p>") {
		t.Fatalf("expected content after the diagram to render, got %s", doc.HTML)
	}
}

func TestRenderHonorsCanceledContext(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(quietLogger(), renderer.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Render(ctx, "x.md", []byte("# x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSplitFrontMatter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"no block", "# Title\n", "# Title\n"},
		{"block", "---\ntitle: x\n---\nbody\n", "body\n"},
		{"crlf", "---\r\ntitle: x\r\n---\r\nbody\r\n", "body\r\n"},
		{"unclosed", "---\ntitle: x\nbody\n", "---\ntitle: x\nbody\n"},
		{"delimiter later", "intro\n---\nmore\n", "intro\n---\nmore\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := string(renderer.SplitFrontMatter([]byte(tc.in))); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want time.Time
		ok   bool
	}{
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), true},
		{"2024-01-15T10:30:00Z", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), true},
		{"2024-01-15 10:30", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), true},
		{time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), true},
		{"yesterday", time.Time{}, false},
		{42, time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := renderer.ParseDate(tc.in)
		if ok != tc.ok || !got.Equal(tc.want) {
			t.Fatalf("ParseDate(%v): expected (%v, %v), got (%v, %v)", tc.in, tc.want, tc.ok, got, ok)
		}
	}
}
