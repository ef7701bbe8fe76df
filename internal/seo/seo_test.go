package seo_test

import (
	"context"
	"encoding/xml"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/Love-Rox/rox-homepage/internal/content"
	"github.com/Love-Rox/rox-homepage/internal/renderer"
	"github.com/Love-Rox/rox-homepage/internal/seo"
	"github.com/Love-Rox/rox-homepage/internal/site"
)

func defaultSite(t *testing.T) *site.Site {
	t.Helper()
	s, err := site.Default()
	if err != nil {
		t.Fatalf("site.Default: %v", err)
	}
	return s
}

func TestBuildSitemapEntries(t *testing.T) {
	t.Parallel()
	s := defaultSite(t)

	m := seo.BuildSitemap(s, []string{"hello"}, []string{"intro", "intro"})

	// root + 2 homes + 4 sections x 2 + 1 post x 2 + 1 doc x 2
	if len(m.URLs) != 1+2+8+2+2 {
		t.Fatalf("expected 15 urls, got %d", len(m.URLs))
	}

	byLoc := map[string]seo.URL{}
	for _, u := range m.URLs {
		byLoc[u.Loc] = u
	}

	root, ok := byLoc["https://love-rox.cc/"]
	if !ok || root.Priority != "1.0" || root.ChangeFreq != "weekly" {
		t.Fatalf("unexpected root entry %+v", root)
	}
	if got := hrefs(root); !slices.Equal(got, []string{
		"en=https://love-rox.cc/en", "ja=https://love-rox.cc/ja", "x-default=https://love-rox.cc/",
	}) {
		t.Fatalf("unexpected root alternates %v", got)
	}

	home := byLoc["https://love-rox.cc/ja"]
	if len(home.Alternates) != 3 || home.Alternates[2].HrefLang != "x-default" {
		t.Fatalf("expected x-default on localized home, got %v", hrefs(home))
	}

	docs := byLoc["https://love-rox.cc/en/docs"]
	if docs.Priority != "0.9" {
		t.Fatalf("expected docs priority 0.9, got %q", docs.Priority)
	}
	if contact := byLoc["https://love-rox.cc/ja/contact"]; contact.Priority != "0.8" {
		t.Fatalf("expected contact priority 0.8, got %q", contact.Priority)
	}

	post, ok := byLoc["https://love-rox.cc/ja/blog/hello"]
	if !ok || post.Priority != "0.7" || post.ChangeFreq != "monthly" {
		t.Fatalf("unexpected blog entry %+v", post)
	}
	if got := hrefs(post); !slices.Equal(got, []string{
		"en=https://love-rox.cc/en/blog/hello", "ja=https://love-rox.cc/ja/blog/hello",
	}) {
		t.Fatalf("unexpected blog alternates %v", got)
	}

	doc, ok := byLoc["https://love-rox.cc/en/docs/intro"]
	if !ok || doc.Priority != "0.8" || doc.ChangeFreq != "weekly" {
		t.Fatalf("unexpected doc entry %+v", doc)
	}
}

func hrefs(u seo.URL) []string {
	out := make([]string, 0, len(u.Alternates))
	for _, a := range u.Alternates {
		out = append(out, a.HrefLang+"="+a.Href)
	}
	return out
}

func TestSitemapXML(t *testing.T) {
	t.Parallel()
	s := defaultSite(t)

	var buf strings.Builder
	if _, err := seo.BuildSitemap(s, nil, nil).WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9" xmlns:xhtml="http://www.w3.org/1999/xhtml">`,
		`<xhtml:link rel="alternate" hreflang="x-default" href="https://love-rox.cc/">`,
		`<loc>https://love-rox.cc/en/assets</loc>`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in sitemap:\n%s", want, out)
		}
	}

	var decoded struct {
		URLs []struct {
			Loc string `xml:"loc"`
		} `xml:"url"`
	}
	if err := xml.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("sitemap is not well-formed: %v", err)
	}
	if len(decoded.URLs) != 11 {
		t.Fatalf("expected 11 urls without content, got %d", len(decoded.URLs))
	}
}

func TestRobots(t *testing.T) {
	t.Parallel()

	want := "User-agent: *\nDisallow: /RSC/\n\nSitemap: https://love-rox.cc/sitemap.xml\n"
	if got := seo.Robots("https://love-rox.cc/"); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestGenerateWritesFiles(t *testing.T) {
	t.Parallel()
	s := defaultSite(t)
	root := t.TempDir()
	for _, p := range []string{
		"blog/en/hello.md", "blog/ja/hello.md", "blog/ja/only-ja.md",
		"docs/en/intro.md", "docs/ja/intro.md",
	} {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte("# Page\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := content.NewService(root, renderer.NewService(logger, renderer.Options{}), s.Locales, logger)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	blog, err := seo.CollectSlugs(context.Background(), svc, s, content.Blog)
	if err != nil {
		t.Fatalf("CollectSlugs: %v", err)
	}
	if !slices.Equal(blog, []string{"hello", "only-ja"}) {
		t.Fatalf("expected union of blog slugs, got %v", blog)
	}

	out := filepath.Join(t.TempDir(), "public")
	if err := seo.Generate(context.Background(), svc, s, out); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	sitemap, err := os.ReadFile(filepath.Join(out, "sitemap.xml"))
	if err != nil {
		t.Fatalf("read sitemap: %v", err)
	}
	for _, want := range []string{"/en/blog/only-ja</loc>", "/ja/docs/intro</loc>"} {
		if !strings.Contains(string(sitemap), want) {
			t.Fatalf("expected %q in sitemap", want)
		}
	}
	robots, err := os.ReadFile(filepath.Join(out, "robots.txt"))
	if err != nil {
		t.Fatalf("read robots: %v", err)
	}
	if !strings.HasSuffix(string(robots), "Sitemap: https://love-rox.cc/sitemap.xml\n") {
		t.Fatalf("unexpected robots.txt %q", robots)
	}
}
