// Package seo builds sitemap.xml and robots.txt for the localized site.
package seo

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Love-Rox/rox-homepage/internal/content"
	"github.com/Love-Rox/rox-homepage/internal/site"
)

const (
	sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"
	xhtmlNS   = "http://www.w3.org/1999/xhtml"
)

// Sitemap is a urlset with hreflang alternates.
type Sitemap struct {
	XMLName xml.Name `xml:"urlset"`
	NS      string   `xml:"xmlns,attr"`
	XHTML   string   `xml:"xmlns:xhtml,attr"`
	URLs    []URL    `xml:"url"`
}

// URL is one sitemap entry.
type URL struct {
	Loc        string      `xml:"loc"`
	ChangeFreq string      `xml:"changefreq"`
	Priority   string      `xml:"priority"`
	Alternates []Alternate `xml:"xhtml:link"`
}

// Alternate links a localized rendition of the same page.
type Alternate struct {
	Rel      string `xml:"rel,attr"`
	HrefLang string `xml:"hreflang,attr"`
	Href     string `xml:"href,attr"`
}

var sectionPages = []string{"docs", "blog", "assets", "contact"}

// BuildSitemap lists the home pages, the section pages and every blog post and doc page
// in every locale. Slug lists are deduplicated and sorted.
func BuildSitemap(s *site.Site, blogSlugs, docSlugs []string) Sitemap {
	b := builder{site: s}

	b.add("/", "1.0", "weekly")
	for _, lang := range s.Locales {
		b.add("/"+lang, "1.0", "weekly")
	}
	for _, page := range sectionPages {
		priority := "0.8"
		if page == "docs" {
			priority = "0.9"
		}
		for _, lang := range s.Locales {
			b.add("/"+lang+"/"+page, priority, "weekly")
		}
	}
	for _, slug := range normalize(blogSlugs) {
		for _, lang := range s.Locales {
			b.add("/"+lang+"/blog/"+slug, "0.7", "monthly")
		}
	}
	for _, slug := range normalize(docSlugs) {
		for _, lang := range s.Locales {
			b.add("/"+lang+"/docs/"+slug, "0.8", "weekly")
		}
	}

	return Sitemap{NS: sitemapNS, XHTML: xhtmlNS, URLs: b.urls}
}

type builder struct {
	site *site.Site
	urls []URL
}

func (b *builder) add(path, priority, changefreq string) {
	u := URL{Loc: b.site.URL(path), ChangeFreq: changefreq, Priority: priority}
	lang, rest := b.splitLocale(path)
	for _, alt := range b.site.Locales {
		altPath := "/" + alt + rest
		if path == "/" {
			altPath = "/" + alt
		}
		u.Alternates = append(u.Alternates, Alternate{Rel: "alternate", HrefLang: alt, Href: b.site.URL(altPath)})
	}
	if path == "/" || (lang != "" && rest == "") {
		u.Alternates = append(u.Alternates, Alternate{Rel: "alternate", HrefLang: "x-default", Href: b.site.URL("/")})
	}
	b.urls = append(b.urls, u)
}

// splitLocale separates a leading locale segment from the rest of path.
func (b *builder) splitLocale(path string) (string, string) {
	trimmed := strings.TrimPrefix(path, "/")
	first, rest, _ := strings.Cut(trimmed, "/")
	if !b.site.HasLocale(first) {
		return "", path
	}
	if rest == "" {
		return first, ""
	}
	return first, "/" + rest
}

func normalize(slugs []string) []string {
	out := make([]string, 0, len(slugs))
	for _, s := range slugs {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// WriteTo encodes the sitemap with an XML declaration.
func (m Sitemap) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if _, err := io.WriteString(cw, xml.Header); err != nil {
		return cw.n, err
	}
	enc := xml.NewEncoder(cw)
	enc.Indent("", "  ")
	if err := enc.Encode(m); err != nil {
		return cw.n, fmt.Errorf("encode sitemap: %w", err)
	}
	if _, err := io.WriteString(cw, "\n"); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Robots returns robots.txt pointing crawlers at the sitemap.
func Robots(baseURL string) string {
	return "User-agent: *\nDisallow: /RSC/\n\nSitemap: " + strings.TrimRight(baseURL, "/") + "/sitemap.xml\n"
}

// CollectSlugs returns the union of slugs of typ across every locale of s.
func CollectSlugs(ctx context.Context, svc *content.Service, s *site.Site, typ content.Type) ([]string, error) {
	var all []string
	for _, lang := range s.Locales {
		slugs, err := svc.ListSlugs(ctx, typ, lang)
		if err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", typ, lang, err)
		}
		all = append(all, slugs...)
	}
	return normalize(all), nil
}

// Generate writes sitemap.xml and robots.txt into outDir.
func Generate(ctx context.Context, svc *content.Service, s *site.Site, outDir string) error {
	blog, err := CollectSlugs(ctx, svc, s, content.Blog)
	if err != nil {
		return err
	}
	docs, err := CollectSlugs(ctx, svc, s, content.Docs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	var buf strings.Builder
	if _, err := BuildSitemap(s, blog, docs).WriteTo(&buf); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(outDir, "sitemap.xml"), buf.String()); err != nil {
		return err
	}
	return writeFile(filepath.Join(outDir, "robots.txt"), Robots(s.BaseURL))
}

func writeFile(path, data string) error {
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil { //nolint:gosec // public output
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
