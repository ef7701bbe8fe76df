package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/Love-Rox/rox-homepage/internal/content"
	"github.com/Love-Rox/rox-homepage/internal/exporter"
	"github.com/Love-Rox/rox-homepage/internal/renderer"
	"github.com/Love-Rox/rox-homepage/internal/site"
)

//go:embed templates/*.gohtml templates/pages/*.gohtml
var templateFS embed.FS

// templateRenderer holds one template set per page, each sharing the layout.
type templateRenderer struct {
	pages map[string]*template.Template
}

func newTemplateRenderer() (*templateRenderer, error) {
	funcs := template.FuncMap{
		"formatDate": formatDate,
		"urlquery":   template.URLQueryEscaper,
		"isActive":   strings.EqualFold,
	}

	base, err := template.New("layout").Funcs(funcs).ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, err
	}

	files, err := fs.Glob(templateFS, "templates/pages/*.gohtml")
	if err != nil {
		return nil, err
	}
	pages := make(map[string]*template.Template, len(files))
	for _, file := range files {
		clone, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := clone.ParseFS(templateFS, file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		pages[strings.TrimSuffix(path.Base(file), ".gohtml")] = clone
	}
	return &templateRenderer{pages: pages}, nil
}

func (r *templateRenderer) render(w io.Writer, name string, data any) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page template %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

// formatDate renders a date the way each locale writes it.
func formatDate(lang string, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	if lang == "ja" {
		return t.Format("2006年1月2日")
	}
	return t.Format("January 2, 2006")
}

type alternate struct {
	Lang string
	URL  string
}

// view is the data every page template receives.
type view struct { //nolint:govet // struct fields grouped for template readability
	Site             *site.Site
	Lang             string
	Path             string
	Section          string
	Title            string
	Description      string
	OGImage          string
	Canonical        string
	Alternates       []alternate
	TurnstileSiteKey string
	Dev              bool
	Data             any
}

// T returns the localized UI string for key.
func (v view) T(key string) string {
	return v.Site.T(v.Lang, key)
}

// Link prefixes p with the current locale.
func (v view) Link(p string) string {
	if p == "" || p == "/" {
		return "/" + v.Lang
	}
	return "/" + v.Lang + p
}

// SwitchTo returns the current page in another locale.
func (v view) SwitchTo(lang string) string {
	return "/" + lang + v.Path
}

// FullTitle is the document title shown in the browser tab.
func (v view) FullTitle() string {
	if v.Title == "" || v.Title == v.Site.Name {
		return v.Site.Name + " - " + v.Site.Tagline
	}
	return v.Title + " | " + v.Site.Name
}

type homeData struct {
	Home  site.Home
	Posts []content.Summary
}

type docLink struct {
	Slug        string
	Title       string
	Description string
	Available   bool
}

type docCategory struct {
	Title string
	Pages []docLink
}

type docsIndexData struct {
	Index      site.DocsIndex
	Categories []docCategory
}

type docData struct { //nolint:govet // struct fields grouped for template readability
	Slug      string
	HTML      template.HTML
	Metadata  renderer.Metadata
	DocsTitle string
	Sidebar   []docCategory
	Prev      *docLink
	Next      *docLink
	Formats   []exportLink
}

type exportLink struct {
	Label string
	URL   string
}

type blogIndexData struct {
	Posts []content.Summary
}

type postData struct {
	Slug     string
	HTML     template.HTML
	Metadata renderer.Metadata
}

type assetFile struct {
	Label     string
	URL       string
	Available bool
}

type assetView struct {
	Name        string
	Description string
	Preview     string
	Files       []assetFile
}

type assetsData struct {
	Assets []assetView
}

type errorData struct {
	Status int
}

func exportLinks(lang, slug string) []exportLink {
	formats := exporter.ValidFormats()
	links := make([]exportLink, 0, len(formats))
	for _, f := range formats {
		links = append(links, exportLink{
			Label: strings.ToUpper(strings.TrimPrefix(exporter.FileExtension(f), ".")),
			URL:   "/" + lang + "/docs/" + url.PathEscape(slug) + "/export?format=" + string(f),
		})
	}
	return links
}
