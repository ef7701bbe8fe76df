package server

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/Love-Rox/rox-homepage/internal/content"
	"github.com/Love-Rox/rox-homepage/internal/exporter"
	"github.com/Love-Rox/rox-homepage/static"
)

const (
	langCookie    = "lang"
	homePostCount = 3
)

// sections are the first path segments of localized pages.
var sections = []string{"docs", "blog", "assets", "contact"}

// preferredLocale picks the locale for a request without one in its path.
// A lang cookie set by the language selector wins over Accept-Language.
func (s *Server) preferredLocale(r *http.Request) string {
	if c, err := r.Cookie(langCookie); err == nil && s.site.HasLocale(c.Value) {
		return c.Value
	}
	return s.site.Negotiate(r.Header.Get("Accept-Language"))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.redirectLocalized(w, r, "/")
}

// redirectLocalized sends a temporary redirect to p under the preferred locale, keeping the query.
func (s *Server) redirectLocalized(w http.ResponseWriter, r *http.Request, p string) {
	target := "/" + s.preferredLocale(r)
	if p != "/" {
		target += p
	}
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	w.Header().Set("Vary", "Accept-Language, Cookie")
	http.Redirect(w, r, target, http.StatusFound)
}

// isLocalelessPage reports whether segments name a page that exists under every locale.
func isLocalelessPage(segments []string) bool {
	if len(segments) == 0 || !slices.Contains(sections, segments[0]) {
		return false
	}
	switch segments[0] {
	case "docs", "blog":
		return len(segments) <= 2
	default:
		return len(segments) == 1
	}
}

func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// resolveLocale returns the locale of the request path. When the first segment is not a locale
// it redirects locale-less page paths and renders a 404 for anything else.
func (s *Server) resolveLocale(w http.ResponseWriter, r *http.Request) (string, bool) {
	lang := r.PathValue("lang")
	if s.site.HasLocale(lang) {
		return lang, true
	}
	if isLocalelessPage(splitPath(r.URL.Path)) {
		s.redirectLocalized(w, r, "/"+strings.Join(splitPath(r.URL.Path), "/"))
		return "", false
	}
	s.notFound(w, r, s.preferredLocale(r))
	return "", false
}

func (s *Server) handleLocaleHome(w http.ResponseWriter, r *http.Request) {
	lang, ok := s.resolveLocale(w, r)
	if !ok {
		return
	}
	s.renderHome(w, r, lang)
}

func (s *Server) handleLocalized(w http.ResponseWriter, r *http.Request) {
	lang, ok := s.resolveLocale(w, r)
	if !ok {
		return
	}

	segments := splitPath(r.PathValue("path"))
	switch {
	case len(segments) == 0:
		s.renderHome(w, r, lang)
	case segments[0] == "docs" && len(segments) == 1:
		s.renderDocsIndex(w, r, lang)
	case segments[0] == "docs" && len(segments) == 2:
		s.renderDoc(w, r, lang, segments[1])
	case segments[0] == "docs" && len(segments) == 3 && segments[2] == "export":
		s.handleExport(w, r, lang, segments[1])
	case segments[0] == "blog" && len(segments) == 1:
		s.renderBlogIndex(w, r, lang)
	case segments[0] == "blog" && len(segments) == 2:
		s.renderPost(w, r, lang, segments[1])
	case segments[0] == "assets" && len(segments) == 1:
		s.renderAssets(w, r, lang)
	case segments[0] == "contact" && len(segments) == 1:
		s.renderContact(w, r, lang)
	default:
		s.notFound(w, r, lang)
	}
}

// newView fills the fields shared by every page. p is the path below the locale.
func (s *Server) newView(lang, p, section, title, description string) view {
	if description == "" {
		description = s.site.HomeFor(lang).Lead
	}
	alts := make([]alternate, 0, len(s.site.Locales))
	for _, l := range s.site.Locales {
		alts = append(alts, alternate{Lang: l, URL: s.site.URL("/" + l + p)})
	}
	ogTitle := title
	if ogTitle == "" {
		ogTitle = s.site.Name
	}
	return view{
		Site:             s.site,
		Lang:             lang,
		Path:             p,
		Section:          section,
		Title:            title,
		Description:      description,
		OGImage:          s.site.URL("/api/og?title=" + url.QueryEscape(ogTitle)),
		Canonical:        s.site.URL("/" + lang + p),
		Alternates:       alts,
		TurnstileSiteKey: s.cfg.TurnstileSite,
		Dev:              s.cfg.Dev && s.watcher != nil,
	}
}

func (s *Server) renderHome(w http.ResponseWriter, r *http.Request, lang string) {
	ctx := r.Context()
	posts, err := s.content.Listing(ctx, content.Blog, lang, s.now())
	if err != nil {
		s.serverError(w, r, lang, fmt.Errorf("list blog posts: %w", err))
		return
	}
	if len(posts) > homePostCount {
		posts = posts[:homePostCount]
	}

	v := s.newView(lang, "", "home", "", "")
	v.Data = homeData{Home: s.site.HomeFor(lang), Posts: posts}
	s.renderPage(w, r, http.StatusOK, "home", v)
}

// docSummaries indexes the docs of lang by slug.
func (s *Server) docSummaries(r *http.Request, lang string) (map[string]content.Summary, error) {
	list, err := s.content.Listing(r.Context(), content.Docs, lang, s.now())
	if err != nil {
		return nil, err
	}
	out := make(map[string]content.Summary, len(list))
	for _, item := range list {
		out[item.Slug] = item
	}
	return out, nil
}

func (s *Server) docCategories(lang string, summaries map[string]content.Summary) []docCategory {
	idx := s.site.DocsFor(lang)
	cats := make([]docCategory, 0, len(idx.Categories))
	for _, c := range idx.Categories {
		cat := docCategory{Title: c.Title}
		for _, slug := range c.Slugs {
			link := docLink{Slug: slug, Title: slug}
			if sum, ok := summaries[slug]; ok {
				link.Title = sum.Title
				link.Description = sum.Description
				link.Available = true
			}
			cat.Pages = append(cat.Pages, link)
		}
		cats = append(cats, cat)
	}
	return cats
}

func (s *Server) renderDocsIndex(w http.ResponseWriter, r *http.Request, lang string) {
	summaries, err := s.docSummaries(r, lang)
	if err != nil {
		s.serverError(w, r, lang, fmt.Errorf("list docs: %w", err))
		return
	}
	idx := s.site.DocsFor(lang)
	v := s.newView(lang, "/docs", "docs", idx.Title, idx.Description)
	v.Data = docsIndexData{Index: idx, Categories: s.docCategories(lang, summaries)}
	s.renderPage(w, r, http.StatusOK, "docs_index", v)
}

func (s *Server) renderDoc(w http.ResponseWriter, r *http.Request, lang, slug string) {
	ctx := r.Context()
	doc, err := s.content.Resolve(ctx, content.Locator{Type: content.Docs, Slug: slug, Locale: lang})
	if err != nil {
		s.contentError(w, r, lang, err)
		return
	}
	summaries, err := s.docSummaries(r, lang)
	if err != nil {
		s.serverError(w, r, lang, fmt.Errorf("list docs: %w", err))
		return
	}

	sidebar := s.docCategories(lang, summaries)
	data := docData{
		Slug:      slug,
		HTML:      template.HTML(doc.HTML), //nolint:gosec // HTML from the trusted content renderer
		Metadata:  doc.Metadata,
		DocsTitle: s.site.DocsFor(lang).Title,
		Sidebar:   sidebar,
		Formats:   exportLinks(lang, slug),
	}
	data.Prev, data.Next = neighbors(sidebar, slug)

	v := s.newView(lang, "/docs/"+slug, "docs", doc.Metadata.Title, doc.Metadata.Description)
	v.Data = data
	s.renderPage(w, r, http.StatusOK, "doc", v)
}

// neighbors returns the available pages before and after slug in sidebar order.
func neighbors(cats []docCategory, slug string) (*docLink, *docLink) {
	var flat []docLink
	for _, c := range cats {
		for _, p := range c.Pages {
			if p.Available {
				flat = append(flat, p)
			}
		}
	}
	i := slices.IndexFunc(flat, func(l docLink) bool { return l.Slug == slug })
	if i < 0 {
		return nil, nil
	}
	var prev, next *docLink
	if i > 0 {
		prev = &flat[i-1]
	}
	if i < len(flat)-1 {
		next = &flat[i+1]
	}
	return prev, next
}

func (s *Server) renderBlogIndex(w http.ResponseWriter, r *http.Request, lang string) {
	posts, err := s.content.Listing(r.Context(), content.Blog, lang, s.now())
	if err != nil {
		s.serverError(w, r, lang, fmt.Errorf("list blog posts: %w", err))
		return
	}
	v := s.newView(lang, "/blog", "blog", s.site.T(lang, "blog.title"), s.site.T(lang, "blog.description"))
	v.Data = blogIndexData{Posts: posts}
	s.renderPage(w, r, http.StatusOK, "blog_index", v)
}

func (s *Server) renderPost(w http.ResponseWriter, r *http.Request, lang, slug string) {
	doc, err := s.content.Resolve(r.Context(), content.Locator{Type: content.Blog, Slug: slug, Locale: lang})
	if err != nil {
		s.contentError(w, r, lang, err)
		return
	}
	if doc.Metadata.Date.After(s.now()) {
		s.notFound(w, r, lang)
		return
	}
	description := doc.Metadata.Excerpt
	if description == "" {
		description = doc.Metadata.Description
	}
	v := s.newView(lang, "/blog/"+slug, "blog", doc.Metadata.Title, description)
	v.Data = postData{
		Slug:     slug,
		HTML:     template.HTML(doc.HTML), //nolint:gosec // HTML from the trusted content renderer
		Metadata: doc.Metadata,
	}
	s.renderPage(w, r, http.StatusOK, "post", v)
}

func (s *Server) renderAssets(w http.ResponseWriter, r *http.Request, lang string) {
	items := make([]assetView, 0, len(s.site.Assets))
	for _, a := range s.site.Assets {
		item := assetView{Name: a.Name, Description: a.Description[lang]}
		if item.Description == "" {
			item.Description = a.Description[s.site.DefaultLocale]
		}
		for _, f := range a.Files {
			file := assetFile{Label: f.Label, URL: f.Path, Available: true}
			if rel, ok := strings.CutPrefix(f.Path, "/static/"); ok && s.cfg.AssetsDir == "" {
				file.Available = static.Has(rel)
			}
			if item.Preview == "" && file.Available && strings.HasSuffix(f.Path, ".svg") {
				item.Preview = f.Path
			}
			item.Files = append(item.Files, file)
		}
		items = append(items, item)
	}
	v := s.newView(lang, "/assets", "assets", s.site.T(lang, "assets.title"), s.site.T(lang, "assets.description"))
	v.Data = assetsData{Assets: items}
	s.renderPage(w, r, http.StatusOK, "assets", v)
}

func (s *Server) renderContact(w http.ResponseWriter, r *http.Request, lang string) {
	v := s.newView(lang, "/contact", "contact", s.site.T(lang, "contact.title"), s.site.T(lang, "contact.description"))
	s.renderPage(w, r, http.StatusOK, "contact", v)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, lang, slug string) {
	ctx := r.Context()
	format, err := exporter.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse("invalid format. Supported formats: html, pdf, markdown, txt"))
		return
	}

	loc := content.Locator{Type: content.Docs, Slug: slug, Locale: lang}
	var buf bytes.Buffer
	err = s.exporter.ExportPage(ctx, exporter.ExportPageOptions{
		Writer:    &buf,
		Format:    format,
		Locator:   loc,
		SourceURL: s.site.URL("/" + lang + "/docs/" + slug),
	})
	if err != nil {
		s.contentError(w, r, lang, err)
		return
	}

	w.Header().Set("Content-Type", exporter.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exporter.Filename(loc, format)))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.WarnContext(ctx, "write export failed", slog.Any("err", err), slog.String("slug", slug))
	}
}

// contentError maps loader errors onto the localized 404 and error pages.
func (s *Server) contentError(w http.ResponseWriter, r *http.Request, lang string, err error) {
	switch {
	case errors.Is(err, content.ErrNotFound):
		s.notFound(w, r, lang)
	case errors.Is(err, content.ErrMalformedContent):
		s.serverError(w, r, lang, err)
	case errors.Is(err, r.Context().Err()):
		s.logger.DebugContext(r.Context(), "request canceled", slog.Any("err", err))
	default:
		s.serverError(w, r, lang, err)
	}
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request, lang string) {
	v := s.newView(lang, "", "", s.site.T(lang, "notFound.title"), s.site.T(lang, "notFound.description"))
	v.Data = errorData{Status: http.StatusNotFound}
	s.renderPage(w, r, http.StatusNotFound, "not_found", v)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, lang string, err error) {
	s.logger.ErrorContext(r.Context(), "page failed", slog.Any("err", err), slog.String("path", r.URL.Path))
	v := s.newView(lang, "", "", s.site.T(lang, "error.title"), s.site.T(lang, "error.description"))
	v.Data = errorData{Status: http.StatusInternalServerError}
	s.renderErrorPage(w, r, v)
}

// renderPage renders into a buffer first so a template failure can still become an error page.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, v view) {
	var buf bytes.Buffer
	if err := s.templates.render(&buf, name, v); err != nil {
		s.logger.ErrorContext(r.Context(), "render template failed", slog.Any("err", err), slog.String("template", name))
		ev := s.newView(v.Lang, "", "", s.site.T(v.Lang, "error.title"), s.site.T(v.Lang, "error.description"))
		ev.Data = errorData{Status: http.StatusInternalServerError}
		s.renderErrorPage(w, r, ev)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.DebugContext(r.Context(), "write page failed", slog.Any("err", err))
	}
}

func (s *Server) renderErrorPage(w http.ResponseWriter, r *http.Request, v view) {
	var buf bytes.Buffer
	if err := s.templates.render(&buf, "error", v); err != nil {
		s.logger.ErrorContext(r.Context(), "render error page failed", slog.Any("err", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = buf.WriteTo(w)
}
