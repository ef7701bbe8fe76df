// Package content resolves localized markdown documents and builds listings from the content tree.
package content

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Love-Rox/rox-homepage/internal/renderer"
)

// Type names a content collection directory.
type Type string

const (
	// Docs holds documentation pages.
	Docs Type = "docs"
	// Blog holds dated blog posts.
	Blog Type = "blog"
)

// DefaultAuthor is reported for blog posts without an author field.
const DefaultAuthor = "Rox Team"

const maxSlugLength = 200

var (
	// ErrNotFound reports that no document exists for a locator, including invalid slugs,
	// unknown types or locales, and unreadable files.
	ErrNotFound = errors.New("content not found")
	// ErrMalformedContent reports a document whose front matter or body could not be transformed.
	ErrMalformedContent = errors.New("malformed content")
)

// ParseType maps a route segment to a content type.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case Docs, Blog:
		return Type(s), true
	default:
		return "", false
	}
}

// Locator identifies one document on disk.
type Locator struct {
	Type   Type
	Slug   string
	Locale string
}

// Document is a resolved content file.
type Document struct {
	Locator  Locator
	Metadata renderer.Metadata
	RawBody  string
	HTML     string
}

// Summary is the listing view of a document.
type Summary struct {
	Date        time.Time `json:"date,omitzero"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Excerpt     string    `json:"excerpt,omitempty"`
	Author      string    `json:"author,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// Service reads documents from <root>/<type>/<locale>/<slug>.md and renders them on every call.
type Service struct {
	logger   *slog.Logger
	renderer *renderer.Service
	locales  map[string]struct{}
	root     string
}

// NewService creates a loader rooted at root serving the given locales.
func NewService(root string, rendererSvc *renderer.Service, locales []string, logger *slog.Logger) (*Service, error) {
	if root == "" {
		return nil, errors.New("root directory must be provided")
	}
	if rendererSvc == nil {
		return nil, errors.New("renderer service must be provided")
	}
	if len(locales) == 0 {
		return nil, errors.New("at least one locale must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	set := make(map[string]struct{}, len(locales))
	for _, l := range locales {
		set[l] = struct{}{}
	}

	return &Service{
		root:     absRoot,
		renderer: rendererSvc,
		locales:  set,
		logger:   logger.With("component", "content_service"),
	}, nil
}

// Root returns the absolute content directory.
func (s *Service) Root() string {
	return s.root
}

// Resolve loads and renders the document named by loc.
func (s *Service) Resolve(ctx context.Context, loc Locator) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	abs, err := s.documentPath(loc)
	if err != nil {
		return Document{}, err
	}

	data, err := os.ReadFile(abs) //nolint:gosec // abs is built from a validated slug below root
	if err != nil {
		s.logger.Debug("document unreadable", slog.String("path", abs), slog.Any("err", err))
		return Document{}, fmt.Errorf("%w: %s/%s/%s", ErrNotFound, loc.Type, loc.Locale, loc.Slug)
	}

	name := string(loc.Type) + "/" + loc.Locale + "/" + loc.Slug + ".md"
	doc, err := s.renderer.Render(ctx, name, data)
	if err != nil {
		if errors.Is(err, renderer.ErrMalformed) {
			return Document{}, fmt.Errorf("%w: %w", ErrMalformedContent, err)
		}
		return Document{}, err
	}

	meta := doc.Metadata
	if meta.Title == "" {
		meta.Title = s.titleFromSlug(loc.Slug)
	}

	return Document{
		Locator:  loc,
		Metadata: meta,
		RawBody:  doc.RawBody,
		HTML:     doc.HTML,
	}, nil
}

// ListSlugs returns the sorted slugs of every markdown file in a locale directory.
// A missing directory yields an empty result.
func (s *Service) ListSlugs(ctx context.Context, typ Type, locale string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.localeDir(typ, locale)
	if err != nil {
		return []string{}, nil //nolint:nilerr // unknown type or locale means no content
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	slugs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		slug, ok := strings.CutSuffix(entry.Name(), ".md")
		if !ok || !validSlug(slug) {
			continue
		}
		slugs = append(slugs, slug)
	}
	slices.Sort(slugs)
	return slugs, nil
}

// Listing loads summaries for every document of a type, hides items dated after now,
// and orders the rest newest first. Undated items sort last; ties break by slug.
func (s *Service) Listing(ctx context.Context, typ Type, locale string, now time.Time) ([]Summary, error) {
	slugs, err := s.ListSlugs(ctx, typ, locale)
	if err != nil {
		return nil, err
	}

	results := make([]*Summary, len(slugs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, slug := range slugs {
		g.Go(func() error {
			doc, err := s.Resolve(gctx, Locator{Type: typ, Slug: slug, Locale: locale})
			switch {
			case err == nil:
			case errors.Is(err, ErrMalformedContent), errors.Is(err, ErrNotFound):
				s.logger.Warn("skipping document in listing", slog.String("slug", slug), slog.Any("err", err))
				return nil
			default:
				return err
			}
			sum := summarize(doc)
			results[i] = &sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(results))
	for _, sum := range results {
		if sum == nil || sum.Date.After(now) {
			continue
		}
		out = append(out, *sum)
	}
	slices.SortStableFunc(out, func(a, b Summary) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.Slug, b.Slug)
	})
	return out, nil
}

func summarize(doc Document) Summary {
	meta := doc.Metadata
	excerpt := meta.Excerpt
	if excerpt == "" {
		excerpt = meta.Description
	}
	author := meta.Author
	if author == "" {
		author = DefaultAuthor
	}
	return Summary{
		Slug:        doc.Locator.Slug,
		Title:       meta.Title,
		Description: meta.Description,
		Excerpt:     excerpt,
		Author:      author,
		Date:        meta.Date,
		Tags:        meta.Tags,
	}
}

func (s *Service) documentPath(loc Locator) (string, error) {
	if !validSlug(loc.Slug) {
		return "", fmt.Errorf("%w: invalid slug %q", ErrNotFound, loc.Slug)
	}
	dir, err := s.localeDir(loc.Type, loc.Locale)
	if err != nil {
		return "", err
	}
	abs := filepath.Join(dir, loc.Slug+".md")
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: resolved path escapes root: %s", ErrNotFound, loc.Slug)
	}
	return abs, nil
}

func (s *Service) localeDir(typ Type, locale string) (string, error) {
	if _, ok := ParseType(string(typ)); !ok {
		return "", fmt.Errorf("%w: unknown content type %q", ErrNotFound, typ)
	}
	if _, ok := s.locales[locale]; !ok {
		return "", fmt.Errorf("%w: unknown locale %q", ErrNotFound, locale)
	}
	return filepath.Join(s.root, string(typ), locale), nil
}

func (s *Service) titleFromSlug(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	if len(words) == 0 {
		return slug
	}
	// Casers keep state, so each call gets its own.
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// validSlug rejects anything that could leave the locale directory or name a hidden file.
func validSlug(slug string) bool {
	if slug == "" || len(slug) > maxSlugLength || strings.HasPrefix(slug, ".") {
		return false
	}
	return !strings.ContainsAny(slug, "/\\\x00") && !strings.Contains(slug, "..")
}
