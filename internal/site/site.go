// Package site loads the site definition: brand, locales, navigation and localized UI strings.
package site

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed site.yaml
var defaultDefinition []byte

// MaxDefinitionSize bounds the size of a site definition file.
const MaxDefinitionSize = 1 << 20

var (
	// ErrInvalidDefinition is returned when the site definition fails validation.
	ErrInvalidDefinition = errors.New("invalid site definition")
	// ErrDefinitionTooLarge is returned for definition files above MaxDefinitionSize.
	ErrDefinitionTooLarge = errors.New("site definition exceeds maximum size")
)

// Site is the decoded site definition.
type Site struct {
	Name          string                       `yaml:"name"`
	BaseURL       string                       `yaml:"baseURL"`
	Tagline       string                       `yaml:"tagline"`
	DefaultLocale string                       `yaml:"defaultLocale"`
	Locales       []string                     `yaml:"locales"`
	GitHub        string                       `yaml:"github"`
	Home          map[string]Home              `yaml:"home"`
	Docs          map[string]DocsIndex         `yaml:"docs"`
	Assets        []Asset                      `yaml:"assets"`
	Strings       map[string]map[string]string `yaml:"strings"`

	negotiator *negotiator
}

// Home holds the localized landing page copy.
type Home struct {
	Headline string    `yaml:"headline"`
	Lead     string    `yaml:"lead"`
	Features []Feature `yaml:"features"`
}

// Feature is one landing page highlight.
type Feature struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

// DocsIndex describes the documentation landing page and sidebar for one locale.
type DocsIndex struct {
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Categories  []Category `yaml:"categories"`
}

// Category groups documentation pages in display order.
type Category struct {
	Title string   `yaml:"title"`
	Slugs []string `yaml:"slugs"`
}

// Asset is a downloadable brand asset.
type Asset struct {
	Name        string            `yaml:"name"`
	Description map[string]string `yaml:"description"`
	Files       []AssetFile       `yaml:"files"`
}

// AssetFile is one downloadable rendition of an asset.
type AssetFile struct {
	Label string `yaml:"label"`
	Path  string `yaml:"path"`
}

// Default returns the built-in site definition.
func Default() (*Site, error) {
	return Parse(defaultDefinition)
}

// Load reads a site definition from path, or the built-in definition when path is empty.
func Load(path string) (*Site, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("read site definition: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a site definition.
func Parse(data []byte) (*Site, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidDefinition)
	}
	if len(data) > MaxDefinitionSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrDefinitionTooLarge, len(data), MaxDefinitionSize)
	}

	var s Site
	if err := yaml.UnmarshalWithOptions(data, &s, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	s.negotiator = newNegotiator(s.DefaultLocale, s.Locales)
	return &s, nil
}

func (s *Site) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: baseURL must be an absolute URL, got %q", ErrInvalidDefinition, s.BaseURL)
	}
	if len(s.Locales) == 0 {
		return fmt.Errorf("%w: at least one locale is required", ErrInvalidDefinition)
	}
	for _, l := range s.Locales {
		if l == "" || strings.ContainsAny(l, `/\. `) {
			return fmt.Errorf("%w: invalid locale %q", ErrInvalidDefinition, l)
		}
	}
	if s.DefaultLocale == "" {
		s.DefaultLocale = s.Locales[0]
	}
	if !slices.Contains(s.Locales, s.DefaultLocale) {
		return fmt.Errorf("%w: default locale %q is not listed in locales", ErrInvalidDefinition, s.DefaultLocale)
	}
	if _, ok := s.Strings[s.DefaultLocale]; !ok {
		return fmt.Errorf("%w: strings for default locale %q are missing", ErrInvalidDefinition, s.DefaultLocale)
	}
	return nil
}

// HasLocale reports whether locale is served by the site.
func (s *Site) HasLocale(locale string) bool {
	return slices.Contains(s.Locales, locale)
}

// T returns the localized string for key, falling back to the default locale and finally the key itself.
func (s *Site) T(locale, key string) string {
	if v, ok := s.Strings[locale][key]; ok {
		return v
	}
	if v, ok := s.Strings[s.DefaultLocale][key]; ok {
		return v
	}
	return key
}

// DocsFor returns the documentation index for locale, falling back to the default locale.
func (s *Site) DocsFor(locale string) DocsIndex {
	if idx, ok := s.Docs[locale]; ok {
		return idx
	}
	return s.Docs[s.DefaultLocale]
}

// HomeFor returns the landing page copy for locale, falling back to the default locale.
func (s *Site) HomeFor(locale string) Home {
	if h, ok := s.Home[locale]; ok {
		return h
	}
	return s.Home[s.DefaultLocale]
}

// URL joins path onto the base URL.
func (s *Site) URL(path string) string {
	if path == "" || path == "/" {
		return s.BaseURL + "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.BaseURL + path
}

// Negotiate picks the best locale for an Accept-Language header value.
func (s *Site) Negotiate(acceptLanguage string) string {
	if s.negotiator == nil {
		return s.DefaultLocale
	}
	return s.negotiator.match(acceptLanguage)
}
