// Package ogimage renders 1200x630 social preview images for page titles.
package ogimage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/srwiley/oksvg"
	"golang.org/x/image/font/sfnt"

	"github.com/Love-Rox/rox-homepage/internal/raster"
)

// DefaultTitle replaces absent or unusable titles.
const DefaultTitle = "Rox"

const maxTitleRunes = 200

// ErrAssetLoad reports a font or logo that could not be loaded or decoded.
var ErrAssetLoad = errors.New("failed to load assets")

// Generator composes preview images from cached assets.
type Generator struct {
	cache  *AssetCache
	assets Assets
	logger *slog.Logger
}

// NewGenerator returns a generator that loads assets through cache.
// A nil cache gets a private one.
func NewGenerator(cache *AssetCache, assets Assets, logger *slog.Logger) *Generator {
	if cache == nil {
		cache = NewAssetCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		cache:  cache,
		assets: assets,
		logger: logger.With("component", "ogimage"),
	}
}

// NormalizeTitle trims raw and falls back to DefaultTitle when nothing printable remains.
func NormalizeTitle(raw string) string {
	if !utf8.ValidString(raw) {
		return DefaultTitle
	}
	title := strings.Join(strings.FieldsFunc(raw, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}), " ")
	if title == "" {
		return DefaultTitle
	}
	if runes := []rune(title); len(runes) > maxTitleRunes {
		title = string(runes[:maxTitleRunes])
	}
	return title
}

// Render returns the PNG preview for title.
func (g *Generator) Render(ctx context.Context, title string) ([]byte, error) {
	p, err := g.prepare(ctx, title)
	if err != nil {
		return nil, err
	}

	base, err := renderSVG(p.layout, p.title, p.tagline, svgOptions{})
	if err != nil {
		return nil, fmt.Errorf("compose svg: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	png, err := raster.Compose(Width, Height,
		raster.Layer{SVG: []byte(base), W: Width, H: Height},
		raster.Layer{SVG: p.logo, X: p.layout.Logo.X, Y: p.layout.Logo.Y, W: p.layout.Logo.W, H: p.layout.Logo.H},
	)
	if err != nil {
		return nil, fmt.Errorf("rasterize: %w", err)
	}
	return png, nil
}

// RenderSVG returns the vector preview for title with the logo embedded as a data URI.
func (g *Generator) RenderSVG(ctx context.Context, title string) ([]byte, error) {
	p, err := g.prepare(ctx, title)
	if err != nil {
		return nil, err
	}
	svg, err := renderSVG(p.layout, p.title, p.tagline, svgOptions{LogoDataURI: svgDataURI(p.logo)})
	if err != nil {
		return nil, fmt.Errorf("compose svg: %w", err)
	}
	return []byte(svg), nil
}

type prepared struct {
	title   *face
	tagline *face
	logo    []byte
	layout  layout
}

func (g *Generator) prepare(ctx context.Context, title string) (prepared, error) {
	if err := ctx.Err(); err != nil {
		return prepared{}, err
	}

	fontData, err := g.cache.GetOrLoad(ctx, fontKey, g.assets.Font)
	if err != nil {
		return prepared{}, g.assetError(ctx, fontKey, err)
	}
	logo, err := g.cache.GetOrLoad(ctx, logoKey, g.assets.Logo)
	if err != nil {
		return prepared{}, g.assetError(ctx, logoKey, err)
	}

	f, err := sfnt.Parse(fontData)
	if err != nil {
		return prepared{}, g.assetError(ctx, fontKey, err)
	}
	aspect, err := logoAspect(logo)
	if err != nil {
		return prepared{}, g.assetError(ctx, logoKey, err)
	}

	titleFace, err := newFace(f, g.assets.Fallback, titleSize, 0)
	if err != nil {
		return prepared{}, g.assetError(ctx, fontKey, err)
	}
	taglineFace, err := newFace(f, g.assets.Fallback, taglineSize, taglineTracking)
	if err != nil {
		return prepared{}, g.assetError(ctx, fontKey, err)
	}

	return prepared{
		title:   titleFace,
		tagline: taglineFace,
		logo:    logo,
		layout:  compose(titleFace, taglineFace, NormalizeTitle(title), aspect),
	}, nil
}

func (g *Generator) assetError(ctx context.Context, key string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	g.logger.ErrorContext(ctx, "asset load failed", slog.String("asset", key), slog.Any("err", err))
	return fmt.Errorf("%w: %s: %w", ErrAssetLoad, key, err)
}

func logoAspect(svg []byte) (float64, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg))
	if err != nil {
		return 0, fmt.Errorf("parse logo: %w", err)
	}
	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		return 0, errors.New("logo has no view box")
	}
	return icon.ViewBox.W / icon.ViewBox.H, nil
}
