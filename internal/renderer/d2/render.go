// Package d2 compiles D2 diagram sources into SVG on the server.
package d2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"oss.terrastruct.com/d2/d2graph"
	"oss.terrastruct.com/d2/d2layouts/d2dagrelayout"
	"oss.terrastruct.com/d2/d2layouts/d2elklayout"
	"oss.terrastruct.com/d2/d2lib"
	"oss.terrastruct.com/d2/d2renderers/d2svg"
	"oss.terrastruct.com/d2/d2themes/d2themescatalog"
	d2log "oss.terrastruct.com/d2/lib/log"
	"oss.terrastruct.com/d2/lib/textmeasure"
)

const defaultTimeout = 12 * time.Second

var (
	// ErrEmptyDiagram reports a fence with no diagram source.
	ErrEmptyDiagram = errors.New("empty d2 diagram")
	// ErrLayout reports a layout engine that is not compiled in.
	ErrLayout = errors.New("unsupported d2 layout")
)

// layouts are the engines a diagram may pick through vars.d2-config.layout-engine.
var layouts = map[string]d2graph.LayoutGraph{
	"dagre": func(ctx context.Context, g *d2graph.Graph) error { return d2dagrelayout.Layout(ctx, g, nil) },
	"elk":   func(ctx context.Context, g *d2graph.Graph) error { return d2elklayout.Layout(ctx, g, nil) },
}

// Result is a compiled diagram.
type Result struct {
	SVG string
}

// Options override the compile timeout and the light and dark themes.
// Nil theme IDs keep the site palette.
type Options struct {
	Timeout     time.Duration
	ThemeID     *int64
	DarkThemeID *int64
}

// Renderer compiles diagrams. It is safe for concurrent use.
type Renderer struct {
	logger  *slog.Logger
	timeout time.Duration
	light   int64
	dark    int64
}

// New returns a renderer themed to match the site's orange palette.
func New(logger *slog.Logger, opts *Options) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{
		logger:  logger.With("component", "d2"),
		timeout: defaultTimeout,
		light:   d2themescatalog.OrangeCreamsicle.ID,
		dark:    d2themescatalog.DarkFlagshipTerrastruct.ID,
	}
	if opts == nil {
		return r
	}
	if opts.Timeout > 0 {
		r.timeout = opts.Timeout
	}
	if opts.ThemeID != nil {
		r.light = *opts.ThemeID
	}
	if opts.DarkThemeID != nil {
		r.dark = *opts.DarkThemeID
	}
	return r
}

// Render compiles source into a standalone SVG with light and dark themes.
func (r *Renderer) Render(ctx context.Context, source string) (Result, error) {
	if strings.TrimSpace(source) == "" {
		return Result{}, ErrEmptyDiagram
	}
	ctx, cancel := context.WithTimeout(d2log.With(ctx, r.logger), r.timeout)
	defer cancel()

	ruler, err := textmeasure.NewRuler()
	if err != nil {
		return Result{}, fmt.Errorf("init ruler: %w", err)
	}

	// Compile applies the diagram's own d2-config onto these, so each call gets fresh values.
	light, dark, pad := r.light, r.dark, int64(d2svg.DEFAULT_PADDING)
	renderOpts := &d2svg.RenderOpts{ThemeID: &light, DarkThemeID: &dark, Pad: &pad}

	diagram, _, err := d2lib.Compile(ctx, source, &d2lib.CompileOptions{
		Ruler:          ruler,
		LayoutResolver: resolveLayout,
	}, renderOpts)
	if err != nil {
		return Result{}, fmt.Errorf("compile: %w", err)
	}
	if diagram == nil {
		return Result{}, errors.New("compile: no diagram produced")
	}

	svg, err := d2svg.Render(diagram, renderOpts)
	if err != nil {
		return Result{}, fmt.Errorf("render svg: %w", err)
	}
	return Result{SVG: string(svg)}, nil
}

func resolveLayout(engine string) (d2graph.LayoutGraph, error) {
	name := strings.ToLower(strings.TrimSpace(engine))
	if name == "" {
		name = "dagre"
	}
	layout, ok := layouts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrLayout, engine)
	}
	return layout, nil
}
