package ogimage

import (
	"context"
	"fmt"
	"os"

	"github.com/hajimehoshi/bitmapfont/v4"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"

	"github.com/Love-Rox/rox-homepage/static"
)

const (
	fontKey = "font"
	logoKey = "logo"

	defaultLogo = "logos/rox-horizontal.svg"
)

// Assets names the loaders for the font and logo used by the preview layout.
// Fallback, when set, draws the runes Font has no glyph for.
type Assets struct {
	Font     LoadFunc
	Logo     LoadFunc
	Fallback font.Face
}

// DefaultAssets returns loaders for the given files, falling back to the embedded
// Go Bold face and the embedded horizontal logo when a path is empty.
// Japanese and other CJK text the font lacks is drawn from the M+ bitmap glyphs.
func DefaultAssets(fontPath, logoPath string) Assets {
	a := Assets{
		Font:     func(context.Context) ([]byte, error) { return gobold.TTF, nil },
		Fallback: bitmapfont.Face,
		Logo: func(context.Context) ([]byte, error) {
			data, err := static.ReadFile(defaultLogo)
			if err != nil {
				return nil, fmt.Errorf("read embedded logo: %w", err)
			}
			return data, nil
		},
	}
	if fontPath != "" {
		a.Font = FileLoader(fontPath)
	}
	if logoPath != "" {
		a.Logo = FileLoader(logoPath)
	}
	return a
}

// FileLoader reads an asset from disk.
func FileLoader(path string) LoadFunc {
	return func(ctx context.Context) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied asset path
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%s is empty", path)
		}
		return data, nil
	}
}
