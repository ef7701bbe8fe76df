package ogimage

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

const ellipsis = "…"

// face measures and outlines text at one size. A face is not safe for concurrent use.
type face struct {
	font *sfnt.Font
	buf  sfnt.Buffer
	ppem fixed.Int26_6
	// tracking is extra advance after every glyph, in pixels.
	tracking float64
	ascent   float64
	descent  float64

	// fallback draws runes the font has no glyph for, scaled up from its own pixel grid.
	fallback      font.Face
	fallbackScale float64
}

func newFace(f *sfnt.Font, fallback font.Face, size, tracking float64) (*face, error) {
	fc := &face{font: f, ppem: fixed.Int26_6(size * 64), tracking: tracking}
	m, err := f.Metrics(&fc.buf, fc.ppem, font.HintingNone)
	if err != nil {
		return nil, fmt.Errorf("font metrics: %w", err)
	}
	fc.ascent = toFloat(m.Ascent)
	fc.descent = toFloat(m.Descent)
	if fallback != nil {
		if em := toFloat(fallback.Metrics().Ascent); em > 0 {
			fc.fallback = fallback
			fc.fallbackScale = size / em
		}
	}
	return fc, nil
}

// index returns the font's glyph for r; false means the font does not cover r.
func (fc *face) index(r rune) (sfnt.GlyphIndex, bool) {
	idx, err := fc.font.GlyphIndex(&fc.buf, r)
	return idx, err == nil && idx != 0
}

// width returns the advance of s including kerning and tracking.
func (fc *face) width(s string) float64 {
	var (
		total float64
		prev  sfnt.GlyphIndex
		first = true
	)
	for _, r := range s {
		idx, ok := fc.index(r)
		if !ok {
			total += fc.fallbackAdvance(r)
			first = true
			continue
		}
		if !first {
			if k, err := fc.font.Kern(&fc.buf, prev, idx, fc.ppem, font.HintingNone); err == nil {
				total += toFloat(k)
			}
		}
		adv, err := fc.font.GlyphAdvance(&fc.buf, idx, fc.ppem, font.HintingNone)
		if err != nil {
			continue
		}
		total += toFloat(adv) + fc.tracking
		prev, first = idx, false
	}
	return total
}

// appendPath writes SVG path data for s with its origin at (x, baseline).
func (fc *face) appendPath(b *strings.Builder, s string, x, baseline float64) error {
	var (
		prev  sfnt.GlyphIndex
		first = true
	)
	for _, r := range s {
		idx, ok := fc.index(r)
		if !ok {
			x += fc.appendFallback(b, r, x, baseline)
			first = true
			continue
		}
		if !first {
			if k, err := fc.font.Kern(&fc.buf, prev, idx, fc.ppem, font.HintingNone); err == nil {
				x += toFloat(k)
			}
		}
		segs, err := fc.font.LoadGlyph(&fc.buf, idx, fc.ppem, nil)
		switch {
		case err == nil:
			writeSegments(b, segs, x, baseline)
		case errors.Is(err, sfnt.ErrColoredGlyph):
		default:
			return fmt.Errorf("load glyph %q: %w", r, err)
		}
		adv, err := fc.font.GlyphAdvance(&fc.buf, idx, fc.ppem, font.HintingNone)
		if err != nil {
			return fmt.Errorf("glyph advance %q: %w", r, err)
		}
		x += toFloat(adv) + fc.tracking
		prev, first = idx, false
	}
	return nil
}

func (fc *face) fallbackAdvance(r rune) float64 {
	if fc.fallback == nil {
		return 0
	}
	adv, ok := fc.fallback.GlyphAdvance(r)
	if !ok {
		return 0
	}
	return toFloat(adv)*fc.fallbackScale + fc.tracking
}

// appendFallback traces the fallback bitmap for r as one rectangle per run of set pixels
// and returns the advance.
func (fc *face) appendFallback(b *strings.Builder, r rune, x, baseline float64) float64 {
	if fc.fallback == nil {
		return 0
	}
	dr, mask, maskp, adv, ok := fc.fallback.Glyph(fixed.Point26_6{}, r)
	if !ok {
		return 0
	}
	px := fc.fallbackScale
	for j := 0; j < dr.Dy(); j++ {
		start := -1
		for i := 0; i <= dr.Dx(); i++ {
			set := i < dr.Dx() && opaque(mask, maskp.X+i, maskp.Y+j)
			switch {
			case set && start < 0:
				start = i
			case !set && start >= 0:
				writeRect(b,
					x+float64(dr.Min.X+start)*px, baseline+float64(dr.Min.Y+j)*px,
					float64(i-start)*px, px)
				start = -1
			}
		}
	}
	return toFloat(adv)*px + fc.tracking
}

func opaque(m image.Image, x, y int) bool {
	_, _, _, a := m.At(x, y).RGBA()
	return a >= 0x8000
}

func writeRect(b *strings.Builder, x, y, w, h float64) {
	b.WriteString("M")
	b.WriteString(formatFloat(x))
	b.WriteByte(' ')
	b.WriteString(formatFloat(y))
	b.WriteString("h")
	b.WriteString(formatFloat(w))
	b.WriteString("v")
	b.WriteString(formatFloat(h))
	b.WriteString("h")
	b.WriteString(formatFloat(-w))
	b.WriteString("Z")
}

// writeSegments converts glyph outlines, which are already y-down, into absolute path commands.
func writeSegments(b *strings.Builder, segs sfnt.Segments, dx, dy float64) {
	open := false
	for _, seg := range segs {
		switch seg.Op {
		case sfnt.SegmentOpMoveTo:
			if open {
				b.WriteString("Z")
			}
			b.WriteString("M")
			writePoint(b, seg.Args[0], dx, dy)
			open = true
		case sfnt.SegmentOpLineTo:
			b.WriteString("L")
			writePoint(b, seg.Args[0], dx, dy)
		case sfnt.SegmentOpQuadTo:
			b.WriteString("Q")
			writePoint(b, seg.Args[0], dx, dy)
			b.WriteByte(' ')
			writePoint(b, seg.Args[1], dx, dy)
		case sfnt.SegmentOpCubeTo:
			b.WriteString("C")
			writePoint(b, seg.Args[0], dx, dy)
			b.WriteByte(' ')
			writePoint(b, seg.Args[1], dx, dy)
			b.WriteByte(' ')
			writePoint(b, seg.Args[2], dx, dy)
		}
	}
	if open {
		b.WriteString("Z")
	}
}

func writePoint(b *strings.Builder, p fixed.Point26_6, dx, dy float64) {
	b.WriteString(formatFloat(toFloat(p.X) + dx))
	b.WriteByte(' ')
	b.WriteString(formatFloat(toFloat(p.Y) + dy))
}

// wrapText breaks s into at most maxLines lines no wider than maxWidth.
// Words wrap at spaces; CJK characters may break anywhere; overlong words break
// between characters. Text that does not fit ends with an ellipsis.
func wrapText(fc *face, s string, maxWidth float64, maxLines int) []string {
	var (
		lines []string
		line  string
	)
	for _, u := range breakUnits(s) {
		candidate := line + u.text
		if u.space && line != "" {
			candidate = line + " " + u.text
		}
		if line == "" || fc.width(candidate) <= maxWidth {
			line = candidate
			if fc.width(line) > maxWidth {
				var done []string
				done, line = splitRunes(fc, line, maxWidth)
				lines = append(lines, done...)
			}
			continue
		}
		lines = append(lines, line)
		line = u.text
		if fc.width(line) > maxWidth {
			var done []string
			done, line = splitRunes(fc, line, maxWidth)
			lines = append(lines, done...)
		}
	}
	if line != "" {
		lines = append(lines, line)
	}

	if len(lines) <= maxLines {
		return lines
	}
	lines = lines[:maxLines]
	lines[maxLines-1] = truncate(fc, lines[maxLines-1], maxWidth)
	return lines
}

type unit struct {
	text  string
	space bool
}

func breakUnits(s string) []unit {
	var (
		units   []unit
		word    strings.Builder
		spaced  bool
		pending bool
	)
	flush := func() {
		if word.Len() > 0 {
			units = append(units, unit{text: word.String(), space: spaced})
			word.Reset()
			spaced = false
		}
	}
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			flush()
			pending = true
		case isCJK(r):
			flush()
			units = append(units, unit{text: string(r), space: pending})
			pending = false
		default:
			if word.Len() == 0 {
				spaced, pending = pending, false
			}
			word.WriteRune(r)
		}
	}
	flush()
	return units
}

func splitRunes(fc *face, s string, maxWidth float64) ([]string, string) {
	var (
		lines []string
		cur   []rune
	)
	for _, r := range s {
		next := string(append(cur, r))
		if len(cur) > 0 && fc.width(next) > maxWidth {
			lines = append(lines, string(cur))
			cur = []rune{r}
			continue
		}
		cur = append(cur, r)
	}
	return lines, string(cur)
}

func truncate(fc *face, s string, maxWidth float64) string {
	runes := []rune(strings.TrimRightFunc(s, unicode.IsSpace))
	for len(runes) > 0 && fc.width(string(runes)+ellipsis) > maxWidth {
		runes = runes[:len(runes)-1]
	}
	return strings.TrimRightFunc(string(runes), unicode.IsSpace) + ellipsis
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) ||
		(r >= 0x3000 && r <= 0x303f) || (r >= 0xff00 && r <= 0xffef)
}

func toFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
