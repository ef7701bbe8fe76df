package ogimage

import (
	"encoding/base64"
	"fmt"
	"math"
	"strings"
)

// Canvas size of every preview image.
const (
	Width  = 1200
	Height = 630
)

// Tagline is printed under every title.
const Tagline = "The Lightweight ActivityPub Server"

const (
	background = "#fff7ed"
	dotColor   = "#ffedd5"
	titleColor = "#1a202c"
	brandColor = "#ff5b11"

	dotTile   = 100.0
	dotRadius = 2.0

	cardPadX      = 120.0
	cardPadY      = 80.0
	cardRadius    = 40.0
	cardBorder    = 2.0
	cardMaxWidth  = Width * 0.85
	shadowOffsetY = 30.0
	shadowSpread  = -15.0
	shadowBlur    = 60.0
	shadowSteps   = 6
	shadowOpacity = 0.15

	logoHeight    = 80.0
	logoMarginBot = 40.0

	titleSize     = 64.0
	titleLeading  = 1.2
	titleMaxLines = 3
	titleMargin   = 20.0

	taglineSize     = 24.0
	taglineTracking = 0.05 * taglineSize
	taglineMarginTo = 20.0
)

type rect struct {
	X, Y, W, H float64
}

// layout is the resolved geometry of one preview image.
type layout struct {
	Card       rect
	Logo       rect
	TitleLines []textLine
	Tagline    textLine
}

type textLine struct {
	Text     string
	X        float64
	Baseline float64
}

// compose positions every element; the card shrinks to its content and is centered.
func compose(title *face, tagline *face, text string, logoAspect float64) layout {
	innerMax := cardMaxWidth - 2*cardPadX - 2*cardBorder

	logoW := math.Min(logoHeight*logoAspect, innerMax)
	lines := wrapText(title, text, innerMax, titleMaxLines)
	taglineW := tagline.width(Tagline)

	contentW := math.Max(logoW, taglineW)
	for _, l := range lines {
		contentW = math.Max(contentW, title.width(l))
	}
	contentW = math.Min(contentW, innerMax)

	lineH := titleSize * titleLeading
	taglineH := taglineSize * titleLeading
	contentH := logoHeight + logoMarginBot + float64(len(lines))*lineH + titleMargin + taglineMarginTo + taglineH

	card := rect{
		W: contentW + 2*cardPadX + 2*cardBorder,
		H: contentH + 2*cardPadY + 2*cardBorder,
	}
	card.X = (Width - card.W) / 2
	card.Y = (Height - card.H) / 2

	center := Width / 2.0
	y := card.Y + cardBorder + cardPadY
	out := layout{
		Card: card,
		Logo: rect{X: center - logoW/2, Y: y, W: logoW, H: logoHeight},
	}
	y += logoHeight + logoMarginBot

	for _, l := range lines {
		out.TitleLines = append(out.TitleLines, textLine{
			Text:     l,
			X:        center - title.width(l)/2,
			Baseline: baseline(title, y, lineH),
		})
		y += lineH
	}
	y += titleMargin + taglineMarginTo

	out.Tagline = textLine{
		Text:     Tagline,
		X:        center - (taglineW-tagline.tracking)/2,
		Baseline: baseline(tagline, y, taglineH),
	}
	return out
}

// baseline centers the font's ascent and descent inside a line box.
func baseline(fc *face, top, lineH float64) float64 {
	return top + (lineH-(fc.ascent+fc.descent))/2 + fc.ascent
}

// svgOptions controls how the logo is emitted.
type svgOptions struct {
	// LogoDataURI embeds the logo as an <image>; empty leaves a gap for a separately drawn layer.
	LogoDataURI string
}

func renderSVG(l layout, title, tagline *face, opts svgOptions) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%d" height="%d" viewBox="0 0 %d %d">`, Width, Height, Width, Height)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`, Width, Height, background)

	b.WriteString(`<g fill="` + dotColor + `">`)
	for ty := 0.0; ty < Height; ty += dotTile {
		for tx := 0.0; tx < Width; tx += dotTile {
			for _, off := range [2]float64{25, 75} {
				fmt.Fprintf(&b, `<circle cx="%s" cy="%s" r="%s"/>`, formatFloat(tx+off), formatFloat(ty+off), formatFloat(dotRadius))
			}
		}
	}
	b.WriteString(`</g>`)

	// Stacked translucent rounded rects approximate the blurred box shadow.
	step := shadowBlur / float64(shadowSteps)
	for i := range shadowSteps {
		grow := shadowSpread - shadowBlur/2 + step*(float64(i)+0.5)
		writeRoundRect(&b, rect{
			X: l.Card.X - grow,
			Y: l.Card.Y + shadowOffsetY - grow,
			W: l.Card.W + 2*grow,
			H: l.Card.H + 2*grow,
		}, cardRadius+math.Max(grow, 0), fmt.Sprintf(`fill="%s" fill-opacity="%s"`, brandColor, formatFloat(shadowOpacity/float64(shadowSteps))))
	}

	writeRoundRect(&b, rect{
		X: l.Card.X + cardBorder/2,
		Y: l.Card.Y + cardBorder/2,
		W: l.Card.W - cardBorder,
		H: l.Card.H - cardBorder,
	}, cardRadius, fmt.Sprintf(`fill="#ffffff" fill-opacity="0.8" stroke="#ffffff" stroke-opacity="0.8" stroke-width="%s"`, formatFloat(cardBorder)))

	if opts.LogoDataURI != "" {
		fmt.Fprintf(&b, `<image x="%s" y="%s" width="%s" height="%s" preserveAspectRatio="xMidYMid meet" href="%s"/>`,
			formatFloat(l.Logo.X), formatFloat(l.Logo.Y), formatFloat(l.Logo.W), formatFloat(l.Logo.H), opts.LogoDataURI)
	}

	if err := writeText(&b, title, l.TitleLines, titleColor); err != nil {
		return "", err
	}
	if err := writeText(&b, tagline, []textLine{l.Tagline}, brandColor); err != nil {
		return "", err
	}

	b.WriteString(`</svg>`)
	return b.String(), nil
}

func writeRoundRect(b *strings.Builder, r rect, radius float64, attrs string) {
	if r.W <= 0 || r.H <= 0 {
		return
	}
	radius = math.Min(radius, math.Min(r.W, r.H)/2)
	fmt.Fprintf(b, `<rect x="%s" y="%s" width="%s" height="%s" rx="%s" ry="%s" %s/>`,
		formatFloat(r.X), formatFloat(r.Y), formatFloat(r.W), formatFloat(r.H), formatFloat(radius), formatFloat(radius), attrs)
}

func writeText(b *strings.Builder, fc *face, lines []textLine, color string) error {
	var d strings.Builder
	for _, l := range lines {
		if err := fc.appendPath(&d, l.Text, l.X, l.Baseline); err != nil {
			return err
		}
	}
	if d.Len() == 0 {
		return nil
	}
	fmt.Fprintf(b, `<path fill="%s" d="%s"/>`, color, d.String())
	return nil
}

func svgDataURI(svg []byte) string {
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(svg)
}
