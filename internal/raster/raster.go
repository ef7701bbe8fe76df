// Package raster converts SVG documents into PNG images.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Layer is one SVG document drawn into a rectangle of the canvas.
// A zero W or H draws the layer at its intrinsic view box size.
type Layer struct {
	SVG        []byte
	X, Y, W, H float64
}

// ErrEmptyCanvas is returned for non-positive canvas dimensions.
var ErrEmptyCanvas = errors.New("raster: canvas must have a positive size")

// PNG rasterizes an SVG at its view box size.
func PNG(svg []byte) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}

	viewbox := icon.ViewBox
	width := int(math.Ceil(viewbox.W))
	height := int(math.Ceil(viewbox.H))
	if width <= 0 || height <= 0 {
		width, height = 800, 600
	}

	icon.SetTarget(0, 0, float64(width), float64(height))
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw(canvas, icon)
	return encode(canvas)
}

// Compose draws layers in order onto a width x height canvas and encodes the result.
func Compose(width, height int, layers ...Layer) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyCanvas
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, layer := range layers {
		icon, err := oksvg.ReadIconStream(bytes.NewReader(layer.SVG))
		if err != nil {
			return nil, fmt.Errorf("parse svg layer %d: %w", i, err)
		}
		w, h := layer.W, layer.H
		if w <= 0 || h <= 0 {
			w, h = icon.ViewBox.W, icon.ViewBox.H
		}
		icon.SetTarget(layer.X, layer.Y, w, h)
		draw(canvas, icon)
	}
	return encode(canvas)
}

func draw(canvas *image.RGBA, icon *oksvg.SvgIcon) {
	b := canvas.Bounds()
	scanner := rasterx.NewScannerGV(b.Dx(), b.Dy(), canvas, b)
	dasher := rasterx.NewDasher(b.Dx(), b.Dy(), scanner)
	icon.Draw(dasher, 1.0)
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
