package vision

import (
	"bytes"
	"fmt"
	"image"
	stddraw "image/draw"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/draw"
)

// HeatmapOptions are the two visual knobs. Per-pixel alpha is
// min(normalized*AlphaGain, AlphaCeil) on the 8-bit scale; the
// ceiling keeps the source image visible under the hottest pixels.
type HeatmapOptions struct {
	AlphaGain float64
	AlphaCeil int
}

// DefaultHeatmapOptions returns the tuning the mask and overlay
// assets were calibrated against.
func DefaultHeatmapOptions() HeatmapOptions {
	return HeatmapOptions{AlphaGain: 250, AlphaCeil: 75}
}

// RenderHeatmap colorizes the density map, scales it to the source
// image's resolution and alpha-composites it on top, returning the
// PNG-encoded result.
func RenderHeatmap(sourcePath string, dm *DensityMap, opts HeatmapOptions) ([]byte, error) {
	src, err := loadImage(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("vision: load source image: %w", err)
	}

	overlay := colorize(dm, opts)

	bounds := image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy())
	scaled := image.NewNRGBA(bounds)
	draw.BiLinear.Scale(scaled, bounds, overlay, overlay.Bounds(), draw.Src, nil)

	out := image.NewNRGBA(bounds)
	stddraw.Draw(out, bounds, src, src.Bounds().Min, stddraw.Src)
	stddraw.Draw(out, bounds, scaled, image.Point{}, stddraw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("vision: encode overlay: %w", err)
	}
	return buf.Bytes(), nil
}

// colorize maps normalized density through a jet-style blue-to-red
// ramp with density-proportional alpha.
func colorize(dm *DensityMap, opts HeatmapOptions) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, dm.W, dm.H))
	// The epsilon keeps all-zero maps from dividing by zero and maps
	// them to a fully transparent overlay.
	max := float64(dm.Max()) + 1e-8

	ceil := float64(opts.AlphaCeil)
	if ceil > 255 {
		ceil = 255
	}

	for y := 0; y < dm.H; y++ {
		for x := 0; x < dm.W; x++ {
			norm := float64(dm.At(x, y)) / max
			r, g, b := jet(norm)

			alpha := norm * opts.AlphaGain
			if alpha > ceil {
				alpha = ceil
			}

			i := img.PixOffset(x, y)
			img.Pix[i+0] = r
			img.Pix[i+1] = g
			img.Pix[i+2] = b
			img.Pix[i+3] = uint8(alpha)
		}
	}
	return img
}

// jet is the classic diverging blue-to-red ramp over [0,1].
func jet(v float64) (r, g, b uint8) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	r = rampByte(1.5 - math.Abs(4*v-3))
	g = rampByte(1.5 - math.Abs(4*v-2))
	b = rampByte(1.5 - math.Abs(4*v-1))
	return r, g, b
}

func rampByte(x float64) uint8 {
	if x < 0 {
		x = 0
	} else if x > 1 {
		x = 1
	}
	return uint8(math.Round(x * 255))
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return img, nil
}
