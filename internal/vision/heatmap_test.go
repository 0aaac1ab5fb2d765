package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeSourceImage(t *testing.T, path string, w, h int) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 10, G: 120, B: 200, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating source image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encoding source image: %v", err)
	}
}

func TestColorizeAlphaSaturates(t *testing.T) {
	opts := DefaultHeatmapOptions()
	dm := NewDensityMap(4, 4)
	// One extremely hot pixel and a gradient around it.
	dm.Set(0, 0, 1000)
	dm.Set(1, 0, 500)
	dm.Set(2, 0, 1)

	overlay := colorize(dm, opts)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			alpha := int(overlay.NRGBAAt(x, y).A)
			if alpha > opts.AlphaCeil {
				t.Errorf("alpha at (%d,%d) = %d, exceeds ceiling %d", x, y, alpha, opts.AlphaCeil)
			}
		}
	}

	// The hottest pixel saturates exactly at the ceiling.
	if got := int(overlay.NRGBAAt(0, 0).A); got != opts.AlphaCeil {
		t.Errorf("hottest pixel alpha = %d, want %d", got, opts.AlphaCeil)
	}
}

func TestColorizeZeroDensityIsTransparent(t *testing.T) {
	dm := NewDensityMap(6, 6)

	overlay := colorize(dm, DefaultHeatmapOptions())
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			if alpha := overlay.NRGBAAt(x, y).A; alpha != 0 {
				t.Fatalf("alpha at (%d,%d) = %d, want 0 on an all-zero map", x, y, alpha)
			}
		}
	}
}

func TestColorizeConfigurableCeiling(t *testing.T) {
	dm := NewDensityMap(2, 1)
	dm.Set(0, 0, 100)

	overlay := colorize(dm, HeatmapOptions{AlphaGain: 250, AlphaCeil: 40})
	if got := overlay.NRGBAAt(0, 0).A; got != 40 {
		t.Errorf("alpha = %d, want configured ceiling 40", got)
	}

	// A ceiling above the 8-bit range clamps to fully opaque.
	overlay = colorize(dm, HeatmapOptions{AlphaGain: 10000, AlphaCeil: 400})
	if got := overlay.NRGBAAt(0, 0).A; got != 255 {
		t.Errorf("alpha = %d, want 255 for an out-of-range ceiling", got)
	}
}

func TestRenderHeatmapMatchesSourceResolution(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "frame.png")
	writeSourceImage(t, srcPath, 64, 48)

	dm := NewDensityMap(16, 12)
	dm.Set(8, 6, 5)

	out, err := RenderHeatmap(srcPath, dm, DefaultHeatmapOptions())
	if err != nil {
		t.Fatalf("RenderHeatmap() error = %v", err)
	}

	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decoding overlay: %v", err)
	}
	if decoded.Bounds().Dx() != 64 || decoded.Bounds().Dy() != 48 {
		t.Errorf("overlay size = %dx%d, want 64x48",
			decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}
}

func TestRenderHeatmapKeepsSourceVisible(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "frame.png")
	writeSourceImage(t, srcPath, 8, 8)

	dm := NewDensityMap(8, 8)
	for i := range dm.Values {
		dm.Values[i] = 100
	}

	out, err := RenderHeatmap(srcPath, dm, DefaultHeatmapOptions())
	if err != nil {
		t.Fatalf("RenderHeatmap() error = %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decoding overlay: %v", err)
	}

	// With alpha capped at 75/255 the source must still dominate:
	// blue stays well above the overlay's contribution.
	_, _, b, _ := decoded.At(4, 4).RGBA()
	if b>>8 < 100 {
		t.Errorf("blue channel = %d, source image should remain visible under the overlay", b>>8)
	}
}

func TestRenderHeatmapMissingSource(t *testing.T) {
	dm := NewDensityMap(2, 2)
	if _, err := RenderHeatmap("/nonexistent/frame.png", dm, DefaultHeatmapOptions()); err == nil {
		t.Error("RenderHeatmap() = nil error, want failure on missing source image")
	}
}
