package vision

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// writeMask writes a grayscale PNG where the rectangle is dark
// (included) and the rest is white (excluded).
func writeMask(t *testing.T, path string, w, h int, include image.Rectangle) {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.Gray{Y: 255}
			if image.Pt(x, y).In(include) {
				c = color.Gray{Y: 0}
			}
			img.SetGray(x, y, c)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating mask file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encoding mask: %v", err)
	}
}

func filledMap(w, h int, v float32) *DensityMap {
	dm := NewDensityMap(w, h)
	for i := range dm.Values {
		dm.Values[i] = v
	}
	return dm
}

func TestApplyMasksEmptyIsIdentity(t *testing.T) {
	dm := filledMap(4, 4, 1.5)

	out := ApplyMasks(nil, dm)
	for i, v := range out.Values {
		if v != dm.Values[i] {
			t.Fatalf("Values[%d] = %v, want %v (no masks must be identity)", i, v, dm.Values[i])
		}
	}
}

func TestApplyMasksRestricts(t *testing.T) {
	dir := t.TempDir()
	maskPath := filepath.Join(dir, "beach.png")
	// Left half included.
	writeMask(t, maskPath, 4, 4, image.Rect(0, 0, 2, 4))

	dm := filledMap(4, 4, 2)
	out := ApplyMasks([]string{maskPath}, dm)

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := float32(0)
			if x < 2 {
				want = 2
			}
			if got := out.At(x, y); got != want {
				t.Errorf("At(%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}

	if out.Count() > dm.Count() {
		t.Errorf("masked count %d exceeds unmasked count %d", out.Count(), dm.Count())
	}
}

func TestApplyMasksUnion(t *testing.T) {
	dir := t.TempDir()
	left := filepath.Join(dir, "left.png")
	right := filepath.Join(dir, "right.png")
	writeMask(t, left, 4, 4, image.Rect(0, 0, 1, 4))
	writeMask(t, right, 4, 4, image.Rect(3, 0, 4, 4))

	dm := filledMap(4, 4, 1)
	out := ApplyMasks([]string{left, right}, dm)

	// A pixel marked by any mask survives.
	for y := 0; y < 4; y++ {
		if out.At(0, y) != 1 || out.At(3, y) != 1 {
			t.Errorf("row %d: edge pixels should survive the union", y)
		}
		if out.At(1, y) != 0 || out.At(2, y) != 0 {
			t.Errorf("row %d: middle pixels should be zeroed", y)
		}
	}
}

func TestApplyMasksNeverIncreases(t *testing.T) {
	dir := t.TempDir()
	maskPath := filepath.Join(dir, "zone.png")
	writeMask(t, maskPath, 8, 8, image.Rect(2, 2, 6, 6))

	dm := NewDensityMap(8, 8)
	for i := range dm.Values {
		dm.Values[i] = float32(i % 5)
	}

	out := ApplyMasks([]string{maskPath}, dm)
	for i := range out.Values {
		if out.Values[i] > dm.Values[i] {
			t.Fatalf("Values[%d] = %v > input %v: masking must never increase density", i, out.Values[i], dm.Values[i])
		}
	}
}

func TestApplyMasksSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	maskPath := filepath.Join(dir, "swim.png")
	writeMask(t, maskPath, 4, 4, image.Rect(0, 0, 4, 2))

	dm := filledMap(4, 4, 1)
	out := ApplyMasks([]string{filepath.Join(dir, "does-not-exist.png"), maskPath}, dm)

	// The missing mask is skipped; the readable one still applies.
	if out.At(0, 0) != 1 {
		t.Error("top half should survive the readable mask")
	}
	if out.At(0, 3) != 0 {
		t.Error("bottom half should be zeroed")
	}
}

func TestApplyMasksAllMissingIsIdentity(t *testing.T) {
	dm := filledMap(2, 2, 3)
	out := ApplyMasks([]string{"/nonexistent/a.png", "/nonexistent/b.png"}, dm)

	for i, v := range out.Values {
		if v != dm.Values[i] {
			t.Fatalf("Values[%d] = %v, want %v (no loadable masks must be identity)", i, v, dm.Values[i])
		}
	}
}

func TestApplyMasksResizesToMapResolution(t *testing.T) {
	dir := t.TempDir()
	maskPath := filepath.Join(dir, "big.png")
	// Mask at 16x16, density map at 4x4: left half included.
	writeMask(t, maskPath, 16, 16, image.Rect(0, 0, 8, 16))

	dm := filledMap(4, 4, 1)
	out := ApplyMasks([]string{maskPath}, dm)

	if out.At(0, 0) != 1 {
		t.Error("left edge should survive after bilinear downscale")
	}
	if out.At(3, 0) != 0 {
		t.Error("right edge should be zeroed after bilinear downscale")
	}
}
