package vision

import (
	"image"
	stddraw "image/draw"
	"log/slog"
	"os"

	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Region masks are authored dark-on-light: pixels darker than the
// threshold are inside the zone. That polarity is baked into the mask
// assets and must not change.
const maskThreshold = 128

// ApplyMasks restricts a density map to the union of the supplied
// region masks: a pixel survives if any mask includes it, everything
// outside is zeroed in place on a copy. Unreadable or missing mask
// files are skipped so webcams with partial mask sets keep working;
// when no mask could be loaded the map is returned unchanged.
func ApplyMasks(maskPaths []string, dm *DensityMap) *DensityMap {
	union := make([]bool, len(dm.Values))
	loaded := 0
	var skipped []string

	for _, path := range maskPaths {
		mask, err := loadGray(path)
		if err != nil {
			slog.Default().Debug("Skipping unreadable region mask", "mask", path, "error", err)
			skipped = append(skipped, path)
			continue
		}
		loaded++

		resized := resizeGray(mask, dm.W, dm.H)
		for i := range union {
			if resized.Pix[i] < maskThreshold {
				union[i] = true
			}
		}
	}

	if len(skipped) > 0 {
		slog.Default().Warn("Region masks skipped",
			"skipped", len(skipped), "configured", len(maskPaths))
	}
	if loaded == 0 {
		return dm
	}

	out := NewDensityMap(dm.W, dm.H)
	for i, v := range dm.Values {
		if union[i] {
			out.Values[i] = v
		}
	}
	return out
}

func loadGray(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}

	gray := image.NewGray(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	stddraw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, stddraw.Src)
	return gray, nil
}

func resizeGray(src *image.Gray, w, h int) *image.Gray {
	if src.Bounds().Dx() == w && src.Bounds().Dy() == h {
		return src
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
