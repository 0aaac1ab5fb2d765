// Package vision runs the pretrained crowd-density network and turns
// its output into a head count and a heatmap overlay.
package vision

import "math"

// DensityMap is a per-pixel crowd density grid at the network's
// native output resolution. Values are relative contributions, not
// normalized; summing a region estimates the head count inside it.
type DensityMap struct {
	W, H   int
	Values []float32 // row-major, len W*H
}

// NewDensityMap allocates a zeroed w by h map.
func NewDensityMap(w, h int) *DensityMap {
	return &DensityMap{W: w, H: h, Values: make([]float32, w*h)}
}

// At returns the density at (x, y).
func (d *DensityMap) At(x, y int) float32 {
	return d.Values[y*d.W+x]
}

// Set assigns the density at (x, y).
func (d *DensityMap) Set(x, y int, v float32) {
	d.Values[y*d.W+x] = v
}

// Sum returns the total density.
func (d *DensityMap) Sum() float64 {
	var sum float64
	for _, v := range d.Values {
		sum += float64(v)
	}
	return sum
}

// Max returns the largest density value, or 0 for an empty map.
func (d *DensityMap) Max() float32 {
	var max float32
	for _, v := range d.Values {
		if v > max {
			max = v
		}
	}
	return max
}

// Count rounds the map total to a whole head count, clamped at zero:
// numeric noise can push an empty map's sum slightly negative.
func (d *DensityMap) Count() int {
	n := int(math.Round(d.Sum()))
	if n < 0 {
		n = 0
	}
	return n
}
