package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"gocv.io/x/gocv"
)

// Channel statistics of the density network's training pipeline
// (ImageNet), applied after scaling pixels to [0,1]. RGB order.
var (
	normMean = [3]float32{0.485, 0.456, 0.406}
	normStd  = [3]float32{0.229, 0.224, 0.225}
)

// ErrBadImage marks failures caused by an unreadable input image, as
// opposed to model or runtime failures. The API layer maps it to a
// client error.
var ErrBadImage = errors.New("vision: could not decode image")

// InferenceError wraps any decode or inference failure with the image
// that triggered it.
type InferenceError struct {
	ImagePath string
	Err       error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("vision: inference on %s: %v", e.ImagePath, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Result is one completed prediction.
type Result struct {
	Count     int
	Overlay   []byte // PNG-encoded heatmap composite
	Timestamp time.Time
}

// Estimator runs the pretrained density-regression network.
//
// The model is read from disk on every Predict call. Probes run
// minutes apart, so the load cost is noise next to the inference
// itself, and reloading keeps the estimator free of shared mutable
// state. A cache keyed by model path can be slotted in behind
// NewEstimator if probe rates ever grow.
type Estimator struct {
	modelPath string
	heatmap   HeatmapOptions
	logger    *slog.Logger
}

// NewEstimator builds an estimator for the ONNX model at modelPath.
func NewEstimator(modelPath string, opts HeatmapOptions) *Estimator {
	if opts.AlphaGain <= 0 {
		opts = DefaultHeatmapOptions()
	}
	return &Estimator{
		modelPath: modelPath,
		heatmap:   opts,
		logger:    slog.Default().With("component", "estimator"),
	}
}

// Predict estimates the crowd in the image at imagePath, restricted
// to the region masks when supplied, and renders the heatmap overlay
// against the original image.
func (e *Estimator) Predict(ctx context.Context, imagePath string, maskPaths []string) (*Result, error) {
	start := time.Now()

	dm, err := e.infer(ctx, imagePath)
	if err != nil {
		return nil, &InferenceError{ImagePath: imagePath, Err: err}
	}

	dm = ApplyMasks(maskPaths, dm)

	overlay, err := RenderHeatmap(imagePath, dm, e.heatmap)
	if err != nil {
		return nil, &InferenceError{ImagePath: imagePath, Err: err}
	}

	count := dm.Count()
	e.logger.Info("Prediction completed",
		"image", imagePath, "count", count, "masks", len(maskPaths),
		"duration", time.Since(start))

	return &Result{Count: count, Overlay: overlay, Timestamp: time.Now().UTC()}, nil
}

func (e *Estimator) infer(ctx context.Context, imagePath string) (*DensityMap, error) {
	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, ErrBadImage
	}
	defer img.Close()

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(img, &rgb, gocv.ColorBGRToRGB)

	scaled := gocv.NewMat()
	defer scaled.Close()
	rgb.ConvertTo(&scaled, gocv.MatTypeCV32FC3)
	scaled.DivideFloat(255)

	channels := gocv.Split(scaled)
	for i := range channels {
		channels[i].SubtractFloat(normMean[i])
		channels[i].DivideFloat(normStd[i])
	}
	normalized := gocv.NewMat()
	defer normalized.Close()
	gocv.Merge(channels, &normalized)
	for i := range channels {
		channels[i].Close()
	}

	net := gocv.ReadNetFromONNX(e.modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("could not load model %s", e.modelPath)
	}
	defer net.Close()

	blob := gocv.BlobFromImage(normalized, 1.0,
		image.Pt(normalized.Cols(), normalized.Rows()),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	net.SetInput(blob, "")
	prob := net.Forward("")
	defer prob.Close()

	// NCHW with a single channel: the density map at the network's
	// native output resolution, usually coarser than the input.
	sizes := prob.Size()
	if len(sizes) < 2 {
		return nil, fmt.Errorf("unexpected network output shape %v", sizes)
	}
	h, w := sizes[len(sizes)-2], sizes[len(sizes)-1]
	data, err := prob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("density output: %w", err)
	}
	if len(data) < w*h {
		return nil, fmt.Errorf("density output has %d values, want %d", len(data), w*h)
	}

	dm := NewDensityMap(w, h)
	copy(dm.Values, data[:w*h])
	return dm, nil
}
