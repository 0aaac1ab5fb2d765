package api

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/coastwatch/coastwatch/internal/vision"
)

// maxUploadBytes caps analyze uploads at 20MB.
const maxUploadBytes = 20 << 20

// AnalyzeResponse is the result of an ad hoc estimation request.
type AnalyzeResponse struct {
	Count   int    `json:"count"`
	Overlay string `json:"overlay"` // base64-encoded PNG
}

// handleAnalyze runs the density model on an uploaded image. A
// decode failure on the upload is the client's fault; everything else
// is a server error.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	s.metrics.AnalyzeRequests.Add(1)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, _, err := r.FormFile("image")
	if err != nil {
		s.metrics.AnalyzeFailures.Add(1)
		BadRequest(w, "missing image upload")
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "analyze-*.img")
	if err != nil {
		s.metrics.AnalyzeFailures.Add(1)
		InternalError(w, "failed to stage upload")
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		s.metrics.AnalyzeFailures.Add(1)
		BadRequest(w, "failed to read upload")
		return
	}
	if err := tmp.Close(); err != nil {
		s.metrics.AnalyzeFailures.Add(1)
		InternalError(w, "failed to stage upload")
		return
	}

	result, err := s.analyzer.Predict(r.Context(), tmpPath, nil)
	if err != nil {
		s.metrics.AnalyzeFailures.Add(1)
		if errors.Is(err, vision.ErrBadImage) {
			BadRequest(w, "could not decode image")
			return
		}
		s.logger.Error("Analyze failed", "file", filepath.Base(tmpPath), "error", err)
		InternalError(w, "estimation failed")
		return
	}

	OK(w, AnalyzeResponse{
		Count:   result.Count,
		Overlay: base64.StdEncoding.EncodeToString(result.Overlay),
	})
}
