package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coastwatch/coastwatch/internal/snapshot"
)

func (s *Server) handleListWebcams(w http.ResponseWriter, r *http.Request) {
	webcams, err := s.repo.ListWebcams(r.Context())
	if err != nil {
		s.logger.Error("Failed to list webcams", "error", err)
		InternalError(w, "failed to list webcams")
		return
	}
	OK(w, webcams)
}

func (s *Server) handleGetWebcam(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	webcam, err := s.repo.GetWebcam(r.Context(), slug)
	if err != nil {
		if errors.Is(err, snapshot.ErrWebcamNotFound) {
			NotFound(w, "webcam not found")
			return
		}
		s.logger.Error("Failed to get webcam", "slug", slug, "error", err)
		InternalError(w, "failed to get webcam")
		return
	}
	OK(w, webcam)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	webcam, err := s.repo.GetWebcam(r.Context(), slug)
	if err != nil {
		if errors.Is(err, snapshot.ErrWebcamNotFound) {
			NotFound(w, "webcam not found")
			return
		}
		s.logger.Error("Failed to get webcam", "slug", slug, "error", err)
		InternalError(w, "failed to get webcam")
		return
	}

	opts := snapshot.ListOptions{WebcamID: webcam.ID}

	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 50)
	if perPage > 200 {
		perPage = 200
	}
	opts.Limit = perPage
	opts.Offset = (page - 1) * perPage

	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			BadRequest(w, "invalid since timestamp")
			return
		}
		opts.Since = &t
	}
	if until := r.URL.Query().Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			BadRequest(w, "invalid until timestamp")
			return
		}
		opts.Until = &t
	}

	snapshots, total, err := s.repo.ListSnapshots(r.Context(), opts)
	if err != nil {
		s.logger.Error("Failed to list snapshots", "slug", slug, "error", err)
		InternalError(w, "failed to list snapshots")
		return
	}

	List(w, snapshots, total, page, perPage)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
