// Package handlers implements the JSON API endpoints for the optimizer's
// serve mode.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ak-content/shorts-optimizer/internal/youtube"
)

const defaultVideoCount = 3

// VideoSource lists target Shorts and fetches their metrics. It is
// satisfied by the live YouTube client and by fixture-backed stubs in
// tests.
type VideoSource interface {
	ListTargetVideos(ctx context.Context, opts youtube.VideoSelectionOptions) ([]youtube.ShortVideo, error)
	FetchMetrics(ctx context.Context, video youtube.ShortVideo) (youtube.ShortMetrics, error)
}

// Healthz returns a trivial liveness response. The mock flag tells
// dashboard callers whether metrics come from the fixture.
func Healthz(mock bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"mock":   mock,
		})
	}
}

// ListVideos handles GET /api/videos. The optional last query parameter
// bounds how many recent Shorts are returned.
func ListVideos(src VideoSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last := defaultVideoCount
		if raw := r.URL.Query().Get("last"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				writeError(w, http.StatusBadRequest, "last must be a positive integer")
				return
			}
			last = parsed
		}

		videos, err := src.ListTargetVideos(r.Context(), youtube.VideoSelectionOptions{Last: last})
		if err != nil {
			writeError(w, http.StatusBadGateway, "failed to list videos: "+err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"videos": videos})
	}
}
