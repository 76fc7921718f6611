package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ak-content/shorts-optimizer/internal/optimizer"
	"github.com/ak-content/shorts-optimizer/internal/youtube"
)

// diagnoseRequest is the POST /api/diagnose body. Either a single
// videoId or a last count; videoId wins when both are set.
type diagnoseRequest struct {
	VideoID string `json:"videoId"`
	Last    int    `json:"last"`
}

// diagnoseEntry pairs one video with its metrics and diagnosis.
type diagnoseEntry struct {
	Video     youtube.ShortVideo        `json:"video"`
	Metrics   youtube.ShortMetrics      `json:"metrics"`
	Diagnosis optimizer.DiagnosisResult `json:"diagnosis"`
}

// Diagnose handles POST /api/diagnose: selects target videos, fetches
// their metrics, and runs the diagnosis engine on each. The refiner may
// be nil, in which case results are baseline-only.
func Diagnose(src VideoSource, refiner optimizer.DiagnosisRefiner, skillRules string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req diagnoseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}

		last := req.Last
		if last < 1 {
			last = defaultVideoCount
		}

		videos, err := src.ListTargetVideos(r.Context(), youtube.VideoSelectionOptions{
			VideoID: req.VideoID,
			Last:    last,
		})
		if err != nil {
			writeError(w, http.StatusBadGateway, "failed to list videos: "+err.Error())
			return
		}
		if len(videos) == 0 {
			writeError(w, http.StatusNotFound, "no matching videos found")
			return
		}

		results := make([]diagnoseEntry, 0, len(videos))
		for _, video := range videos {
			metrics, err := src.FetchMetrics(r.Context(), video)
			if err != nil {
				writeError(w, http.StatusBadGateway, "failed to fetch metrics for "+video.VideoID+": "+err.Error())
				return
			}

			diagnosis := optimizer.DiagnoseShort(r.Context(), optimizer.DiagnoseParams{
				Video:      video,
				Metrics:    metrics,
				SkillRules: skillRules,
				Refiner:    refiner,
			})

			results = append(results, diagnoseEntry{
				Video:     video,
				Metrics:   metrics,
				Diagnosis: diagnosis,
			})
		}

		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}
