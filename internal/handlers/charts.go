package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"hostwatch/internal/logger"
	"hostwatch/internal/storage"
)

type chartResponse struct {
	Success    bool      `json:"success"`
	Metric     string    `json:"metric"`
	Range      string    `json:"range"`
	Timestamps []string  `json:"timestamps"`
	Values     []float64 `json:"values"`
}

// chartData serves GET /api/chart-data/{metric}?range=24h&mount=/data.
func (a *API) chartData(w http.ResponseWriter, r *http.Request) {
	metric := mux.Vars(r)["metric"]
	rangeName := r.URL.Query().Get("range")
	if rangeName == "" {
		rangeName = storage.DefaultRange
	}

	window, err := storage.ParseRange(rangeName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ch, err := a.resolveChannel(metric, r.URL.Query().Get("mount"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	pts, err := storage.Chart(r.Context(), a.history, ch, window, a.now())
	if err != nil {
		log := logger.WithChannel("api", string(ch))
		log.Error().Err(err).Msg("chart query failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := chartResponse{
		Success:    true,
		Metric:     metric,
		Range:      rangeName,
		Timestamps: make([]string, len(pts)),
		Values:     make([]float64, len(pts)),
	}
	for i, p := range pts {
		resp.Timestamps[i] = p.Timestamp.UTC().Format(time.RFC3339)
		resp.Values[i] = p.Value
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) resetChartData(w http.ResponseWriter, r *http.Request) {
	if err := a.history.Reset(r.Context()); err != nil {
		log := logger.WithComponent("api")
		log.Error().Err(err).Msg("chart reset failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log := logger.WithComponent("api")
	log.Info().Msg("chart data reset")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "chart data reset",
	})
}
