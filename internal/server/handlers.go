package server

import (
	"encoding/json"
	"image/color"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/county-atlas/internal/encoding"
	"github.com/sells-group/county-atlas/internal/palette"
	"github.com/sells-group/county-atlas/internal/pipeline"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type metricInfo struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Bivariate   bool   `json:"bivariate,omitempty"`
	Composite   bool   `json:"composite,omitempty"`
}

type categoryInfo struct {
	ID      string       `json:"id"`
	Label   string       `json:"label"`
	Metrics []metricInfo `json:"metrics"`
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	cat := s.engine.Catalog()

	out := make([]categoryInfo, 0, len(cat.Categories))
	for id, cc := range cat.Categories {
		info := categoryInfo{ID: id, Label: cc.Label}
		for _, mid := range cc.Order() {
			m := cc.Metrics[mid]
			info.Metrics = append(info.Metrics, metricInfo{
				ID:          mid,
				Label:       m.Label,
				Description: m.Description,
				Bivariate:   m.Bivariate(),
				Composite:   m.Composite != nil,
			})
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	metric := chi.URLParam(r, "metric")

	view, err := s.engine.Render(r.Context(), pipeline.Request{Category: category, Metric: metric})
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if view.Summary == nil {
		writeError(w, http.StatusUnprocessableEntity, "metric has no data")
		return
	}
	writeJSON(w, http.StatusOK, view.Summary)
}

// layerRequest is the client-side shape of a pipeline request.
type layerRequest struct {
	Category string           `json:"category"`
	Metric   string           `json:"metric"`
	Filter   *encoding.Range  `json:"filter,omitempty"`
	XFilter  *encoding.Range  `json:"x_filter,omitempty"`
	YFilter  *encoding.Range  `json:"y_filter,omitempty"`
	Parts    map[string]bool  `json:"parts,omitempty"`
	Selected map[string]bool  `json:"selected,omitempty"`
}

type layerResponse struct {
	ID       string    `json:"id"`
	Category string    `json:"category"`
	Metric   string    `json:"metric"`
	Triggers []string  `json:"triggers"`
	Created  time.Time `json:"created"`
}

func (s *Server) handleCreateLayer(w http.ResponseWriter, r *http.Request) {
	var req layerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Category == "" || req.Metric == "" {
		writeError(w, http.StatusBadRequest, "category and metric are required")
		return
	}

	snap, err := s.createSnapshot(r.Context(), pipeline.Request{
		Category: req.Category,
		Metric:   req.Metric,
		Filter:   req.Filter,
		XFilter:  req.XFilter,
		YFilter:  req.YFilter,
		Parts:    req.Parts,
		Selected: req.Selected,
	})
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, snapResponse(snap))
}

func snapResponse(snap *snapshot) layerResponse {
	return layerResponse{
		ID:       snap.ID,
		Category: snap.View.Category,
		Metric:   snap.View.Metric,
		Triggers: snap.View.Triggers(),
		Created:  snap.Created,
	}
}

func (s *Server) handleGetLayer(w http.ResponseWriter, r *http.Request) {
	snap := s.lookup(chi.URLParam(r, "id"))
	if snap == nil {
		writeError(w, http.StatusNotFound, "unknown layer")
		return
	}
	writeJSON(w, http.StatusOK, snapResponse(snap))
}

func (s *Server) handleLayerColors(w http.ResponseWriter, r *http.Request) {
	snap := s.lookup(chi.URLParam(r, "id"))
	if snap == nil {
		writeError(w, http.StatusNotFound, "unknown layer")
		return
	}

	colors := snap.View.Colors()
	hexes := make([]string, len(colors))
	for i, c := range colors {
		hexes[i] = palette.Hex(color.RGBA{R: c[0], G: c[1], B: c[2], A: c[3]})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ids":    snap.View.Dataset.IDs,
		"colors": hexes,
	})
}

func (s *Server) handleLayerLegend(w http.ResponseWriter, r *http.Request) {
	snap := s.lookup(chi.URLParam(r, "id"))
	if snap == nil {
		writeError(w, http.StatusNotFound, "unknown layer")
		return
	}
	if snap.View.Legend == nil {
		writeError(w, http.StatusUnprocessableEntity, "layer has no legend")
		return
	}
	writeJSON(w, http.StatusOK, snap.View.Legend)
}

// rangeFilterModel is the slider state for a numeric layer. Unbounded
// ends (data past the scale domain) are null; their labels carry the
// infinity marker.
type rangeFilterModel struct {
	Kind      string   `json:"kind"`
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
	Low       float64  `json:"low"`
	High      float64  `json:"high"`
	LowLabel  string   `json:"low_label"`
	HighLabel string   `json:"high_label"`
}

// finiteOrNil maps an infinite bound to null for JSON transport.
func finiteOrNil(v float64) *float64 {
	if math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// categoryFilterModel is the toggle state for a categorical layer.
type categoryFilterModel struct {
	Kind   string   `json:"kind"`
	Values []string `json:"values"`
}

func (s *Server) handleLayerFilter(w http.ResponseWriter, r *http.Request) {
	snap := s.lookup(chi.URLParam(r, "id"))
	if snap == nil {
		writeError(w, http.StatusNotFound, "unknown layer")
		return
	}

	if ctl := snap.View.RangeFilter(nil); ctl != nil {
		low, high := ctl.Positions()
		lowLabel, highLabel := ctl.Labels()
		b := ctl.Bounds()
		writeJSON(w, http.StatusOK, rangeFilterModel{
			Kind:      "range",
			Min:       finiteOrNil(b.Min),
			Max:       finiteOrNil(b.Max),
			Low:       low,
			High:      high,
			LowLabel:  lowLabel,
			HighLabel: highLabel,
		})
		return
	}
	if ctl := snap.View.CategoryFilter(nil); ctl != nil {
		writeJSON(w, http.StatusOK, categoryFilterModel{
			Kind:   "category",
			Values: ctl.Order(),
		})
		return
	}
	writeError(w, http.StatusUnprocessableEntity, "layer has no filter control")
}

func (s *Server) handleDeleteLayer(w http.ResponseWriter, r *http.Request) {
	if !s.drop(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "unknown layer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
