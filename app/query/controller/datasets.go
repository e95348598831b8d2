package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/meridian-network/carbonx/pkg/db"
	"github.com/meridian-network/carbonx/pkg/db/models"
)

// HandleDataset serves the latest snapshot of the dataset named in the path.
func (c *Controller) HandleDataset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !knownDataset(name) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown dataset: " + name})
		return
	}
	c.serveDataset(w, r, name)
}

func (c *Controller) HandleNodes(w http.ResponseWriter, r *http.Request) {
	c.serveDataset(w, r, models.DatasetNodes)
}

func (c *Controller) HandleCarbon(w http.ResponseWriter, r *http.Request) {
	c.serveDataset(w, r, models.DatasetCarbon)
}

func (c *Controller) HandleGeography(w http.ResponseWriter, r *http.Request) {
	c.serveDataset(w, r, models.DatasetGeography)
}

func (c *Controller) HandleCountries(w http.ResponseWriter, r *http.Request) {
	c.serveDataset(w, r, models.DatasetCountries)
}

func (c *Controller) HandlePower(w http.ResponseWriter, r *http.Request) {
	c.serveDataset(w, r, models.DatasetPower)
}

func (c *Controller) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	c.serveDataset(w, r, models.DatasetMetadata)
}

// serveDataset writes the cached payload when available, otherwise reads the
// newest snapshot from the store and caches it.
func (c *Controller) serveDataset(w http.ResponseWriter, r *http.Request, dataset string) {
	if payload, ok := c.App.Latest.Load(dataset); ok {
		writeRawJSON(w, payload)
		return
	}

	snap, err := c.App.DB.LatestSnapshot(r.Context(), dataset)
	if err != nil {
		if errors.Is(err, db.ErrNoSnapshot) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no data yet for dataset: " + dataset})
			return
		}
		c.App.Logger.Error("Failed to read snapshot", zap.String("dataset", dataset), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage error"})
		return
	}

	payload := []byte(snap.Payload)
	c.App.Latest.Store(dataset, payload)
	writeRawJSON(w, payload)
}

// historyWindow parses the "days" query parameter: default 90, capped at
// 365. A second return of false means the parameter was invalid and a
// response has been written.
func historyWindow(w http.ResponseWriter, r *http.Request) (int, bool) {
	days := 90
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid days parameter"})
			return 0, false
		}
		days = parsed
	}
	if days > 365 {
		days = 365
	}
	return days, true
}

// HandleNodeHistory serves the recorded node censuses within a trailing
// window.
func (c *Controller) HandleNodeHistory(w http.ResponseWriter, r *http.Request) {
	days, ok := historyWindow(w, r)
	if !ok {
		return
	}

	rows, err := c.App.DB.NodeStatsHistory(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		c.App.Logger.Error("Failed to read node history", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage error"})
		return
	}
	if rows == nil {
		rows = []models.NodeStatsRow{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"days":    days,
		"history": rows,
	})
}

// HandleCountryHistory serves the merged country rows recorded within a
// trailing window.
func (c *Controller) HandleCountryHistory(w http.ResponseWriter, r *http.Request) {
	days, ok := historyWindow(w, r)
	if !ok {
		return
	}

	rows, err := c.App.DB.CountryMetricsHistory(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		c.App.Logger.Error("Failed to read country history", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage error"})
		return
	}
	if rows == nil {
		rows = []models.CountryMetricsRow{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"days":    days,
		"history": rows,
	})
}

// HandlePowerHistory serves the derived power/energy/GHG figures recorded
// within a trailing window.
func (c *Controller) HandlePowerHistory(w http.ResponseWriter, r *http.Request) {
	days, ok := historyWindow(w, r)
	if !ok {
		return
	}

	rows, err := c.App.DB.NetworkPowerHistory(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		c.App.Logger.Error("Failed to read power history", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage error"})
		return
	}
	if rows == nil {
		rows = []models.NetworkPowerRow{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"days":    days,
		"history": rows,
	})
}

func knownDataset(name string) bool {
	for _, ds := range models.KnownDatasets {
		if ds == name {
			return true
		}
	}
	return false
}

func writeRawJSON(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
