package controller

import (
	"net/http"
)

func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := c.App.DB.Health(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "errored", "error": "database connection error"})
		return
	}

	redisStatus := "disabled"
	if c.App.RedisClient != nil {
		redisStatus = "ok"
		if err := c.App.RedisClient.Health(ctx); err != nil {
			// Redis is optional; degrade instead of failing the probe.
			redisStatus = "errored"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "redis": redisStatus})
}
