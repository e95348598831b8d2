package controller

import (
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"

	"github.com/meridian-network/carbonx/app/query/types"
	"github.com/meridian-network/carbonx/pkg/utils"
)

type Controller struct {
	App        *types.App
	AdminToken string
	AuthUser   string
	AuthHash   []byte
	JWTSecret  []byte
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	adminToken := utils.Env("ADMIN_TOKEN", "devtoken")
	adminUser := utils.Env("ADMIN_USER", "admin")
	adminPass := utils.Env("ADMIN_PASSWORD", "admin")
	jwtSecret := []byte(utils.Env("SESSION_SECRET", "change-me-please"))

	phash, _ := utils.HashOrRead(adminPass)

	return &Controller{
		App:        app,
		AdminToken: adminToken,
		AuthUser:   adminUser,
		AuthHash:   phash,
		JWTSecret:  jwtSecret,
	}
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Development: Echo back the origin to allow credentials with any origin
		// TODO: Restrict this in production to specific domains
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/api/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)

	// Dataset endpoints: one generic route plus a stable alias per dataset.
	r.HandleFunc("/api/datasets/{name}", c.HandleDataset).Methods(http.MethodGet)
	r.HandleFunc("/api/nodes", c.HandleNodes).Methods(http.MethodGet)
	r.HandleFunc("/api/nodes/history", c.HandleNodeHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/carbon", c.HandleCarbon).Methods(http.MethodGet)
	r.HandleFunc("/api/geography", c.HandleGeography).Methods(http.MethodGet)
	r.HandleFunc("/api/countries", c.HandleCountries).Methods(http.MethodGet)
	r.HandleFunc("/api/countries/history", c.HandleCountryHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/power", c.HandlePower).Methods(http.MethodGet)
	r.HandleFunc("/api/power/history", c.HandlePowerHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/metadata", c.HandleMetadata).Methods(http.MethodGet)

	// Admin API - Login/Logout (normalized to /api prefix)
	r.HandleFunc("/api/auth/login", c.HandleAdminLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", c.HandleAdminLogout).Methods(http.MethodPost)
	r.Handle("/api/admin/refresh", c.RequireAuth(http.HandlerFunc(c.HandleRefresh))).Methods(http.MethodPost)

	// WebSocket endpoint for real-time events
	r.HandleFunc("/api/ws", c.HandleWebSocket).Methods(http.MethodGet)

	return r, nil
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
