package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homey-core/internal/panel"
)

// apiPrefix is the mount point of the versioned API.
const apiPrefix = "/api/v1"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Dashboard UI, embedded via go:embed
	r.Handle("/panel/*", http.StripPrefix("/panel", panel.Handler(s.panelDir)))
	r.Handle("/panel", http.RedirectHandler("/panel/", http.StatusMovedPermanently))
	r.Handle("/", http.RedirectHandler("/panel/", http.StatusFound))

	r.Route(apiPrefix, func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/auth/signup", s.handleSignUp)
		r.Post("/auth/signin", s.handleSignIn)
		r.Post("/auth/refresh", s.handleRefresh)

		// WebSocket authenticates with a ticket or in-band, validated in the handler
		r.Get(s.wsPath(), s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/signout", s.handleSignOut)
			r.Get("/auth/session", s.handleSession)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Post("/toggle", s.handleToggleDevice)
					r.Post("/adjust", s.handleAdjustDevice)
				})
			})

			r.Get("/rooms", s.handleListRooms)
			r.Get("/device-types", s.handleListDeviceTypes)
			r.Get("/room-options", s.handleListRoomOptions)
			r.Get("/activity", s.handleListActivity)
		})
	})

	return r
}

// defaultWSPath is used when the WebSocket path is not configured.
const defaultWSPath = "/ws"

// wsPath returns the WebSocket route relative to /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return defaultWSPath
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status. The dashboard reads the
// WebSocket path from here before anyone has signed in.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"site": map[string]string{
			"id":       s.site.ID,
			"name":     s.site.Name,
			"timezone": s.site.Timezone,
		},
		"ws_path": apiPrefix + s.wsPath(),
		"devices": s.devices.Snapshot().Len(),
		"clients": s.hub.ClientCount(),
	})
}
