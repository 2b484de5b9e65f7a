package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(recoveryMiddleware)
	r.Use(bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Route("/{ref}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Post("/groups", s.handleAddToGroup)
				r.Delete("/groups/{group}", s.handleRemoveFromGroup)
			})
		})

		r.Get("/groups", s.handleListGroups)
		r.Get("/collections/{filter}", s.handleCollection)

		r.Post("/leds", s.handleSetLed)
		r.Post("/actions/{name}", s.handleRunAction)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
		r.Post("/cache/clear", s.handleClearCache)

		r.Get("/ledger", s.handleLedger)
	})

	return r
}
