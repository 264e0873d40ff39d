// Package www serves the provisioning endpoints and the control API.
package www

import (
	"net/http"

	"aionclock/engine"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	engine *engine.Engine
}

// NewRouter creates the chi router. Provisioning endpoints answer only while
// the device is in SERVER, control endpoints only in CLIENT.
func NewRouter(eng *engine.Engine) http.Handler {
	h := &Handlers{engine: eng}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	// Provisioning (no auth: reachable only over the setup access point)
	r.Get("/xhr/scan", h.handleScan)
	r.Post("/xhr/connect", h.handleConnect)

	// Control API
	r.Group(func(r chi.Router) {
		r.Use(h.keyMiddleware)
		r.Post("/xhr/ping", h.handlePing)
		r.Post("/xhr/reset", h.handleReset)
		r.Get("/xhr/rpc", h.handleRPCGet)
		r.Post("/xhr/rpc", h.handleRPCPost)
	})

	return r
}

// keyMiddleware rejects requests whose key is not the device serial.
func (h *Handlers) keyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.engine.Authorized(r.FormValue("key")) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
