package www

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"aionclock/engine"
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

type response struct {
	Result string      `json:"result"`
	Data   interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, response{Result: resultSuccess, Data: data})
}

func writeFailure(w http.ResponseWriter) {
	writeJSON(w, response{Result: resultError})
}

// exec runs fn on the engine in state and reports false, having written the
// response, if it did not run.
func (h *Handlers) exec(w http.ResponseWriter, r *http.Request, state engine.State, fn func(*engine.DeviceContext)) bool {
	err := h.engine.Exec(r.Context(), state, fn)
	switch {
	case err == nil:
		return true
	case errors.Is(err, engine.ErrInactive):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Client went away.
	default:
		log.Printf("www: %s %s: %v", r.Method, r.URL.Path, err)
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	return false
}
