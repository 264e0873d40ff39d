package www

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"aionclock/engine"
)

// rpc commands
const (
	cmdConfig = "CFG"
	cmdMode   = "MODE"
	cmdValues = "VALUES"
)

func (h *Handlers) handlePing(w http.ResponseWriter, r *http.Request) {
	if !h.exec(w, r, engine.StateClient, func(*engine.DeviceContext) {}) {
		return
	}
	writeSuccess(w, nil)
}

func (h *Handlers) handleReset(w http.ResponseWriter, r *http.Request) {
	if !h.exec(w, r, engine.StateClient, func(dc *engine.DeviceContext) {
		dc.RequestReset()
	}) {
		return
	}
	writeSuccess(w, nil)
}

func (h *Handlers) handleRPCGet(w http.ResponseWriter, r *http.Request) {
	cmd := r.FormValue("cmd")
	var (
		data interface{}
		ok   bool
	)
	if !h.exec(w, r, engine.StateClient, func(dc *engine.DeviceContext) {
		switch cmd {
		case cmdConfig:
			doc, err := dc.PersistedSettings()
			if err != nil {
				log.Printf("rpc: %v", err)
				return
			}
			data, ok = doc, true
		case cmdMode:
			data, ok = map[string]int{"mode": dc.DisplayMode()}, true
		case cmdValues:
			data, ok = dc.Values(), true
		}
	}) {
		return
	}
	if !ok {
		writeFailure(w)
		return
	}
	writeSuccess(w, data)
}

func (h *Handlers) handleRPCPost(w http.ResponseWriter, r *http.Request) {
	cmd := r.FormValue("cmd")
	var patch engine.SettingsPatch
	if cmd == cmdConfig {
		var err error
		if patch, err = parseSettingsPatch(r); err != nil {
			log.Printf("rpc: %v", err)
			// Still gated on state so an inactive endpoint stays a 404.
			if h.exec(w, r, engine.StateClient, func(*engine.DeviceContext) {}) {
				writeFailure(w)
			}
			return
		}
	}

	ok := false
	if !h.exec(w, r, engine.StateClient, func(dc *engine.DeviceContext) {
		switch cmd {
		case cmdConfig:
			dc.ApplySettings(patch)
			ok = true
		case cmdMode:
			dc.ResetDisplayTimer()
			ok = true
		}
	}) {
		return
	}
	if !ok {
		writeFailure(w)
		return
	}
	writeSuccess(w, nil)
}

// parseSettingsPatch reads the settings fields present in the request. Empty
// values count as absent.
func parseSettingsPatch(r *http.Request) (engine.SettingsPatch, error) {
	var p engine.SettingsPatch
	for _, f := range []struct {
		key string
		dst **int
	}{
		{"timeOffset", &p.TimeOffset},
		{"brightness", &p.Brightness},
		{"updateInterval", &p.UpdateInterval},
	} {
		v := r.FormValue(f.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return engine.SettingsPatch{}, fmt.Errorf("parse %s: %w", f.key, err)
		}
		*f.dst = &n
	}
	if v := r.FormValue("apiKey"); v != "" {
		p.APIKey = &v
	}
	if v := r.FormValue("apiToken"); v != "" {
		p.APIToken = &v
	}
	return p, nil
}
