package www

import (
	"log"
	"net/http"

	"aionclock/engine"
	"aionclock/wifi"
)

func (h *Handlers) handleScan(w http.ResponseWriter, r *http.Request) {
	var (
		networks []wifi.Network
		err      error
	)
	if !h.exec(w, r, engine.StateServer, func(dc *engine.DeviceContext) {
		networks, err = dc.ScanNetworks(r.Context())
	}) {
		return
	}
	if err != nil {
		log.Printf("provisioning: %v", err)
		writeFailure(w)
		return
	}
	writeSuccess(w, map[string]interface{}{"networks": networks})
}

func (h *Handlers) handleConnect(w http.ResponseWriter, r *http.Request) {
	ssid := r.FormValue("ssid")
	password := r.FormValue("password")
	uid := r.FormValue("uid")

	var err error
	if !h.exec(w, r, engine.StateServer, func(dc *engine.DeviceContext) {
		err = dc.Provision(ssid, password, uid)
	}) {
		return
	}
	if err != nil {
		log.Printf("provisioning: connect: %v", err)
		writeFailure(w)
		return
	}
	writeSuccess(w, nil)
}
