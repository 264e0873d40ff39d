package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"aionclock/device"
	"aionclock/store"
	"aionclock/telemetry"
	"aionclock/wifi"
)

// ErrMissingField is returned by Provision when a credential is empty.
var ErrMissingField = errors.New("ssid, password and uid are required")

// DeviceContext is the device's mutable state. It belongs to the control
// loop; outside the loop it is reachable only inside an Exec callback.
type DeviceContext struct {
	e *Engine

	State       State
	Identity    device.Identity
	Credentials store.Credentials
	Settings    store.Settings
	Sample      telemetry.Sample
	HasSample   bool
	ClockMode   bool
	Redraw      bool
	// Now is the loop clock for the current iteration.
	Now time.Time

	sampleTimer  *Timer
	displayTimer *Timer
	reboot       *pendingReboot
	lastMinute   int

	attempts          int
	nextAttempt       time.Time
	lastBrokerAttempt time.Time
}

type pendingReboot struct {
	at     time.Time
	reason string
	done   bool
}

// SettingsPatch carries the fields of a configuration update. Nil fields and
// empty strings leave the current value unchanged.
type SettingsPatch struct {
	TimeOffset     *int
	Brightness     *int
	UpdateInterval *int
	APIKey         *string
	APIToken       *string
}

// LocalTime is the wall clock shifted by the configured time offset.
func (dc *DeviceContext) LocalTime() time.Time {
	return dc.Now.Add(time.Duration(dc.Settings.TimeOffset) * time.Second)
}

// ScanNetworks runs a blocking scan of nearby networks.
func (dc *DeviceContext) ScanNetworks(ctx context.Context) ([]wifi.Network, error) {
	return dc.e.wifi.Scan(ctx)
}

// Provision replaces the stored credentials and schedules the reboot that
// makes them effective. Nothing changes if any field is empty or the store
// rejects the values.
func (dc *DeviceContext) Provision(ssid, password, uid string) error {
	if ssid == "" || password == "" || uid == "" {
		return ErrMissingField
	}
	e := dc.e
	if err := e.creds.Save(ssid, password, uid); err != nil {
		return err
	}
	dc.Credentials = e.creds.Load()
	e.logFn("provisioning: stored credentials for %q", ssid)
	dc.ScheduleReboot(e.cfg.Timing.ConnectReboot, "provisioned")
	return nil
}

// RequestReset schedules a reboot without touching the credentials.
func (dc *DeviceContext) RequestReset() {
	dc.ScheduleReboot(dc.e.cfg.Timing.ResetReboot, "reset requested")
}

// ScheduleReboot queues a reboot after delay. An earlier pending reboot wins.
func (dc *DeviceContext) ScheduleReboot(delay time.Duration, reason string) {
	dc.scheduleReboot(delay, reason, false)
}

func (dc *DeviceContext) scheduleReboot(delay time.Duration, reason string, cleared bool) {
	at := dc.Now.Add(delay)
	if dc.reboot != nil && !dc.reboot.at.After(at) {
		return
	}
	dc.reboot = &pendingReboot{at: at, reason: reason}
	e := dc.e
	if !cleared {
		e.display.Status("Restarting...")
	}
	e.logFn("engine: reboot in %s (%s)", delay, reason)
	e.Events.Emit(Event{Type: EventRebootScheduled, Payload: RebootScheduledEvent{
		Reason: reason, Delay: delay, CredentialsCleared: cleared,
	}})
}

// RebootPending reports whether a reboot has been scheduled.
func (dc *DeviceContext) RebootPending() bool {
	return dc.reboot != nil
}

// PersistedSettings returns the settings document as stored on disk.
func (dc *DeviceContext) PersistedSettings() (json.RawMessage, error) {
	return store.ReadSettingsDocument(dc.e.cfg.Storage.SettingsPath)
}

// DisplayMode is always 0; the view toggle is not reported.
func (dc *DeviceContext) DisplayMode() int {
	return 0
}

// Values returns the latest telemetry sample.
func (dc *DeviceContext) Values() telemetry.Sample {
	return dc.Sample
}

// ApplySettings merges p into the in-memory settings, reconnects the broker if
// credentials just became available, restarts both timers on the new interval
// from the clock view, then persists the full record.
func (dc *DeviceContext) ApplySettings(p SettingsPatch) {
	s := &dc.Settings
	if p.TimeOffset != nil {
		s.TimeOffset = *p.TimeOffset
	}
	if p.Brightness != nil {
		s.Brightness = *p.Brightness
	}
	if p.UpdateInterval != nil {
		s.UpdateInterval = *p.UpdateInterval
	}
	if p.APIKey != nil && *p.APIKey != "" {
		s.APIKey = *p.APIKey
	}
	if p.APIToken != nil && *p.APIToken != "" {
		s.APIToken = *p.APIToken
	}

	e := dc.e
	if e.broker != nil && !e.broker.IsConnected() && s.HasBrokerCredentials() {
		e.connectBroker(dc)
	}
	dc.armTimers()
	dc.ClockMode = true
	dc.Redraw = true

	if err := store.SaveSettings(e.cfg.Storage.SettingsPath, *s); err != nil {
		e.logFn("settings: save: %v", err)
	}
	e.Events.Emit(Event{Type: EventSettingsChanged, Payload: *s})
}

// ResetDisplayTimer returns to the clock view, restarts the view toggle and
// forces a redraw.
func (dc *DeviceContext) ResetDisplayTimer() {
	dc.displayTimer.Restart(dc.Now)
	dc.ClockMode = true
	dc.Redraw = true
}

// armTimers (re)starts the sampling timer on the update interval and the
// display timer on a tenth of it.
func (dc *DeviceContext) armTimers() {
	interval := time.Duration(dc.Settings.UpdateInterval) * time.Millisecond
	if dc.sampleTimer == nil {
		dc.sampleTimer = NewTimer(interval, dc.Now)
	} else {
		dc.sampleTimer.Reset(interval, dc.Now)
	}
	if dc.displayTimer == nil {
		dc.displayTimer = NewTimer(interval/10, dc.Now)
	} else {
		dc.displayTimer.Reset(interval/10, dc.Now)
	}
}
