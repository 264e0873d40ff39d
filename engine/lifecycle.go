package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"aionclock/button"
	"aionclock/messaging"
	"aionclock/store"
)

var (
	// ErrJoinAborted means a button gesture interrupted the network join.
	ErrJoinAborted = errors.New("join aborted by reset signal")
	// ErrJoinTimeout means the link did not come up within the join timeout.
	ErrJoinTimeout = errors.New("timed out waiting for network")
	// ErrRegistrationRejected means the cloud answered with a non-200 status.
	ErrRegistrationRejected = errors.New("registration rejected")
)

// startProvisioning brings up the setup access point. A failure is logged;
// the provisioning endpoints are served regardless.
func (e *Engine) startProvisioning(ctx context.Context) {
	dc := e.dc
	ap := e.cfg.AccessPoint
	e.resolveMAC(dc)
	e.display.Status("Setup mode", "SSID: "+ap.SSID, "Pass: "+ap.Password)
	if err := e.wifi.StartAccessPoint(ctx, ap.SSID, ap.Password); err != nil {
		e.logFn("provisioning: %v", err)
		return
	}
	ip, err := e.wifi.AccessPointIP(ctx)
	if err != nil {
		e.debugFn("provisioning: access point address: %v", err)
	}
	e.logFn("provisioning: access point %q up at %s", ap.SSID, ip)
}

func (e *Engine) resolveMAC(dc *DeviceContext) {
	mac, err := e.wifi.MAC()
	if err != nil {
		e.debugFn("engine: resolve mac: %v", err)
		return
	}
	dc.Identity.MAC = mac
}

func (e *Engine) serviceConnect(ctx context.Context, dc *DeviceContext) {
	if dc.RebootPending() || dc.Now.Before(dc.nextAttempt) {
		return
	}
	dc.attempts++
	e.display.Status("Connecting...", dc.Credentials.SSID)

	status, err := e.joinAndRegister(ctx, dc)
	if errors.Is(err, ErrJoinAborted) || ctx.Err() != nil {
		e.logFn("registration: join aborted")
		dc.attempts--
		return
	}
	evt := RegistrationEvent{Attempt: dc.attempts, Status: status}
	if err != nil {
		evt.Error = err.Error()
	}
	e.Events.Emit(Event{Type: EventRegistration, Payload: evt})

	if err == nil {
		dc.attempts = 0
		e.enterClient(dc)
		return
	}
	e.logFn("registration: attempt %d: %v", dc.attempts, err)
	if wait, retry := e.policy.Next(dc.attempts, err); retry {
		dc.nextAttempt = e.clock().Add(wait)
		e.logFn("registration: retrying in %s", wait)
		return
	}
	e.transition(StateError)
	e.display.Status("Registration failed")
}

// joinAndRegister joins the stored network, waits for the link, and announces
// the device. It returns the registration status code.
func (e *Engine) joinAndRegister(ctx context.Context, dc *DeviceContext) (int, error) {
	t := e.cfg.Timing
	creds := dc.Credentials
	if err := e.wifi.Join(ctx, creds.SSID, creds.Password); err != nil {
		return 0, err
	}
	deadline := e.clock().Add(t.JoinTimeout)
	for {
		up, err := e.wifi.Connected(ctx)
		if err != nil {
			e.debugFn("registration: %v", err)
		}
		if up {
			break
		}
		now := e.clock()
		if ev := e.button.Poll(now); ev != button.None {
			dc.Now = now
			e.handleButton(dc, ev)
			return 0, ErrJoinAborted
		}
		if t.JoinTimeout > 0 && !now.Before(deadline) {
			return 0, ErrJoinTimeout
		}
		// Nothing is served while joining.
		e.dispatch(dc)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(t.JoinPoll):
		}
	}

	e.resolveMAC(dc)
	ip, err := e.wifi.LocalIP(ctx)
	if err != nil {
		e.logFn("registration: local address: %v", err)
	}
	e.logFn("registration: joined %q as %s", creds.SSID, ip)

	id := dc.Identity
	status, err := e.registrar.Register(ctx, messaging.Announcement{
		CloudUID: creds.CloudUID,
		Serial:   id.Serial,
		Name:     id.Name,
		Type:     id.Type,
		Address:  ip,
	})
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return status, fmt.Errorf("%w: status %d", ErrRegistrationRejected, status)
	}
	return status, nil
}

// enterClient starts normal operation: settings, broker, a first sample, then
// both timers.
func (e *Engine) enterClient(dc *DeviceContext) {
	e.transition(StateClient)
	dc.Settings = store.LoadSettings(e.cfg.Storage.SettingsPath)
	dc.Now = e.clock()
	dc.lastMinute = -1
	if dc.Settings.HasBrokerCredentials() {
		e.connectBroker(dc)
	}
	e.takeSample(dc)
	dc.armTimers()
}

func (e *Engine) takeSample(dc *DeviceContext) {
	s, err := e.pipeline.Acquire()
	if err != nil {
		e.logFn("telemetry: %v", err)
		return
	}
	dc.Sample = s
	dc.HasSample = true
	n := e.pipeline.Publish(s)
	// Every sample opens a full clock view.
	dc.ClockMode = true
	dc.displayTimer.Restart(dc.Now)
	dc.Redraw = true
	e.Events.Emit(Event{Type: EventSampleTaken, Payload: SampleTakenEvent{Sample: s, Published: n}})
}

func (e *Engine) connectBroker(dc *DeviceContext) {
	if e.broker == nil {
		return
	}
	dc.lastBrokerAttempt = dc.Now
	err := e.broker.Connect(messaging.Credentials{
		ClientID: dc.Identity.Serial,
		Username: dc.Settings.APIKey,
		Password: dc.Settings.APIToken,
	})
	if err != nil {
		e.logFn("messaging: %v", err)
		e.Events.Emit(Event{Type: EventBrokerFailed, Payload: BrokerEvent{Error: err.Error()}})
		return
	}
	e.logFn("messaging: connected as %s", dc.Identity.Serial)
	e.Events.Emit(Event{Type: EventBrokerConnected, Payload: BrokerEvent{}})
}

// serviceBroker retries a lost broker connection, at most once per
// reconnect backoff.
func (e *Engine) serviceBroker(dc *DeviceContext) {
	if e.broker == nil || e.broker.IsConnected() || !dc.Settings.HasBrokerCredentials() {
		return
	}
	backoff := e.cfg.Messaging.ReconnectBackoff
	if !dc.lastBrokerAttempt.IsZero() && dc.Now.Sub(dc.lastBrokerAttempt) < backoff {
		return
	}
	e.connectBroker(dc)
}
