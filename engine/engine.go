// Package engine runs the device lifecycle: a single control loop that owns
// the DeviceContext and drives provisioning, registration, the control API and
// telemetry from it.
package engine

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync/atomic"
	"time"

	"aionclock/button"
	"aionclock/config"
	"aionclock/device"
	"aionclock/store"
	"aionclock/telemetry"
)

// LogFunc is the logging callback signature, shared with the telemetry
// pipeline.
type LogFunc = telemetry.LogFunc

var (
	// ErrInactive is returned by Exec when the device is not in the state the
	// request needs.
	ErrInactive = errors.New("endpoint not active in current state")
	// ErrStopped is returned by Exec once the loop has exited.
	ErrStopped = errors.New("engine stopped")
)

// Engine owns the control loop.
type Engine struct {
	cfg     *config.Config
	logFn   LogFunc
	debugFn LogFunc
	clock   func() time.Time

	creds     *store.CredentialStore
	wifi      WiFi
	registrar Registrar
	broker    Broker
	button    Button
	rebooter  Rebooter
	display   Display
	policy    RegistrationPolicy
	pipeline  *telemetry.Pipeline
	serial    string

	Events *EventBus

	dc       *DeviceContext
	state    atomic.Int32
	requests chan *request
	backlog  []*request
	done     chan struct{}
}

// Config holds the parameters needed to create an Engine.
type Config struct {
	AppConfig   *config.Config
	Identity    device.Identity
	Credentials *store.CredentialStore
	WiFi        WiFi
	Registrar   Registrar
	Broker      Broker // optional
	Sensor      telemetry.Sensor
	Button      Button   // optional
	Rebooter    Rebooter // required
	Display     Display  // optional, defaults to the log
	Policy      RegistrationPolicy
	LogFunc     LogFunc
	Debug       bool
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// New creates an Engine in IDLE. Call Run to boot it.
func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	debugFn := LogFunc(func(string, ...interface{}) {})
	if c.Debug {
		debugFn = logFn
	}
	clock := c.Clock
	if clock == nil {
		clock = time.Now
	}
	e := &Engine{
		cfg:       c.AppConfig,
		logFn:     logFn,
		debugFn:   debugFn,
		clock:     clock,
		creds:     c.Credentials,
		wifi:      c.WiFi,
		registrar: c.Registrar,
		broker:    c.Broker,
		button:    c.Button,
		rebooter:  c.Rebooter,
		display:   c.Display,
		policy:    c.Policy,
		serial:    c.Identity.Serial,
		Events:    NewEventBus(),
		requests:  make(chan *request, 16),
		done:      make(chan struct{}),
	}
	if e.button == nil {
		e.button = noButton{}
	}
	if e.display == nil {
		e.display = logDisplay{logFn: logFn, debugFn: debugFn}
	}
	if e.policy == nil {
		e.policy = TerminalPolicy{}
	}
	var pub telemetry.Publisher
	if c.Broker != nil {
		pub = c.Broker
	}
	e.pipeline = telemetry.NewPipeline(c.Sensor, pub, c.Identity.Serial, logFn, debugFn)
	e.dc = &DeviceContext{e: e, State: StateIdle, Identity: c.Identity, Settings: store.DefaultSettings()}
	return e
}

// State returns the current operating state. Safe from any goroutine.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Authorized checks a control API key against the device serial.
func (e *Engine) Authorized(key string) bool {
	return subtle.ConstantTimeCompare([]byte(key), []byte(e.serial)) == 1
}

// Run boots the device and runs the control loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	defer e.shutdown()

	e.boot(ctx)

	tick := e.cfg.Timing.Tick
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case req := <-e.requests:
			e.backlog = append(e.backlog, req)
		}
		e.step(ctx)
	}
}

// boot leaves IDLE according to the stored credentials.
func (e *Engine) boot(ctx context.Context) {
	dc := e.dc
	dc.Now = e.clock()
	dc.Credentials = e.creds.Load()
	e.logFn("engine: boot serial=%s provisioned=%t", dc.Identity.Serial, dc.Credentials.Provisioned())
	if !dc.Credentials.Provisioned() {
		e.transition(StateConfig)
		e.startProvisioning(ctx)
		e.transition(StateServer)
		return
	}
	e.transition(StateConnect)
	dc.nextAttempt = dc.Now
}

// step is one loop iteration: clock, button, timers, state handler with its
// pending requests, timer expirations, then due reboots.
func (e *Engine) step(ctx context.Context) {
	dc := e.dc
	dc.Now = e.clock()

	e.handleButton(dc, e.button.Poll(dc.Now))

	dc.sampleTimer.Update(dc.Now)
	dc.displayTimer.Update(dc.Now)

	switch dc.State {
	case StateConnect:
		e.serviceConnect(ctx, dc)
	case StateClient:
		e.serviceBroker(dc)
	}
	e.dispatch(dc)

	if dc.State == StateClient {
		if dc.sampleTimer.Finished() {
			e.takeSample(dc)
		}
		if dc.displayTimer.Finished() && dc.ClockMode {
			dc.ClockMode = false
			dc.Redraw = true
		}
		e.render(dc)
	}

	e.serviceReboot(dc)
}

func (e *Engine) transition(to State) {
	dc := e.dc
	from := dc.State
	if !CanTransition(from, to) {
		e.logFn("engine: refusing transition %s -> %s", from, to)
		return
	}
	dc.State = to
	e.state.Store(int32(to))
	e.logFn("engine: state %s -> %s", from, to)
	e.Events.Emit(Event{Type: EventStateChanged, Payload: StateChangedEvent{From: from, To: to}})
}

func (e *Engine) handleButton(dc *DeviceContext, ev button.Event) {
	switch ev {
	case button.ShortPress:
		e.Events.Emit(Event{Type: EventButton, Payload: ButtonEvent{Gesture: ev.String()}})
		dc.ScheduleReboot(e.cfg.Timing.ResetReboot, "button press")
	case button.LongHold:
		e.Events.Emit(Event{Type: EventButton, Payload: ButtonEvent{Gesture: ev.String()}})
		e.display.Status("Factory reset...")
		if err := e.creds.Clear(); err != nil {
			e.logFn("engine: clear credentials: %v", err)
		}
		dc.Credentials = e.creds.Load()
		dc.scheduleReboot(e.cfg.Timing.ResetReboot, "factory reset", true)
	}
}

func (e *Engine) serviceReboot(dc *DeviceContext) {
	r := dc.reboot
	if r == nil || r.done || dc.Now.Before(r.at) {
		return
	}
	r.done = true
	e.logFn("engine: rebooting (%s)", r.reason)
	if e.broker != nil {
		e.broker.Close()
	}
	if err := e.rebooter.Reboot(); err != nil {
		e.logFn("engine: reboot: %v", err)
	}
}

func (e *Engine) render(dc *DeviceContext) {
	local := dc.LocalTime()
	minute := local.Hour()*60 + local.Minute()
	if dc.ClockMode && minute != dc.lastMinute {
		dc.Redraw = true
	}
	if !dc.Redraw {
		return
	}
	dc.Redraw = false
	dc.lastMinute = minute
	e.display.Render(Frame{
		Clock:      dc.ClockMode,
		Local:      local,
		Sample:     dc.Sample,
		Brightness: dc.Settings.Brightness,
	})
}

func (e *Engine) shutdown() {
	if e.broker != nil {
		e.broker.Close()
	}
	e.drainRequests()
	for _, req := range e.backlog {
		req.done <- ErrStopped
	}
	e.backlog = nil
}
