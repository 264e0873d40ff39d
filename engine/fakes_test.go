package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"aionclock/button"
	"aionclock/config"
	"aionclock/device"
	"aionclock/messaging"
	"aionclock/store"
	"aionclock/telemetry"
	"aionclock/wifi"
)

const testSerial = "a1b2c3d4e5f6"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeWiFi struct {
	mu        sync.Mutex
	clock     *fakeClock
	apSSID    string
	apPass    string
	apErr     error
	joined    []string
	joinErr   error
	upAfter   int // Connected polls before the link comes up; <0 never
	polls     int
	pollCost  time.Duration
	networks  []wifi.Network
	scanCalls int
}

func (w *fakeWiFi) StartAccessPoint(_ context.Context, ssid, password string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.apSSID, w.apPass = ssid, password
	return w.apErr
}

func (w *fakeWiFi) AccessPointIP(context.Context) (string, error) { return "10.42.0.1", nil }

func (w *fakeWiFi) Scan(context.Context) ([]wifi.Network, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scanCalls++
	return w.networks, nil
}

func (w *fakeWiFi) Join(_ context.Context, ssid, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.joined = append(w.joined, ssid)
	return w.joinErr
}

func (w *fakeWiFi) Connected(context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.polls++
	if w.pollCost > 0 && w.clock != nil {
		w.clock.Advance(w.pollCost)
	}
	return w.upAfter >= 0 && w.polls > w.upAfter, nil
}

func (w *fakeWiFi) LocalIP(context.Context) (string, error) { return "192.168.1.50", nil }

func (w *fakeWiFi) MAC() (string, error) { return "B8:27:EB:00:11:22", nil }

type fakeRegistrar struct {
	mu       sync.Mutex
	statuses []int // consumed in order; the last one repeats
	err      error
	sent     []messaging.Announcement
}

func (r *fakeRegistrar) Register(_ context.Context, a messaging.Announcement) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, a)
	if r.err != nil {
		return 0, r.err
	}
	status := r.statuses[0]
	if len(r.statuses) > 1 {
		r.statuses = r.statuses[1:]
	}
	return status, nil
}

type fakeBroker struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	connects   []messaging.Credentials
	published  map[string]string
	closed     int
}

func (b *fakeBroker) Connect(creds messaging.Credentials) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects = append(b.connects, creds)
	if b.connectErr != nil {
		return b.connectErr
	}
	b.connected = true
	return nil
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return messaging.ErrNotConnected
	}
	if b.published == nil {
		b.published = map[string]string{}
	}
	b.published[topic] = string(payload)
	return nil
}

func (b *fakeBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	b.connected = false
}

type fakeButton struct {
	mu     sync.Mutex
	skip   int // polls answered with None before events are delivered
	events []button.Event
}

func (b *fakeButton) Push(ev button.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

func (b *fakeButton) Poll(time.Time) button.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.skip > 0 {
		b.skip--
		return button.None
	}
	if len(b.events) == 0 {
		return button.None
	}
	ev := b.events[0]
	b.events = b.events[1:]
	return ev
}

type fakeRebooter struct {
	mu    sync.Mutex
	count int
}

func (r *fakeRebooter) Reboot() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	return nil
}

func (r *fakeRebooter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

type fakeDisplay struct {
	mu       sync.Mutex
	statuses []string
	frames   []Frame
}

func (d *fakeDisplay) Status(lines ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(lines) > 0 {
		d.statuses = append(d.statuses, lines[0])
	}
}

func (d *fakeDisplay) Render(f Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, f)
}

type stubSensor struct {
	r   telemetry.Reading
	err error
}

func (s stubSensor) Read() (telemetry.Reading, error) { return s.r, s.err }

type harness struct {
	e         *Engine
	cfg       *config.Config
	clock     *fakeClock
	creds     *store.CredentialStore
	wifi      *fakeWiFi
	registrar *fakeRegistrar
	broker    *fakeBroker
	button    *fakeButton
	rebooter  *fakeRebooter
	display   *fakeDisplay
	states    []State
}

type harnessOpt func(*harness, *Config)

func withPolicy(p RegistrationPolicy) harnessOpt {
	return func(_ *harness, c *Config) { c.Policy = p }
}

func withSensorError() harnessOpt {
	return func(_ *harness, c *Config) { c.Sensor = stubSensor{err: errors.New("i2c nack")} }
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Storage.CredentialsPath = filepath.Join(dir, "eeprom.bin")
	cfg.Storage.SettingsPath = filepath.Join(dir, "config.json")
	cfg.Timing.Tick = time.Millisecond
	cfg.Timing.JoinPoll = time.Millisecond

	creds, err := store.OpenCredentialStore(cfg.Storage.CredentialsPath)
	if err != nil {
		t.Fatalf("open credentials: %v", err)
	}
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	h := &harness{
		cfg:       cfg,
		clock:     clock,
		creds:     creds,
		wifi:      &fakeWiFi{clock: clock},
		registrar: &fakeRegistrar{statuses: []int{200}},
		broker:    &fakeBroker{},
		button:    &fakeButton{},
		rebooter:  &fakeRebooter{},
		display:   &fakeDisplay{},
	}
	c := Config{
		AppConfig: cfg,
		Identity: device.Identity{
			Name: "Aion 2", Type: "Sensor Clock", Version: "1.0", Serial: testSerial,
		},
		Credentials: creds,
		WiFi:        h.wifi,
		Registrar:   h.registrar,
		Broker:      h.broker,
		Sensor:      stubSensor{r: telemetry.Reading{Temperature: 21.5, Humidity: 40, Pressure: 1008.2, Altitude: 42.1}},
		Button:      h.button,
		Rebooter:    h.rebooter,
		Display:     h.display,
		Clock:       clock.Now,
	}
	for _, o := range opts {
		o(h, &c)
	}
	h.e = New(c)
	h.e.Events.SubscribeTypes(func(evt Event) {
		h.states = append(h.states, evt.Payload.(StateChangedEvent).To)
	}, EventStateChanged)
	return h
}

func (h *harness) provision(t *testing.T) {
	t.Helper()
	if err := h.creds.Save("HomeNet", "hunter22", "uid-42"); err != nil {
		t.Fatalf("save credentials: %v", err)
	}
}

func (h *harness) writeSettings(t *testing.T, s store.Settings) {
	t.Helper()
	if err := store.SaveSettings(h.cfg.Storage.SettingsPath, s); err != nil {
		t.Fatalf("save settings: %v", err)
	}
}

// bootToClient provisions, boots and runs the first step, which registers.
func (h *harness) bootToClient(t *testing.T) {
	t.Helper()
	h.provision(t)
	h.e.boot(context.Background())
	h.e.step(context.Background())
	if got := h.e.State(); got != StateClient {
		t.Fatalf("state = %s, want CLIENT", got)
	}
}
