package www

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"aionclock/config"
	"aionclock/device"
	"aionclock/engine"
	"aionclock/messaging"
	"aionclock/store"
	"aionclock/telemetry"
	"aionclock/wifi"
)

const serial = "00c0ffee"

type stubWiFi struct{}

func (stubWiFi) StartAccessPoint(context.Context, string, string) error { return nil }
func (stubWiFi) AccessPointIP(context.Context) (string, error) { return "10.42.0.1", nil }
func (stubWiFi) Scan(context.Context) ([]wifi.Network, error) {
	return []wifi.Network{{SSID: "HomeNet", Security: wifi.SecWPA2, Strength: -48}}, nil
}
func (stubWiFi) Join(context.Context, string, string) error { return nil }
func (stubWiFi) Connected(context.Context) (bool, error) { return true, nil }
func (stubWiFi) LocalIP(context.Context) (string, error) { return "192.168.1.9", nil }
func (stubWiFi) MAC() (string, error) { return "B8:27:EB:01:02:03", nil }

type okRegistrar struct{}

func (okRegistrar) Register(context.Context, messaging.Announcement) (int, error) {
	return http.StatusOK, nil
}

type stubSensor struct{}

func (stubSensor) Read() (telemetry.Reading, error) {
	return telemetry.Reading{Temperature: 22.25, Humidity: 45.5, Pressure: 1001.75, Altitude: 96.5}, nil
}

type countingRebooter struct {
	mu sync.Mutex
	n  int
}

func (r *countingRebooter) Reboot() error {
	r.mu.Lock()
	r.n++
	r.mu.Unlock()
	return nil
}

func (r *countingRebooter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

type testDevice struct {
	srv      *httptest.Server
	cfg      *config.Config
	creds    *store.CredentialStore
	rebooter *countingRebooter
}

func startDevice(t *testing.T, provisioned bool, settings *store.Settings) *testDevice {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Storage.CredentialsPath = filepath.Join(dir, "eeprom.bin")
	cfg.Storage.SettingsPath = filepath.Join(dir, "config.json")
	cfg.Timing.Tick = time.Millisecond
	cfg.Timing.JoinPoll = time.Millisecond
	cfg.Timing.ConnectReboot = 20 * time.Millisecond
	cfg.Timing.ResetReboot = 10 * time.Millisecond

	creds, err := store.OpenCredentialStore(cfg.Storage.CredentialsPath)
	if err != nil {
		t.Fatal(err)
	}
	if provisioned {
		if err := creds.Save("HomeNet", "hunter22", "uid-1"); err != nil {
			t.Fatal(err)
		}
	}
	if settings != nil {
		if err := store.SaveSettings(cfg.Storage.SettingsPath, *settings); err != nil {
			t.Fatal(err)
		}
	}

	d := &testDevice{cfg: cfg, creds: creds, rebooter: &countingRebooter{}}
	eng := engine.New(engine.Config{
		AppConfig:   cfg,
		Identity:    device.Identity{Name: "Aion 2", Type: "Sensor Clock", Version: "1.0", Serial: serial},
		Credentials: creds,
		WiFi:        stubWiFi{},
		Registrar:   okRegistrar{},
		Sensor:      stubSensor{},
		Rebooter:    d.rebooter,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	want := engine.StateServer
	if provisioned {
		want = engine.StateClient
	}
	deadline := time.Now().Add(5 * time.Second)
	for eng.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("engine state = %s, want %s", eng.State(), want)
		}
		time.Sleep(time.Millisecond)
	}

	d.srv = httptest.NewServer(NewRouter(eng))
	t.Cleanup(d.srv.Close)
	return d
}

type result struct {
	Result string          `json:"result"`
	Data   json.RawMessage `json:"data"`
}

func (d *testDevice) do(t *testing.T, method, path string, form url.Values) (int, result) {
	t.Helper()
	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequest(method, d.srv.URL+path+"?"+form.Encode(), nil)
	} else {
		req, err = http.NewRequest(method, d.srv.URL+path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var res result
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode, res
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func keyed(kv ...string) url.Values {
	v := url.Values{"key": {serial}}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}
