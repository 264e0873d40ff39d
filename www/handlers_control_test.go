package www

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"aionclock/store"
)

func TestAuthenticatedEndpointsRejectWrongKey(t *testing.T) {
	before := store.Settings{TimeOffset: 60, Brightness: 4, UpdateInterval: 30000, APIKey: "k", APIToken: "t"}
	d := startDevice(t, true, &before)
	cases := []struct {
		method, path string
		form         url.Values
	}{
		{http.MethodPost, "/xhr/ping", nil},
		{http.MethodPost, "/xhr/reset", nil},
		{http.MethodGet, "/xhr/rpc", url.Values{"cmd": {"CFG"}}},
		{http.MethodGet, "/xhr/rpc", url.Values{"cmd": {"MODE"}}},
		{http.MethodGet, "/xhr/rpc", url.Values{"cmd": {"VALUES"}}},
		{http.MethodPost, "/xhr/rpc", url.Values{"cmd": {"CFG"}, "brightness": {"1"}}},
		{http.MethodPost, "/xhr/rpc", url.Values{"cmd": {"MODE"}}},
	}
	for _, key := range []string{"", "nope", serial + "0", "00C0FFEE"} {
		for _, c := range cases {
			form := url.Values{}
			for k, v := range c.form {
				form[k] = v
			}
			if key != "" {
				form.Set("key", key)
			}
			if status, _ := d.do(t, c.method, c.path, form); status != http.StatusForbidden {
				t.Errorf("%s %s key=%q: status %d, want 403", c.method, c.path, key, status)
			}
		}
	}
	time.Sleep(5 * d.cfg.Timing.ResetReboot)
	if d.rebooter.count() != 0 {
		t.Error("unauthenticated reset rebooted")
	}
	if got := store.LoadSettings(d.cfg.Storage.SettingsPath); got != before {
		t.Errorf("settings changed: %+v", got)
	}
}

func TestControlMethods(t *testing.T) {
	d := startDevice(t, true, nil)
	for _, c := range []struct{ method, path string }{
		{http.MethodGet, "/xhr/ping"},
		{http.MethodGet, "/xhr/reset"},
		{http.MethodPut, "/xhr/rpc"},
	} {
		if status, _ := d.do(t, c.method, c.path, keyed()); status != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want 405", c.method, c.path, status)
		}
	}
}

func TestControlInactiveInServer(t *testing.T) {
	d := startDevice(t, false, nil)
	if status, _ := d.do(t, http.MethodPost, "/xhr/ping", keyed()); status != http.StatusNotFound {
		t.Errorf("ping in SERVER = %d, want 404", status)
	}
	if status, _ := d.do(t, http.MethodGet, "/xhr/rpc", keyed("cmd", "VALUES")); status != http.StatusNotFound {
		t.Errorf("rpc in SERVER = %d, want 404", status)
	}
}

func TestPing(t *testing.T) {
	d := startDevice(t, true, nil)
	status, res := d.do(t, http.MethodPost, "/xhr/ping", keyed())
	if status != http.StatusOK || res.Result != "success" {
		t.Errorf("status=%d result=%q", status, res.Result)
	}
}

func TestReset_RebootsWithoutClearingCredentials(t *testing.T) {
	d := startDevice(t, true, nil)
	status, res := d.do(t, http.MethodPost, "/xhr/reset", keyed())
	if status != http.StatusOK || res.Result != "success" {
		t.Fatalf("status=%d result=%q", status, res.Result)
	}
	waitFor(t, "reboot", func() bool { return d.rebooter.count() == 1 })
	if !d.creds.Load().Provisioned() {
		t.Error("reset cleared credentials")
	}
}

func TestRPCGetMode(t *testing.T) {
	d := startDevice(t, true, nil)
	_, res := d.do(t, http.MethodGet, "/xhr/rpc", keyed("cmd", "MODE"))
	if res.Result != "success" || string(res.Data) != `{"mode":0}` {
		t.Errorf("result=%q data=%s", res.Result, res.Data)
	}
}

func TestRPCGetValues(t *testing.T) {
	d := startDevice(t, true, nil)
	_, res := d.do(t, http.MethodGet, "/xhr/rpc", keyed("cmd", "VALUES"))
	if res.Result != "success" {
		t.Fatalf("result=%q", res.Result)
	}
	var v map[string]float64
	if err := json.Unmarshal(res.Data, &v); err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{"temp": 22.25, "pressure": 1001.75, "altitude": 96.5, "humidity": 45.5}
	for k, w := range want {
		if v[k] != w {
			t.Errorf("%s = %v, want %v", k, v[k], w)
		}
	}
	if len(v) != len(want) {
		t.Errorf("unexpected fields: %v", v)
	}
}

func TestRPCGetConfigReadsDocument(t *testing.T) {
	d := startDevice(t, true, nil)
	if _, res := d.do(t, http.MethodGet, "/xhr/rpc", keyed("cmd", "CFG")); res.Result != "error" {
		t.Errorf("missing document: result=%q", res.Result)
	}

	s := store.Settings{TimeOffset: 7200, Brightness: 2, UpdateInterval: 15000, APIKey: "a", APIToken: "b"}
	if err := store.SaveSettings(d.cfg.Storage.SettingsPath, s); err != nil {
		t.Fatal(err)
	}
	_, res := d.do(t, http.MethodGet, "/xhr/rpc", keyed("cmd", "CFG"))
	if res.Result != "success" {
		t.Fatalf("result=%q", res.Result)
	}
	var got store.Settings
	if err := json.Unmarshal(res.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got != s {
		t.Errorf("document = %+v, want %+v", got, s)
	}
}

func TestRPCPostConfig_PartialUpdate(t *testing.T) {
	before := store.Settings{TimeOffset: 3600, Brightness: 8, UpdateInterval: 60000, APIKey: "key", APIToken: "tok"}
	d := startDevice(t, true, &before)

	status, res := d.do(t, http.MethodPost, "/xhr/rpc", keyed("cmd", "CFG", "brightness", "15", "apiKey", ""))
	if status != http.StatusOK || res.Result != "success" {
		t.Fatalf("status=%d result=%q", status, res.Result)
	}
	want := before
	want.Brightness = 15
	if got := store.LoadSettings(d.cfg.Storage.SettingsPath); got != want {
		t.Errorf("persisted = %+v, want %+v", got, want)
	}
}

func TestRPCPostConfig_BadIntegerChangesNothing(t *testing.T) {
	before := store.DefaultSettings()
	d := startDevice(t, true, &before)
	_, res := d.do(t, http.MethodPost, "/xhr/rpc", keyed("cmd", "CFG", "brightness", "9", "updateInterval", "soon"))
	if res.Result != "error" {
		t.Errorf("result=%q, want error", res.Result)
	}
	if got := store.LoadSettings(d.cfg.Storage.SettingsPath); got != before {
		t.Errorf("settings changed: %+v", got)
	}
}

func TestRPCPostConfig_OutOfRangeAccepted(t *testing.T) {
	d := startDevice(t, true, nil)
	_, res := d.do(t, http.MethodPost, "/xhr/rpc", keyed("cmd", "CFG", "brightness", "-3", "timeOffset", "-18000"))
	if res.Result != "success" {
		t.Fatalf("result=%q", res.Result)
	}
	got := store.LoadSettings(d.cfg.Storage.SettingsPath)
	if got.Brightness != -3 || got.TimeOffset != -18000 || got.UpdateInterval != 60000 {
		t.Errorf("persisted = %+v", got)
	}
}

func TestRPCPostMode(t *testing.T) {
	d := startDevice(t, true, nil)
	if _, res := d.do(t, http.MethodPost, "/xhr/rpc", keyed("cmd", "MODE")); res.Result != "success" {
		t.Errorf("result=%q", res.Result)
	}
}

func TestRPCUnknownCommand(t *testing.T) {
	d := startDevice(t, true, nil)
	for _, m := range []string{http.MethodGet, http.MethodPost} {
		_, res := d.do(t, m, "/xhr/rpc", keyed("cmd", "REBOOT"))
		if res.Result != "error" || len(res.Data) != 0 {
			t.Errorf("%s: result=%q data=%s", m, res.Result, res.Data)
		}
	}
	if _, res := d.do(t, http.MethodGet, "/xhr/rpc", keyed()); res.Result != "error" {
		t.Errorf("missing cmd: result=%q", res.Result)
	}
}
