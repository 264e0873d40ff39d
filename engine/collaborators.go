package engine

import (
	"context"
	"strings"
	"time"

	"aionclock/button"
	"aionclock/messaging"
	"aionclock/telemetry"
	"aionclock/wifi"
)

// WiFi is the wireless interface: access point for provisioning, station
// mode for normal operation.
type WiFi interface {
	StartAccessPoint(ctx context.Context, ssid, password string) error
	AccessPointIP(ctx context.Context) (string, error)
	Scan(ctx context.Context) ([]wifi.Network, error)
	Join(ctx context.Context, ssid, password string) error
	Connected(ctx context.Context) (bool, error)
	LocalIP(ctx context.Context) (string, error)
	MAC() (string, error)
}

// Registrar announces the device to the cloud.
type Registrar interface {
	Register(ctx context.Context, a messaging.Announcement) (int, error)
}

// Broker is the telemetry broker connection.
type Broker interface {
	telemetry.Publisher
	Connect(creds messaging.Credentials) error
	Close()
}

// Button yields debounced gestures, at most one per poll.
type Button interface {
	Poll(now time.Time) button.Event
}

// Rebooter restarts the device.
type Rebooter interface {
	Reboot() error
}

// Frame is what the display shows in normal operation.
type Frame struct {
	Clock      bool // clock view, otherwise the values view
	Local      time.Time
	Sample     telemetry.Sample
	Brightness int
}

// Display receives frames and short status messages.
type Display interface {
	Status(lines ...string)
	Render(f Frame)
}

// logDisplay stands in for a panel by writing to the log.
type logDisplay struct {
	logFn   LogFunc
	debugFn LogFunc
}

func (d logDisplay) Status(lines ...string) {
	d.logFn("display: %s", strings.Join(lines, " / "))
}

func (d logDisplay) Render(f Frame) {
	if f.Clock {
		d.debugFn("display: clock %s brightness=%d", f.Local.Format("15:04"), f.Brightness)
		return
	}
	d.debugFn("display: values temp=%.1f humidity=%.0f pressure=%.0f brightness=%d",
		f.Sample.Temperature, f.Sample.Humidity, f.Sample.Pressure, f.Brightness)
}

type noButton struct{}

func (noButton) Poll(time.Time) button.Event { return button.None }
