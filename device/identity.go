package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"
)

// Identity describes the device. Everything except MAC is fixed at boot; MAC
// stays empty until the network interface is up.
type Identity struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Serial  string `json:"serial"`
	MAC     string `json:"mac_address"`
}

// HardwareSerial derives the device serial from the host's hardware ID, which
// is stable for the lifetime of the installation.
func HardwareSerial() (string, error) {
	id, err := host.HostID()
	if err != nil {
		return "", fmt.Errorf("read host id: %w", err)
	}
	return NormalizeSerial(id)
}

// NormalizeSerial turns a host ID into a serial usable as an MQTT topic segment
// and HTTP form value: UUIDs become 32 lower-case hex digits, anything else is
// kept if it is plain alphanumeric.
func NormalizeSerial(id string) (string, error) {
	id = strings.TrimSpace(id)
	if u, err := uuid.Parse(id); err == nil {
		return strings.ReplaceAll(u.String(), "-", ""), nil
	}
	if id == "" {
		return "", fmt.Errorf("empty host id")
	}
	for _, r := range id {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return "", fmt.Errorf("host id %q is not usable as a serial", id)
		}
	}
	return id, nil
}

// NewBootID returns a random identifier for this boot, used to group journal
// entries.
func NewBootID() string {
	return uuid.NewString()
}
