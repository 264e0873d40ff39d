// Package wifi drives the wireless interface through NetworkManager's nmcli.
package wifi

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// Encryption types reported in scan results.
const (
	SecWPA  = 2
	SecWPA2 = 4
	SecWEP  = 5
	SecOpen = 7
	SecAuto = 8
)

// Network is one scan result.
type Network struct {
	SSID     string `json:"ssid"`
	Security int    `json:"sec"`
	Strength int    `json:"str"` // dBm
}

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && len(ee.Stderr) > 0 {
			return out, fmt.Errorf("%s %s: %w: %s", name, args[0], err, strings.TrimSpace(string(ee.Stderr)))
		}
		return out, fmt.Errorf("%s %s: %w", name, args[0], err)
	}
	return out, nil
}

// NMCLI manages one wireless interface.
type NMCLI struct {
	iface string
	run   Runner
}

// New returns an adapter for iface using the system nmcli binary.
func New(iface string) *NMCLI {
	return &NMCLI{iface: iface, run: execRunner}
}

// NewWithRunner is New with an injected command runner.
func NewWithRunner(iface string, run Runner) *NMCLI {
	return &NMCLI{iface: iface, run: run}
}

// StartAccessPoint brings up a WPA2 hotspot on the interface.
func (n *NMCLI) StartAccessPoint(ctx context.Context, ssid, password string) error {
	_, err := n.run(ctx, "nmcli", "dev", "wifi", "hotspot",
		"ifname", n.iface, "ssid", ssid, "password", password)
	if err != nil {
		return fmt.Errorf("start access point: %w", err)
	}
	return nil
}

// AccessPointIP returns the interface address while it serves as hotspot.
func (n *NMCLI) AccessPointIP(ctx context.Context) (string, error) {
	return n.LocalIP(ctx)
}

// Scan rescans and lists visible networks, strongest first as nmcli orders them.
// Hidden networks and duplicate SSIDs are skipped.
func (n *NMCLI) Scan(ctx context.Context) ([]Network, error) {
	out, err := n.run(ctx, "nmcli", "-t", "-f", "SSID,SECURITY,SIGNAL",
		"dev", "wifi", "list", "ifname", n.iface, "--rescan", "yes")
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return parseScan(string(out)), nil
}

func parseScan(out string) []Network {
	networks := []Network{}
	seen := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(strings.TrimRight(line, "\r"))
		if len(fields) != 3 || fields[0] == "" || seen[fields[0]] {
			continue
		}
		quality, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		seen[fields[0]] = true
		networks = append(networks, Network{
			SSID:     fields[0],
			Security: securityType(fields[1]),
			Strength: qualityToDBm(quality),
		})
	}
	return networks
}

// splitTerse splits one line of nmcli terse output, honouring \: and \\ escapes.
func splitTerse(line string) []string {
	if line == "" {
		return nil
	}
	var fields []string
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case c == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, cur.String())
}

func securityType(s string) int {
	s = strings.TrimSpace(s)
	if s == "" || s == "--" {
		return SecOpen
	}
	if strings.Contains(s, "WEP") {
		return SecWEP
	}
	wpa1 := false
	wpa2 := false
	for _, tok := range strings.Fields(s) {
		switch {
		case tok == "WPA1" || tok == "WPA":
			wpa1 = true
		case strings.HasPrefix(tok, "WPA2") || strings.HasPrefix(tok, "WPA3"):
			wpa2 = true
		}
	}
	switch {
	case wpa1 && wpa2:
		return SecAuto
	case wpa1:
		return SecWPA
	case wpa2:
		return SecWPA2
	}
	return SecAuto
}

// qualityToDBm maps NetworkManager's 0-100 signal quality onto RSSI.
func qualityToDBm(q int) int {
	if q < 0 {
		q = 0
	}
	if q > 100 {
		q = 100
	}
	return q/2 - 100
}

// Join starts connecting to ssid without waiting for the link.
// Poll Connected for the outcome.
func (n *NMCLI) Join(ctx context.Context, ssid, password string) error {
	args := []string{"--wait", "0", "dev", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	args = append(args, "ifname", n.iface)
	if _, err := n.run(ctx, "nmcli", args...); err != nil {
		return fmt.Errorf("join %q: %w", ssid, err)
	}
	return nil
}

// Connected reports whether the interface has an active connection.
func (n *NMCLI) Connected(ctx context.Context) (bool, error) {
	out, err := n.run(ctx, "nmcli", "-t", "-g", "GENERAL.STATE", "dev", "show", n.iface)
	if err != nil {
		return false, fmt.Errorf("link state: %w", err)
	}
	return strings.HasPrefix(strings.TrimSpace(string(out)), "100"), nil
}

// LocalIP returns the interface's IPv4 address.
func (n *NMCLI) LocalIP(ctx context.Context) (string, error) {
	out, err := n.run(ctx, "nmcli", "-t", "-g", "IP4.ADDRESS", "dev", "show", n.iface)
	if err != nil {
		return "", fmt.Errorf("local address: %w", err)
	}
	return parseAddress(string(out))
}

func parseAddress(out string) (string, error) {
	first := strings.TrimSpace(strings.SplitN(out, "|", 2)[0])
	if i := strings.IndexByte(first, '/'); i >= 0 {
		first = first[:i]
	}
	if first == "" {
		return "", errors.New("no IPv4 address")
	}
	return first, nil
}

// MAC returns the interface hardware address.
func (n *NMCLI) MAC() (string, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return "", fmt.Errorf("list interfaces: %w", err)
	}
	for _, i := range ifaces {
		if i.Name == n.iface {
			return strings.ToUpper(i.HardwareAddr), nil
		}
	}
	return "", fmt.Errorf("interface %s not found", n.iface)
}
