package device

import (
	"fmt"
	"log"
	"os/exec"
)

// SystemRebooter restarts the host by running a command.
type SystemRebooter struct {
	Command []string
}

// NewSystemRebooter reboots through systemd.
func NewSystemRebooter() *SystemRebooter {
	return &SystemRebooter{Command: []string{"systemctl", "reboot"}}
}

// Reboot runs the reboot command.
func (r *SystemRebooter) Reboot() error {
	if len(r.Command) == 0 {
		return fmt.Errorf("reboot: no command configured")
	}
	log.Printf("device: rebooting via %v", r.Command)
	if out, err := exec.Command(r.Command[0], r.Command[1:]...).CombinedOutput(); err != nil {
		return fmt.Errorf("reboot: %v: %w (%s)", r.Command, err, out)
	}
	return nil
}
