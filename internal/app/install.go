package app

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const (
	servicePath = "/etc/systemd/system/rotavault.service"
	timerPath   = "/etc/systemd/system/rotavault.timer"
	timerLink   = "/etc/systemd/system/timers.target.wants/rotavault.timer"
	configDir   = "/etc/rotavault"
)

const serviceUnit = `[Unit]
Description=rotavault scheduled backup run
After=multi-user.target

[Service]
Type=oneshot
ExecStart=%s run
`

const timerUnit = `[Unit]
Description=rotavault schedule evaluation

[Timer]
OnCalendar=*-*-* *:*:00
Persistent=true

[Install]
WantedBy=timers.target
`

const sampleSources = `# rotavault sources
# Destination names are global; tier order is rotation precedence,
# finest granularity first. Remote methods (scp, smb) allow one tier.
#
# sources:
#   - path: /srv/data
#     destinations:
#       - name: nas
#         method: local
#         path: /backups/nas
#         tiers:
#           - name: hourly
#             schedule: "0 * * * *"
#             keep: 24
#           - name: daily
#             schedule: "0 3 * * *"
#             keep: 7
sources: []
`

// Install sets up the config skeleton, the systemd service and the
// minutely timer that drives schedule evaluation. Root only: every
// artifact lives under /etc.
func Install() error {
	if os.Getuid() != 0 {
		return fmt.Errorf("installation must be done with root permissions")
	}

	if _, err := os.Stat(servicePath); err == nil {
		return fmt.Errorf("already installed, run uninstall first")
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	sourcesPath := filepath.Join(configDir, "sources.yaml")
	if _, err := os.Stat(sourcesPath); os.IsNotExist(err) {
		if err := os.WriteFile(sourcesPath, []byte(sampleSources), 0644); err != nil {
			return fmt.Errorf("failed to write sample sources file: %w", err)
		}
	}

	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve own binary path: %w", err)
	}

	if err := os.WriteFile(servicePath, []byte(fmt.Sprintf(serviceUnit, binary)), 0644); err != nil {
		return fmt.Errorf("failed to write service unit: %w", err)
	}
	if err := os.WriteFile(timerPath, []byte(timerUnit), 0644); err != nil {
		return fmt.Errorf("failed to write timer unit: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(timerLink), 0755); err != nil {
		return fmt.Errorf("failed to create timer wants directory: %w", err)
	}
	if err := os.Symlink(timerPath, timerLink); err != nil && !os.IsExist(err) {
		return fmt.Errorf("failed to enable timer: %w", err)
	}

	if err := exec.Command("systemctl", "daemon-reload").Run(); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	return nil
}

// Uninstall removes the systemd units and the config skeleton. With
// purge set, the data directory with its state and history goes too;
// backups themselves are never touched.
func Uninstall(purge bool) error {
	if os.Getuid() != 0 {
		return fmt.Errorf("uninstallation must be done with root permissions")
	}

	for _, path := range []string{timerLink, timerPath, servicePath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}

	if purge {
		if err := os.RemoveAll(configDir); err != nil {
			return fmt.Errorf("failed to remove config directory: %w", err)
		}
		if err := os.RemoveAll(DefaultDataDir()); err != nil {
			return fmt.Errorf("failed to remove data directory: %w", err)
		}
	}

	if err := exec.Command("systemctl", "daemon-reload").Run(); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	return nil
}
