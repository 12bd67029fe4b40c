// Package paths resolves per-user locations for memsift files.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "memsift"

// ConfigDir returns XDG_CONFIG_HOME/memsift or the platform fallback.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("AppData"); appData != "" {
			return filepath.Join(appData, "Memsift")
		}
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName)
}

// ConfigFile is the config file read when --config is not given. The
// system-wide file is preferred when it exists.
func ConfigFile() string {
	if _, err := os.Stat(SystemConfigFile); err == nil {
		return SystemConfigFile
	}
	return filepath.Join(ConfigDir(), "config.yaml")
}

// SystemConfigFile is the host-wide config location.
var SystemConfigFile = "/etc/memsift/config.yaml"
