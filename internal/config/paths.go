package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// GetBridgeDir returns the dlbridge state directory (~/.dlbridge).
// Override with DLBRIDGE_HOME for tests and sandboxed setups.
func GetBridgeDir() string {
	if dir := os.Getenv("DLBRIDGE_HOME"); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".dlbridge"
	}
	return filepath.Join(homeDir, ".dlbridge")
}

// GetRuntimeDir returns the directory for ephemeral runtime files
// (cached port, agent lock).
func GetRuntimeDir() string {
	return filepath.Join(GetBridgeDir(), "run")
}

func cachedPortPath() string {
	return filepath.Join(GetRuntimeDir(), "port")
}

// LoadCachedPort reads the last known server port. Returns 0 when no port is
// cached. The value is a hint only; callers must re-validate with a live probe.
func LoadCachedPort() int {
	data, err := os.ReadFile(cachedPortPath())
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || port <= 0 || port > 65535 {
		return 0
	}
	return port
}

// SaveCachedPort persists the discovered server port for the next startup.
func SaveCachedPort(port int) error {
	if err := os.MkdirAll(GetRuntimeDir(), 0755); err != nil {
		return err
	}
	return os.WriteFile(cachedPortPath(), []byte(strconv.Itoa(port)), 0644)
}

// ClearCachedPort invalidates the cached port after a failed validation probe.
func ClearCachedPort() error {
	err := os.Remove(cachedPortPath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
