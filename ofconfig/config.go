// Package ofconfig is the system/identity configuration layer,
// adapted from the teacher's manager.Config split (manager/config.go):
// a YAML system config plus a JSON identity store, each loaded and
// saved independently and atomically.
package ofconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// SystemConfig is the operator-facing, hand-editable side of
// configuration: where the reports service lives, how big a fetch
// window is, and where the status web UI listens.
type SystemConfig struct {
	ReportsEndpoint  string        `yaml:"reports_endpoint"`
	WindowSize       int           `yaml:"window_size"`
	WebHost          string        `yaml:"web_host"`
	WebPort          uint16        `yaml:"web_port"`
	AdvertiseAdapter string        `yaml:"advertise_adapter"`
	AdvertiseDwell   time.Duration `yaml:"advertise_dwell"`
}

// DefaultSystemConfig returns the values a fresh install runs with
// before an operator edits config.yaml.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		WindowSize:       256,
		WebHost:          "127.0.0.1",
		WebPort:          8080,
		AdvertiseAdapter: "hci0",
		AdvertiseDwell:   500 * time.Millisecond,
	}
}

var systemLock sync.RWMutex

// LoadSystemConfig reads path as YAML, returning DefaultSystemConfig
// values for any file that does not yet exist.
func LoadSystemConfig(path string) (SystemConfig, error) {
	systemLock.RLock()
	defer systemLock.RUnlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultSystemConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return SystemConfig{}, fmt.Errorf("ofconfig: read system config: %w", err)
	}

	cfg := DefaultSystemConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SystemConfig{}, fmt.Errorf("ofconfig: parse system config: %w", err)
	}
	return cfg, nil
}

// SaveSystemConfig writes cfg to path as YAML, via a temp-file-then-
// rename so a crash mid-write never leaves a truncated config behind.
func SaveSystemConfig(path string, cfg SystemConfig) error {
	systemLock.Lock()
	defer systemLock.Unlock()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("ofconfig: encode system config: %w", err)
	}
	return writeAtomic(path, data, 0o644)
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ofconfig: ensure dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("ofconfig: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("ofconfig: rename temp file: %w", err)
	}
	return nil
}
