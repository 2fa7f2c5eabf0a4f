package ofconfig

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadSystemConfigDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := LoadSystemConfig(path)
	require.NoError(t, err)
	require.Equal(t, DefaultSystemConfig(), cfg)
}

func TestSaveThenLoadSystemConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := SystemConfig{
		ReportsEndpoint:  "https://reports.example/fetch",
		WindowSize:       128,
		WebHost:          "0.0.0.0",
		WebPort:          9090,
		AdvertiseAdapter: "hci1",
		AdvertiseDwell:   750 * time.Millisecond,
	}

	require.NoError(t, SaveSystemConfig(path, cfg))
	loaded, err := LoadSystemConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}
