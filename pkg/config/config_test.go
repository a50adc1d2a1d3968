package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
  "devices": [
    {
      "id": "plc-1",
      "driver": "sim",
      "interval": "500ms",
      "tags": [
        {"name": "running", "address": "1"},
        {"name": "faults", "address": "2"},
        {"name": "total", "address": "3"},
        {"name": "good", "address": "4"}
      ]
    }
  ],
  "equipment": [
    {
      "code": "BAG1",
      "line_id": "L1",
      "device_id": "plc-1",
      "tags": {"running": "running", "fault_word": "faults", "total_count": "total", "good_count": "good"},
      "fault_bits": [{"bit": 3, "code": "E-STOP", "description": "Emergency stop", "priority": "critical"}],
      "ideal_cycle_time": "2s"
    }
  ],
  "escalation": {
    "rules": [
      {"priority": "critical", "level": 1, "acknowledgment_timeout": "15m", "resolution_timeout": "1h",
       "recipients": ["supervisor"], "channels": ["push"]},
      {"priority": "critical", "level": 2, "acknowledgment_timeout": "30m", "resolution_timeout": "2h",
       "recipients": ["manager"], "channels": ["sms", "voice"]}
    ]
  }
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadAndValidate_AppliesDefaults(t *testing.T) {
	var cfg Config

	require.NoError(t, LoadAndValidate(writeConfig(t, sampleConfig), &cfg))

	assert.Equal(t, defaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 500*time.Millisecond, time.Duration(cfg.Devices[0].Interval))
	assert.Equal(t, defaultFailureThreshold, cfg.Devices[0].FailureThreshold)
	assert.Equal(t, defaultAlertCycles, cfg.Equipment[0].DowntimeAlertCycles)
	assert.Equal(t, models.PriorityMedium, cfg.Equipment[0].DowntimeAlertPriority)
	assert.Equal(t, models.AndonFault, cfg.Equipment[0].FaultBits[0].Type)
	assert.Equal(t, defaultSweepInterval, time.Duration(cfg.Escalation.SweepInterval))
	assert.Equal(t, 2*time.Second, time.Duration(cfg.Equipment[0].IdealCycleTime))
}

func TestLoadAndValidate_EnvOverrides(t *testing.T) {
	t.Setenv("LINERADAR_LISTEN_ADDR", ":9999")
	t.Setenv("LINERADAR_REDIS_ADDR", "localhost:6380")

	var cfg Config

	require.NoError(t, LoadAndValidate(writeConfig(t, sampleConfig), &cfg))

	assert.Equal(t, ":9999", cfg.ListenAddr)
	require.NotNil(t, cfg.Redis)
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr)
	assert.Equal(t, "lineradar:", cfg.Redis.KeyPrefix)
}

func TestValidate_Errors(t *testing.T) {
	base := func() Config {
		var cfg Config
		require.NoError(t, json.Unmarshal([]byte(sampleConfig), &cfg))

		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"no devices", func(c *Config) { c.Devices = nil }, errNoDevices},
		{"unknown driver", func(c *Config) { c.Devices[0].Driver = "modbus" }, errUnknownDriver},
		{"unknown device", func(c *Config) { c.Equipment[0].DeviceID = "plc-9" }, errUnknownDevice},
		{"unknown tag", func(c *Config) { c.Equipment[0].Tags.Speed = "speed" }, errUnknownTag},
		{"bit range", func(c *Config) { c.Equipment[0].FaultBits[0].Bit = 64 }, errFaultBitRange},
		{"duplicate rule", func(c *Config) {
			c.Escalation.Rules = append(c.Escalation.Rules, c.Escalation.Rules[0])
		}, errDuplicateRule},
		{"missing level one", func(c *Config) { c.Escalation.Rules = c.Escalation.Rules[1:] }, errMissingLevelOne},
		{"bad channel", func(c *Config) {
			c.Escalation.Rules[0].Channels = []models.Channel{"fax"}
		}, errInvalidChannel},
		{"bad db driver", func(c *Config) { c.Database.Driver = "mysql" }, errUnknownDBDriver},
		{"mtls without certs", func(c *Config) {
			c.Security = &models.SecurityConfig{Mode: models.SecurityModeMTLS, Role: models.RoleGateway}
		}, models.ErrInvalidSecurity},
		{"bad role", func(c *Config) {
			c.Security = &models.SecurityConfig{Mode: models.SecurityModeMTLS, CertDir: "/certs", Role: "agent"}
		}, models.ErrInvalidSecurity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, time.Duration(d))

	require.NoError(t, json.Unmarshal([]byte(`1000000`), &d))
	assert.Equal(t, time.Millisecond, time.Duration(d))

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	assert.ErrorIs(t, json.Unmarshal([]byte(`true`), &d), errInvalidDuration)
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}

func TestLoadDotEnv_SetsVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LINERADAR_TEST_DOTENV=loaded\n"), 0o600))

	t.Cleanup(func() { _ = os.Unsetenv("LINERADAR_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("LINERADAR_TEST_DOTENV"))
}

func TestLoadFile_ExpandsEnvAndRejectsUnknownFields(t *testing.T) {
	t.Setenv("LINERADAR_TEST_DSN", "postgres://plant@db/lineradar")

	var cfg Config

	body := `{"database": {"driver": "postgres", "dsn": "${LINERADAR_TEST_DSN}"}, "service_name": "${UNSET_VAR_FOR_TEST}"}`
	require.NoError(t, LoadFile(writeConfig(t, body), &cfg))
	assert.Equal(t, "postgres://plant@db/lineradar", cfg.Database.DSN)
	assert.Equal(t, "${UNSET_VAR_FOR_TEST}", cfg.ServiceName)

	err := LoadFile(writeConfig(t, `{"listen_adr": ":1"}`), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen_adr")
}
