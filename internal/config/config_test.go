package config

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/knechtdev/knecht/internal/fsys"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(fsys.NewFake(), "/p/.knecht/config.toml")
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.LockTimeout(); got != DefaultLockTimeout {
		t.Errorf("LockTimeout = %v, want %v", got, DefaultLockTimeout)
	}
	if cfg.Telemetry.MetricsURL != "" || cfg.Telemetry.LogsURL != "" {
		t.Errorf("telemetry should default off, got %+v", cfg.Telemetry)
	}
}

func TestLoadReadError(t *testing.T) {
	f := fsys.NewFake()
	f.Errors["/c.toml"] = os.ErrPermission
	if _, err := Load(f, "/c.toml"); !errors.Is(err, os.ErrPermission) {
		t.Errorf("error = %v, want ErrPermission", err)
	}
}

func TestParse(t *testing.T) {
	data := `
[store]
lock_timeout = "500ms"

[telemetry]
metrics_url = "http://localhost:8428/opentelemetry/api/v1/push"
logs_url = "http://localhost:9428/insert/opentelemetry/v1/logs"
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.LockTimeout(); got != 500*time.Millisecond {
		t.Errorf("LockTimeout = %v, want 500ms", got)
	}
	if !strings.HasPrefix(cfg.Telemetry.MetricsURL, "http://localhost:8428") {
		t.Errorf("MetricsURL = %q", cfg.Telemetry.MetricsURL)
	}
	if !strings.HasSuffix(cfg.Telemetry.LogsURL, "/v1/logs") {
		t.Errorf("LogsURL = %q", cfg.Telemetry.LogsURL)
	}
}

func TestParseZeroDisablesLock(t *testing.T) {
	cfg, err := Parse([]byte("[store]\nlock_timeout = \"0\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.LockTimeout(); got != 0 {
		t.Errorf("LockTimeout = %v, want 0", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad toml", "[store\n", "parsing config"},
		{"bad duration", "[store]\nlock_timeout = \"soon\"\n", "store.lock_timeout"},
		{"negative duration", "[store]\nlock_timeout = \"-1s\"\n", "must not be negative"},
		{"unknown key", "[store]\nlock_timout = \"1s\"\n", "unknown key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.LogsURL = "http://logs"
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse(Marshal output): %v\n%s", err, data)
	}
	if *got != cfg {
		t.Errorf("round trip = %+v, want %+v", *got, cfg)
	}
	if strings.Contains(string(data), "metrics_url") {
		t.Errorf("empty metrics_url should be omitted:\n%s", data)
	}
}
