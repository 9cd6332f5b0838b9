package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "cfg.yaml", `
logging:
  level: debug
  console: true
discovery:
  feeds: ["https://example.test/live"]
  follower_threshold: 500
qualify:
  portal_url: "https://portal.test"
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
	if got := cfg.Discovery.FollowerThreshold; got != 500 {
		t.Errorf("follower_threshold = %d, want 500", got)
	}
	if len(cfg.Discovery.Feeds) != 1 {
		t.Errorf("feeds = %v, want one entry", cfg.Discovery.Feeds)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "cfg.json", `{"server": {"enabled": true, "address": "127.0.0.1:9000"}}`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.Server.Enabled || cfg.Server.Address != "127.0.0.1:9000" {
		t.Errorf("server = %+v", cfg.Server)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "cfg.yaml", "discvoery:\n  target_count: 5\n")
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("want error for unknown key, got nil")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "cfg.json", `{"jobs": {"timeout": "5m"}}{"extra": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("want error for trailing data, got nil")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"30s", 30 * time.Second, false},
		{" 5m ", 5 * time.Minute, false},
		{"-1s", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationField("test.field", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDurationField(%q): want error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDurationField(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDurationField(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	got, err := ParseDurationOrDefault("f", "", 7*time.Second)
	if err != nil || got != 7*time.Second {
		t.Errorf("got %v, %v; want 7s, nil", got, err)
	}
	got, err = ParseDurationOrDefault("f", "2s", 7*time.Second)
	if err != nil || got != 2*time.Second {
		t.Errorf("got %v, %v; want 2s, nil", got, err)
	}
}
