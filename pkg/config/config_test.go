package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8520 {
		t.Errorf("Port = %d, want 8520", cfg.Port)
	}
	if cfg.BindAddr != "127.0.0.1" {
		t.Errorf("BindAddr = %q, want loopback", cfg.BindAddr)
	}
	if cfg.BaseURL != "http://127.0.0.1:8520" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.UpstreamBase != "https://anime1.me" {
		t.Errorf("UpstreamBase = %q", cfg.UpstreamBase)
	}
	if cfg.StreamMode != StreamModeProxy {
		t.Errorf("StreamMode = %q, want proxy", cfg.StreamMode)
	}
	if cfg.FetchTimeout <= 0 {
		t.Error("FetchTimeout must be finite and positive")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STREAM_MODE", "redirect")
	t.Setenv("UPSTREAM_BASE", "https://anime1.example/")
	t.Setenv("FETCH_TIMEOUT", "5")
	t.Setenv("LOG_JSON", "1")

	cfg := Load()

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.StreamMode != StreamModeRedirect {
		t.Errorf("StreamMode = %q, want redirect", cfg.StreamMode)
	}
	if cfg.UpstreamBase != "https://anime1.example" {
		t.Errorf("UpstreamBase = %q, trailing slash not trimmed", cfg.UpstreamBase)
	}
	if cfg.FetchTimeout != 5*time.Second {
		t.Errorf("FetchTimeout = %v, want 5s", cfg.FetchTimeout)
	}
	if !cfg.LogJSON {
		t.Error("LogJSON should be true")
	}
}

func TestValidStreamMode(t *testing.T) {
	tests := []struct {
		in   string
		want StreamMode
		ok   bool
	}{
		{"proxy", StreamModeProxy, true},
		{"REDIRECT", StreamModeRedirect, true},
		{" redirect ", StreamModeRedirect, true},
		{"direct", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ValidStreamMode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ValidStreamMode(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
