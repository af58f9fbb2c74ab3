package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name  string
		check func(*Config) bool
	}{
		{"default mode is api", func(c *Config) bool { return c.Mode == "api" }},
		{"default host is 0.0.0.0", func(c *Config) bool { return c.Host == "0.0.0.0" }},
		{"default port is 8080", func(c *Config) bool { return c.Port == 8080 }},
		{"default log level is info", func(c *Config) bool { return c.LogLevel == "info" }},
		{"default log format is json", func(c *Config) bool { return c.LogFormat == "json" }},
		{"default metrics path", func(c *Config) bool { return c.MetricsPath == "/metrics" }},
		{"listen addr format", func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" }},
		{"default min cohort size matches spec §4.1", func(c *Config) bool { return c.ScreeningMinCohortSize == 50 }},
		{"default manual review threshold matches spec §4.1", func(c *Config) bool { return c.ScreeningReviewThreshold == 0.5 }},
		{"default linkage max per window matches spec §4.4", func(c *Config) bool { return c.LinkageMaxPerWindow == 10 }},
		{"yc transfers disabled by default per spec §4.6 Property 10", func(c *Config) bool { return !c.YCTransfersEnabled }},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("unexpected config default for %s", tt.name)
			}
		})
	}
}
