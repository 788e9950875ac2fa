package camera

import "testing"

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Fatalf("default config invalid: %v", errs)
	}
	if cfg.PoolDepth != 4 {
		t.Errorf("pool depth = %d, want 4", cfg.PoolDepth)
	}
}

func TestPresets_Valid(t *testing.T) {
	for _, name := range PresetNames() {
		cfg := GetPreset(name)
		if cfg == nil {
			t.Fatalf("preset %q missing", name)
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("preset %q invalid: %v", name, errs)
		}
	}
	if GetPreset("8k") != nil {
		t.Error("unknown preset should be nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tiny width", func(c *Config) { c.Width = 1 }},
		{"huge height", func(c *Config) { c.Height = 100000 }},
		{"zero framerate", func(c *Config) { c.Framerate = 0 }},
		{"zero pool", func(c *Config) { c.PoolDepth = 0 }},
		{"unconvertible format", func(c *Config) { c.Format = 5 }},
		{"negative timeout", func(c *Config) { c.OpenTimeout = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if errs := cfg.Validate(); len(errs) == 0 {
				t.Error("expected validation errors")
			}
		})
	}
}
