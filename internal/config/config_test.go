package config

import (
	"os"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestValidateRejectsNegativeStateCap(t *testing.T) {
	cfg := Default()
	cfg.StateCap = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a negative state cap to be rejected")
	}
}

func TestValidateRejectsVerboseAndQuietTogether(t *testing.T) {
	cfg := Default()
	cfg.Verbose = true
	cfg.Quiet = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected verbose+quiet to be rejected")
	}
}

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	os.Setenv("ENTREMETS_STATE_CAP", "5000")
	os.Setenv("ENTREMETS_COLOR", "false")
	defer os.Unsetenv("ENTREMETS_STATE_CAP")
	defer os.Unsetenv("ENTREMETS_COLOR")

	cfg := LoadFromEnv()
	if cfg.StateCap != 5000 {
		t.Fatalf("expected state cap 5000, got %d", cfg.StateCap)
	}
	if cfg.Color {
		t.Fatal("expected color to be disabled")
	}
}

func TestLoadFromEnvIgnoresUnparseableValues(t *testing.T) {
	os.Setenv("ENTREMETS_STATE_CAP", "not-a-number")
	defer os.Unsetenv("ENTREMETS_STATE_CAP")

	cfg := LoadFromEnv()
	if cfg.StateCap != Default().StateCap {
		t.Fatalf("expected default state cap to survive an unparseable override, got %d", cfg.StateCap)
	}
}
