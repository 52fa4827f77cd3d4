package config

import "testing"

func TestLoadRequiresEncryptionKey(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("want error when ENCRYPTION_KEY is unset")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "test-key")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.DefaultMaxTradeSizeCents != 100 {
		t.Errorf("DefaultMaxTradeSizeCents = %d, want 100", cfg.DefaultMaxTradeSizeCents)
	}
	if cfg.DefaultMinEVThreshold != 0.05 {
		t.Errorf("DefaultMinEVThreshold = %v, want 0.05", cfg.DefaultMinEVThreshold)
	}
	if cfg.DefaultMaxPerCityExposureCents != 1500 {
		t.Errorf("DefaultMaxPerCityExposureCents = %d, want 1500", cfg.DefaultMaxPerCityExposureCents)
	}
	if cfg.DefaultMaxCorrelatedRegionExposureCents != 4000 {
		t.Errorf("DefaultMaxCorrelatedRegionExposureCents = %d, want 4000", cfg.DefaultMaxCorrelatedRegionExposureCents)
	}
	if cfg.ModelsDir != "./models" {
		t.Errorf("ModelsDir = %q, want ./models", cfg.ModelsDir)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "test-key")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DEFAULT_MAX_TRADE_SIZE_CENTS", "500")
	t.Setenv("DEFAULT_MIN_EV_THRESHOLD", "0.1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != "production" {
		t.Errorf("Environment = %q, want production", cfg.Environment)
	}
	if cfg.DefaultMaxTradeSizeCents != 500 {
		t.Errorf("DefaultMaxTradeSizeCents = %d, want 500", cfg.DefaultMaxTradeSizeCents)
	}
	if cfg.DefaultMinEVThreshold != 0.1 {
		t.Errorf("DefaultMinEVThreshold = %v, want 0.1", cfg.DefaultMinEVThreshold)
	}
}
