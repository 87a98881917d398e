package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetToleranceMs(); got != 100.0 {
		t.Errorf("GetToleranceMs() = %f, want 100", got)
	}
	if got := cfg.GetAlignmentMethod(); got != "nearest_neighbor" {
		t.Errorf("GetAlignmentMethod() = %q, want nearest_neighbor", got)
	}
	if !cfg.GetStrictClassMatching() {
		t.Error("GetStrictClassMatching() = false, want true")
	}
	if got := cfg.GetLatencyPercentile(); got != 0.95 {
		t.Errorf("GetLatencyPercentile() = %f, want 0.95", got)
	}
	if got := cfg.GetWorkers(); got != 4 {
		t.Errorf("GetWorkers() = %d, want 4", got)
	}
	if got := cfg.GetProfile(); got != "default" {
		t.Errorf("GetProfile() = %q, want default", got)
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	path := writeConfig(t, `{"tolerance_ms": 75.0, "workers": 8}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}

	if got := cfg.GetToleranceMs(); got != 75.0 {
		t.Errorf("GetToleranceMs() = %f, want 75", got)
	}
	if got := cfg.GetWorkers(); got != 8 {
		t.Errorf("GetWorkers() = %d, want 8", got)
	}
	// Unset fields keep their defaults.
	if got := cfg.GetAlignmentMethod(); got != "nearest_neighbor" {
		t.Errorf("GetAlignmentMethod() = %q, want nearest_neighbor", got)
	}
}

func TestLoadTuningConfigPerClassThresholds(t *testing.T) {
	path := writeConfig(t, `{"base_threshold_ms_by_class": {"pedestrian": 120.0, "cyclist": 90.0}}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}

	byClass := cfg.GetBaseThresholdMsByClass()
	if byClass["pedestrian"] != 120.0 || byClass["cyclist"] != 90.0 {
		t.Errorf("GetBaseThresholdMsByClass() = %v, want pedestrian 120 and cyclist 90", byClass)
	}

	// The accessor hands out a copy.
	byClass["pedestrian"] = 1.0
	if got := cfg.GetBaseThresholdMsByClass()["pedestrian"]; got != 120.0 {
		t.Errorf("mutation leaked into config: pedestrian = %f, want 120", got)
	}

	if EmptyTuningConfig().GetBaseThresholdMsByClass() != nil {
		t.Error("GetBaseThresholdMsByClass() on empty config should be nil")
	}
}

func TestLoadTuningConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"negative tolerance", `{"tolerance_ms": -1}`},
		{"percentile out of range", `{"latency_percentile": 1.5}`},
		{"zero workers", `{"workers": 0}`},
		{"negative retries", `{"fetch_retries": -1}`},
		{"bad per-class threshold", `{"base_threshold_ms_by_class": {"pedestrian": 0}}`},
		{"malformed json", `{"tolerance_ms": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.contents)
			if _, err := LoadTuningConfig(path); err == nil {
				t.Errorf("LoadTuningConfig accepted %q", tt.contents)
			}
		})
	}
}

func TestLoadTuningConfigRejectsNonJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadTuningConfig(path); err == nil {
		t.Error("expected error for non-json extension")
	}
}

func TestProfileLookup(t *testing.T) {
	for _, name := range ProfileNames() {
		c, err := Profile(name)
		if err != nil {
			t.Errorf("Profile(%q): %v", name, err)
			continue
		}
		if c.Name != name {
			t.Errorf("Profile(%q).Name = %q", name, c.Name)
		}
	}

	if _, err := Profile("nope"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestSafetyCriticalTighterThanDefault(t *testing.T) {
	def, err := Profile("default")
	if err != nil {
		t.Fatal(err)
	}
	sc, err := Profile("safety-critical")
	if err != nil {
		t.Fatal(err)
	}

	if sc.RecallMin <= def.RecallMin {
		t.Errorf("safety-critical recall %f not tighter than default %f", sc.RecallMin, def.RecallMin)
	}
	if sc.LatencyMaxMs >= def.LatencyMaxMs {
		t.Errorf("safety-critical latency cap %f not tighter than default %f", sc.LatencyMaxMs, def.LatencyMaxMs)
	}
	if sc.RequiredPassFraction != 1.0 {
		t.Errorf("safety-critical RequiredPassFraction = %f, want 1.0", sc.RequiredPassFraction)
	}
}
