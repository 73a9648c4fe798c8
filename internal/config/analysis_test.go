package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEmptyConfigFallsBackToDefaults(t *testing.T) {
	cfg := EmptyAnalysisConfig()

	if cfg.GetV0CosPA() != 0.995 {
		t.Errorf("GetV0CosPA() = %f, want 0.995", cfg.GetV0CosPA())
	}
	if cfg.GetRapidity() != 0.5 {
		t.Errorf("GetRapidity() = %f, want 0.5", cfg.GetRapidity())
	}
	if cfg.GetNSigTPC() != 10 {
		t.Errorf("GetNSigTPC() = %f, want 10", cfg.GetNSigTPC())
	}
	if !cfg.GetEventSelection() {
		t.Error("GetEventSelection() = false, want true")
	}
	if cfg.GetLegacyPosITSStatus() {
		t.Error("GetLegacyPosITSStatus() = true, want false")
	}
	if cfg.GetProgressEvery() != 1000 {
		t.Errorf("GetProgressEvery() = %d, want 1000", cfg.GetProgressEvery())
	}
}

func TestDefaultConfigMatchesDefaultsFile(t *testing.T) {
	fromFile := MustLoadDefaultConfig()
	if diff := cmp.Diff(DefaultAnalysisConfig(), fromFile); diff != "" {
		t.Errorf("defaults file differs from DefaultAnalysisConfig (-want +got):\n%s", diff)
	}
}

func TestLoadAnalysisConfig_Partial(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "cuts.json")
	testJSON := `{
  "v0cospa": 0.999,
  "eventSelection": false
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadAnalysisConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	want := Selection{
		V0CosPA:        0.999,
		Rapidity:       0.5,
		NSigTPC:        10,
		EventSelection: false,
	}
	if diff := cmp.Diff(want, cfg.Selection()); diff != "" {
		t.Errorf("Selection mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadAnalysisConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"wrong extension", "cuts.yaml", `{}`, "must have .json extension"},
		{"bad json", "bad.json", `{"v0cospa":`, "failed to parse config JSON"},
		{"cospa out of range", "cospa.json", `{"v0cospa": 1.5}`, "v0cospa must be between"},
		{"negative rapidity", "y.json", `{"rapidity": -0.1}`, "rapidity must be non-negative"},
		{"negative nsigma", "ns.json", `{"nSigTPC": -1}`, "nSigTPC must be non-negative"},
		{"empty mass window", "mw.json", `{"efficiency_mass_min": 0.5, "efficiency_mass_max": 0.5}`, "mass window is empty"},
		{"confidence level", "cl.json", `{"confidence_level": 1}`, "confidence_level must be in"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := LoadAnalysisConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}

	if _, err := LoadAnalysisConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestResolvedPopulatesEveryKey(t *testing.T) {
	r := EmptyAnalysisConfig().Resolved()
	if diff := cmp.Diff(DefaultAnalysisConfig(), r); diff != "" {
		t.Errorf("Resolved() mismatch (-want +got):\n%s", diff)
	}
}
