package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("Expected error for explicit missing config file, got config %+v", cfg)
	}

	Reset()
	dir := t.TempDir()
	path := filepath.Join(dir, "briefcast.yaml")
	if err := os.WriteFile(path, []byte("audio:\n  filename: briefing.mp3\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Audio.Filename != "briefing.mp3" {
		t.Errorf("Expected filename override, got %s", cfg.Audio.Filename)
	}
	if cfg.Audio.IntervalHours != 12 {
		t.Errorf("Expected interval default of 12, got %v", cfg.Audio.IntervalHours)
	}
	if cfg.Clustering.FuzzyThreshold != 90 {
		t.Errorf("Expected fuzzy threshold 90, got %v", cfg.Clustering.FuzzyThreshold)
	}
	if cfg.Clustering.SemanticThreshold != 0.82 {
		t.Errorf("Expected semantic threshold 0.82, got %v", cfg.Clustering.SemanticThreshold)
	}
	if cfg.Preview.Limit != 80 {
		t.Errorf("Expected preview limit 80, got %d", cfg.Preview.Limit)
	}
	if !cfg.TTS.VoxCPM.TextNormalizer || cfg.TTS.VoxCPM.AudioNormalizer {
		t.Error("Expected voxcpm normalizer defaults text=true audio=false")
	}
}

func TestLoadBindsEnvironment(t *testing.T) {
	Reset()
	defer Reset()

	t.Setenv("GEMINI_API_KEY", "  test-key ")
	t.Setenv("TTS_PROVIDER", "Kokoro")

	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AI.Gemini.APIKey != "test-key" {
		t.Errorf("Expected trimmed api key, got %q", cfg.AI.Gemini.APIKey)
	}
	if cfg.TTS.Provider != "kokoro" {
		t.Errorf("Expected lowercased provider, got %q", cfg.TTS.Provider)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad duration", "fetch:\n  timeout: soon\n", "invalid duration for fetch.timeout"},
		{"bad provider", "tts:\n  provider: morse\n", "Unknown TTS provider"},
		{"bad driver", "history:\n  driver: mongo\n", "Unknown history driver"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			Reset()
			defer Reset()

			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tc.yaml), 0644); err != nil {
				t.Fatalf("Failed to write config: %v", err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	if got := ParseDuration("", 5*time.Second); got != 5*time.Second {
		t.Errorf("Expected fallback for empty value, got %v", got)
	}
	if got := ParseDuration("2m", time.Second); got != 2*time.Minute {
		t.Errorf("Expected 2m, got %v", got)
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("BRIEFCAST_TEST_DIR", "/tmp/briefcast")
	if got := expandPath("$BRIEFCAST_TEST_DIR/audio"); got != "/tmp/briefcast/audio" {
		t.Errorf("Expected env expansion, got %s", got)
	}
}
