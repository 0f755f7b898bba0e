package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/relayout/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Detector.MaxConcurrency != 10 {
		t.Errorf("expected max_concurrency 10, got %d", cfg.Detector.MaxConcurrency)
	}
	if cfg.Detector.APIKey != "${OPENAI_API_KEY}" {
		t.Error("expected openai API key placeholder")
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")
		if result := ResolveEnvVars("${TEST_API_KEY}"); result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		if result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}"); result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		if result := ResolveEnvVars("literal-value"); result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestNewManager(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		t.Chdir(t.TempDir())
		mgr, err := NewManager("", t.TempDir())
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		cfg := mgr.Get()
		if cfg.Server.Port != "8080" || cfg.Store.Driver != "memory" {
			t.Errorf("unexpected defaults: %+v", cfg.Server)
		}
		if mgr.ConfigFile() != "" {
			t.Errorf("expected no config file, got %s", mgr.ConfigFile())
		}
	})

	t.Run("file overrides single keys", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: "9191"
reclassify:
  overlap_threshold: 0.2
`)
		mgr, err := NewManager(path, "")
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		cfg := mgr.Get()
		if cfg.Server.Port != "9191" {
			t.Errorf("expected port 9191, got %s", cfg.Server.Port)
		}
		if cfg.Server.Host != "127.0.0.1" {
			t.Errorf("expected default host kept, got %s", cfg.Server.Host)
		}
		if cfg.Reclassify.OverlapThreshold != 0.2 {
			t.Errorf("expected overlap 0.2, got %v", cfg.Reclassify.OverlapThreshold)
		}
		if cfg.Reclassify.InsideThreshold != 0.98 {
			t.Errorf("expected default inside threshold kept, got %v", cfg.Reclassify.InsideThreshold)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("RELAYOUT_SERVER_PORT", "7070")
		path := writeConfig(t, "server:\n  port: \"9191\"\n")
		mgr, err := NewManager(path, "")
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().Server.Port; got != "7070" {
			t.Errorf("expected port 7070, got %s", got)
		}
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		path := writeConfig(t, "store:\n  driver: sqlite\n")
		if _, err := NewManager(path, ""); err == nil {
			t.Fatal("expected error for unknown store driver")
		}
	})
}

func TestConfig_ReclassifyConfig(t *testing.T) {
	t.Run("lowercased priority keys resolve", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Reclassify.LabelPriority = map[string]int{"title": 4, "section-header": 3, "text": 2}
		rc, err := cfg.ReclassifyConfig()
		if err != nil {
			t.Fatalf("ReclassifyConfig() error = %v", err)
		}
		if rc.LabelPriority[types.LabelSectionHeader] != 3 {
			t.Errorf("expected Section-header priority 3, got %v", rc.LabelPriority)
		}
	})

	t.Run("unknown label", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Reclassify.DominantLabels = []string{"Banner"}
		if _, err := cfg.ReclassifyConfig(); err == nil {
			t.Fatal("expected error for unknown label")
		}
	})

	t.Run("detector api key resolved", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-test")
		cfg := DefaultConfig()
		if got := cfg.DetectorConfig().APIKey; got != "sk-test" {
			t.Errorf("expected resolved key, got %q", got)
		}
	})
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	mgr, err := NewManager(path, "")
	if err != nil {
		t.Fatalf("written defaults do not load: %v", err)
	}
	cfg := mgr.Get()
	want := DefaultConfig()
	if cfg.Detector.Timeout != want.Detector.Timeout {
		t.Errorf("timeout round trip: got %v, want %v", cfg.Detector.Timeout, want.Detector.Timeout)
	}
	if len(cfg.Reclassify.DominantLabels) != len(want.Reclassify.DominantLabels) {
		t.Errorf("dominant labels round trip: got %v", cfg.Reclassify.DominantLabels)
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "server:\n  port: \"8080\"\n"), "")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "server:\n  port: \"8080\"\n"), "")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = mgr.Get().Server.Port
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "compare:\n  threshold: 0.3\n")

	mgr, err := NewManager(configFile, "")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Compare.Threshold)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("compare:\n  threshold: 0.5\n"), 0o644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		// A write can surface as several events; wait for the final content.
		if v, _ := lastValue.Load().(float64); v == 0.5 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Compare.Threshold; got != 0.5 {
		t.Errorf("config not updated: expected 0.5, got %v", got)
	}
	if v := lastValue.Load(); v != 0.5 {
		t.Errorf("callback received wrong value: expected 0.5, got %v", v)
	}
}
