package home

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-relayout")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-relayout" {
			t.Errorf("expected path /tmp/test-relayout, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-relayout")

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"ConfigPath", dir.ConfigPath(), "/tmp/test-relayout/config.yaml"},
		{"UploadPath", dir.UploadPath("doc1"), "/tmp/test-relayout/uploads/doc1.pdf"},
		{"ImagesDir", dir.ImagesDir("doc1"), "/tmp/test-relayout/images/doc1"},
		{"PageImagePath", dir.PageImagePath("doc1", 7, "png"), "/tmp/test-relayout/images/doc1/page_0007.png"},
		{"OutputsDir", dir.OutputsDir(), "/tmp/test-relayout/outputs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, tt.got)
			}
		})
	}
}

func TestDir_EnsureExists(t *testing.T) {
	tmpDir := t.TempDir()
	relayoutDir := filepath.Join(tmpDir, "relayout-test")

	dir, err := New(relayoutDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.Exists() {
		t.Error("expected directory to not exist yet")
	}

	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !dir.Exists() {
		t.Error("expected directory to exist after EnsureExists")
	}
	for _, sub := range []string{"uploads", "images", "outputs"} {
		if _, err := os.Stat(filepath.Join(relayoutDir, sub)); err != nil {
			t.Errorf("expected %s directory: %v", sub, err)
		}
	}
}

func TestDir_FindPageImage(t *testing.T) {
	dir, _ := New(t.TempDir())

	if _, err := dir.FindPageImage("doc", 1); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}

	if err := dir.EnsureImagesDir("doc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := dir.PageImagePath("doc", 1, "jpeg")
	if err := os.WriteFile(want, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}

	got, err := dir.FindPageImage("doc", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestDir_ConfigExists(t *testing.T) {
	dir, _ := New(t.TempDir())
	if dir.ConfigExists() {
		t.Error("expected no config file")
	}
	if err := os.WriteFile(dir.ConfigPath(), []byte("server: {}\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if !dir.ConfigExists() {
		t.Error("expected config file to exist")
	}
}
