package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.OCR.Tesseract.Enabled {
		t.Error("expected tesseract enabled by default")
	}
	if cfg.OCR.Vision.APIKey != "${OPENAI_API_KEY}" {
		t.Error("expected vision API key placeholder")
	}
	if cfg.Pipeline.Workers <= 0 || cfg.Pipeline.StepBudgetMinutes <= 0 {
		t.Errorf("pipeline defaults = %+v", cfg.Pipeline)
	}
	if cfg.Layout.MinColumnGap != 80 || cfg.Layout.SignificanceGap != 120 {
		t.Errorf("layout defaults = %+v", cfg.Layout)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		os.Setenv("TEST_API_KEY", "secret123")
		defer os.Unsetenv("TEST_API_KEY")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "# examscan configuration") {
		t.Error("missing config header comment")
	}
	for _, key := range []string{"server:", "ocr:", "pipeline:", "ingest:", "layout:"} {
		if !strings.Contains(content, key) {
			t.Errorf("rendered config missing %q section", key)
		}
	}
	if !strings.Contains(content, "${OPENAI_API_KEY}") {
		t.Error("rendered config missing API key placeholder")
	}
}

func TestNewManagerLoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  addr: ":9090"
pipeline:
  workers: 4
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cm, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	cfg := cm.Get()
	if cfg.Server.Addr != ":9090" {
		t.Errorf("server addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("pipeline workers = %d, want 4", cfg.Pipeline.Workers)
	}
	// Untouched sections keep defaults.
	if cfg.Ingest.RenderDPI != 300 {
		t.Errorf("ingest render dpi = %d, want default 300", cfg.Ingest.RenderDPI)
	}
}
