package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_NoFile(t *testing.T) {
	t.Chdir(t.TempDir())

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: openai
  max_tokens: 1024
  temperature: 0.3
  openai:
    model: gpt-4o-mini
embedding:
  provider: tei
  model: sentence-transformers/paraphrase-multilingual-mpnet-base-v2
index:
  backend: local
  path: chroma
ingest:
  data_dir: Data
  chunk_size: 1200
  chunk_overlap: 300
retrieval:
  top_k: 3
  threshold: 0.3
speech:
  region: centralindia
  voice: ne-NP-SagarNeural
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	envKeys := []string{
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE", "OPENAI_MODEL",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
		"INDEX_BACKEND", "INDEX_PATH",
		"INGEST_DATA_DIR", "INGEST_CHUNK_SIZE", "INGEST_CHUNK_OVERLAP",
		"RETRIEVAL_TOP_K", "RETRIEVAL_THRESHOLD",
		"AZURE_SERVICE_REGION", "SPEECH_VOICE",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	loaded, err := Load(cfgPath, slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":       "openai",
		"MODEL_MAX_TOKENS":     "1024",
		"MODEL_TEMPERATURE":    "0.3",
		"OPENAI_MODEL":         "gpt-4o-mini",
		"EMBEDDING_PROVIDER":   "tei",
		"INDEX_BACKEND":        "local",
		"INDEX_PATH":           "chroma",
		"INGEST_DATA_DIR":      "Data",
		"INGEST_CHUNK_SIZE":    "1200",
		"INGEST_CHUNK_OVERLAP": "300",
		"RETRIEVAL_TOP_K":      "3",
		"RETRIEVAL_THRESHOLD":  "0.3",
		"AZURE_SERVICE_REGION": "centralindia",
		"SPEECH_VOICE":         "ne-NP-SagarNeural",
		"LOG_LEVEL":            "debug",
		"LOG_FORMAT":           "text",
	}
	for k, want := range checks {
		if got := os.Getenv(k); got != want {
			t.Errorf("env %s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("model:\n  provider: ollama\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MODEL_PROVIDER", "openai")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := os.Getenv("MODEL_PROVIDER"); got != "openai" {
		t.Errorf("env var should take precedence: got %q, want %q", got, "openai")
	}
}

func TestLoad_DotEnvBeatsYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := os.WriteFile(".env", []byte("INGEST_DATA_DIR=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("ingest:\n  data_dir: from-yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("INGEST_DATA_DIR", "")
	os.Unsetenv("INGEST_DATA_DIR")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := os.Getenv("INGEST_DATA_DIR"); got != "from-dotenv" {
		t.Errorf(".env should beat YAML: got %q", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfgPath := filepath.Join(dir, "bad.yaml")

	if err := os.WriteFile(cfgPath, []byte(":::invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath, slog.Default()); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestResolveConfigPath_EnvVar(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfgPath := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(cfgPath, []byte("model:\n  provider: openai\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("JUNU_CONFIG", cfgPath)

	if got := resolveConfigPath(""); got != cfgPath {
		t.Errorf("resolveConfigPath: got %q, want %q", got, cfgPath)
	}
}

func TestResolveConfigPath_LocalFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("JUNU_CONFIG", "")
	t.Setenv("HOME", dir)

	if err := os.WriteFile("junu.yaml", []byte("logging:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := resolveConfigPath(""); got != "junu.yaml" {
		t.Errorf("resolveConfigPath: got %q, want junu.yaml", got)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("JUNU_TEST_STR", "  value ")
	t.Setenv("JUNU_TEST_INT", "42")
	t.Setenv("JUNU_TEST_BAD_INT", "forty")
	t.Setenv("JUNU_TEST_FLOAT", "0.25")
	t.Setenv("JUNU_TEST_BOOL", "true")
	t.Setenv("JUNU_TEST_DUR", "90s")
	t.Setenv("JUNU_TEST_LIST", "a, b,,c ")

	if got := String("JUNU_TEST_STR", "x"); got != "value" {
		t.Errorf("String: got %q", got)
	}
	if got := String("JUNU_TEST_MISSING", "x"); got != "x" {
		t.Errorf("String fallback: got %q", got)
	}
	if got := Int("JUNU_TEST_INT", 0); got != 42 {
		t.Errorf("Int: got %d", got)
	}
	if got := Int("JUNU_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("Int fallback on parse error: got %d", got)
	}
	if got := Float32("JUNU_TEST_FLOAT", 0); got != 0.25 {
		t.Errorf("Float32: got %v", got)
	}
	if got := Bool("JUNU_TEST_BOOL", false); !got {
		t.Error("Bool: got false")
	}
	if got := Duration("JUNU_TEST_DUR", time.Second); got != 90*time.Second {
		t.Errorf("Duration: got %v", got)
	}
	got := List("JUNU_TEST_LIST", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("List: got %v", got)
	}
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float32
		want string
	}{
		{0, ""},
		{0.3, "0.3"},
		{1, "1"},
		{0.125, "0.125"},
	}
	for _, tc := range tests {
		if got := float32Str(tc.in); got != tc.want {
			t.Errorf("float32Str(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
