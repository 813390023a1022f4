package configuration

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFilesReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yml"), filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	want := Default()
	if *cfg != want {
		t.Errorf("got %+v, want %+v", *cfg, want)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(yamlPath, []byte("hint_num_dirs: 4096\nbatch_limit: 64\n"), 0644); err != nil {
		t.Fatal("unable to write config file:", err)
	}

	cfg, err := Load(yamlPath, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if cfg.HintNumDirs != 4096 || cfg.BatchLimit != 64 {
		t.Errorf("got %+v", *cfg)
	}
}

func TestLoadEnvironmentFileOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(yamlPath, []byte("hint_num_dirs: 4096\nbatch_limit: 64\n"), 0644); err != nil {
		t.Fatal("unable to write config file:", err)
	}
	envPath := filepath.Join(dir, "config.env")
	if err := os.WriteFile(envPath, []byte("WATCHMAN_HINT_NUM_DIRS=2048\n"), 0644); err != nil {
		t.Fatal("unable to write env file:", err)
	}

	cfg, err := Load(yamlPath, envPath)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if cfg.HintNumDirs != 2048 {
		t.Errorf("expected env override to win, got %d", cfg.HintNumDirs)
	}
	if cfg.BatchLimit != 64 {
		t.Errorf("expected YAML value to survive when env doesn't override it, got %d", cfg.BatchLimit)
	}
}

func TestLoadOSEnvironmentOverridesEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "config.env")
	if err := os.WriteFile(envPath, []byte("WATCHMAN_BATCH_LIMIT=64\n"), 0644); err != nil {
		t.Fatal("unable to write env file:", err)
	}

	os.Setenv("WATCHMAN_BATCH_LIMIT", "16")
	defer os.Unsetenv("WATCHMAN_BATCH_LIMIT")

	cfg, err := Load(filepath.Join(dir, "missing.yml"), envPath)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if cfg.BatchLimit != 16 {
		t.Errorf("expected OS environment to take precedence, got %d", cfg.BatchLimit)
	}
}

func TestLoadInvalidEnvironmentValue(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "config.env")
	if err := os.WriteFile(envPath, []byte("WATCHMAN_HINT_NUM_DIRS=not-a-number\n"), 0644); err != nil {
		t.Fatal("unable to write env file:", err)
	}

	_, err := Load(filepath.Join(dir, "missing.yml"), envPath)
	if err == nil {
		t.Fatal("expected an error for a non-integer override")
	}
}
