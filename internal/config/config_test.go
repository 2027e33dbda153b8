package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.NumSlotsExpress != 1 || cfg.NumSlotsStandard != 2 || cfg.NumSlotsRegression != 1 {
		t.Errorf("slot defaults = %d/%d/%d, want 1/2/1",
			cfg.NumSlotsExpress, cfg.NumSlotsStandard, cfg.NumSlotsRegression)
	}
	if cfg.PassThreshold != 60 {
		t.Errorf("pass threshold = %v, want 60", cfg.PassThreshold)
	}
	if cfg.CourseName != "sdmm" {
		t.Errorf("course name = %s, want sdmm", cfg.CourseName)
	}
	if cfg.Runtime != "docker" {
		t.Errorf("runtime = %s, want docker", cfg.Runtime)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradeplane.yaml")
	content := `
course_name: classytest
org: secapstone
docker_host: https://grader.example.test:2376
ssl_cert_path: /certs/client.pem
num_slots_standard: 4
pass_threshold: 70
deliverables:
  d0:
    image: secap/grader-d0:latest
    timeout: 300
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.CourseName != "classytest" {
		t.Errorf("course name = %s, want classytest", cfg.CourseName)
	}
	if cfg.NumSlotsStandard != 4 {
		t.Errorf("standard slots = %d, want 4", cfg.NumSlotsStandard)
	}
	if cfg.PassThreshold != 70 {
		t.Errorf("pass threshold = %v, want 70", cfg.PassThreshold)
	}
	// Untouched values keep their defaults.
	if cfg.NumSlotsExpress != 1 {
		t.Errorf("express slots = %d, want default 1", cfg.NumSlotsExpress)
	}

	deliv, ok := cfg.Deliverables["d0"]
	if !ok {
		t.Fatal("d0 deliverable not loaded")
	}
	if deliv.Image != "secap/grader-d0:latest" || deliv.Timeout != 300 {
		t.Errorf("d0 deliverable = %+v", deliv)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradeplane.yaml")
	if err := os.WriteFile(path, []byte("backend_port: 7000\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("GRADEPLANE_BACKEND_PORT", "8123")
	t.Setenv("GRADEPLANE_ORG", "env-org")
	t.Setenv("GRADEPLANE_PASS_THRESHOLD", "55.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BackendPort != 8123 {
		t.Errorf("backend port = %d, want env override 8123", cfg.BackendPort)
	}
	if cfg.Org != "env-org" {
		t.Errorf("org = %s, want env-org", cfg.Org)
	}
	if cfg.PassThreshold != 55.5 {
		t.Errorf("pass threshold = %v, want 55.5", cfg.PassThreshold)
	}
}

func TestLoad_InvalidEnvInteger(t *testing.T) {
	t.Setenv("GRADEPLANE_HTTP_PORT", "not-a-port")
	if _, err := Load(""); err == nil {
		t.Error("expected error for invalid integer env value")
	}
}

func TestWebhookURL(t *testing.T) {
	cfg := &Config{BackendURL: "https://grading.example.test", BackendPort: 443}
	if got := cfg.WebhookURL(); got != "https://grading.example.test:443/webhook" {
		t.Errorf("webhook URL = %s", got)
	}
}
