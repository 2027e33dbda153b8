// Package config handles configuration loading from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Deliverable holds the grading parameters for one assignment milestone.
type Deliverable struct {
	Image   string `yaml:"image"`
	Timeout int    `yaml:"timeout"` // seconds
}

// Config holds all configuration values for the application.
type Config struct {
	// Course identity
	CourseName    string `yaml:"course_name"`
	GithubHost    string `yaml:"github_host"`
	Org           string `yaml:"org"`
	ProjectPrefix string `yaml:"project_prefix"`
	ImportURL     string `yaml:"import_url"`

	// Webhook URL assembly
	BackendURL  string `yaml:"backend_url"`
	BackendPort int    `yaml:"backend_port"`

	// Container runtime. DockerHost empty means local socket; http,
	// https and tcp schemes connect over TLS with the cert material below.
	Runtime       string `yaml:"runtime"` // docker|exec
	DockerHost    string `yaml:"docker_host"`
	SSLCertPath   string `yaml:"ssl_cert_path"`
	SSLKeyPath    string `yaml:"ssl_key_path"`
	SSLCACertPath string `yaml:"ssl_ca_cert_path"`

	// Scheduler slot budgets
	NumSlotsExpress    int `yaml:"num_slots_express"`
	NumSlotsStandard   int `yaml:"num_slots_standard"`
	NumSlotsRegression int `yaml:"num_slots_regression"`

	// Minimum passing score for a deliverable grade
	PassThreshold float64 `yaml:"pass_threshold"`

	// Process wiring
	DatabaseURL   string `yaml:"database_url"`
	HTTPPort      int    `yaml:"http_port"`
	OTELEndpoint  string `yaml:"otel_endpoint"`
	WorkspaceDir  string `yaml:"workspace_dir"`
	WebhookSecret string `yaml:"webhook_secret"`

	Deliverables map[string]Deliverable `yaml:"deliverables"`
}

// defaults returns a config with every default applied.
func defaults() *Config {
	return &Config{
		CourseName:         "sdmm",
		GithubHost:         "github.com",
		ProjectPrefix:      "secap_",
		BackendURL:         "http://localhost",
		BackendPort:        6161,
		Runtime:            "docker",
		NumSlotsExpress:    1,
		NumSlotsStandard:   2,
		NumSlotsRegression: 1,
		PassThreshold:      60,
		HTTPPort:           6161,
		WorkspaceDir:       "/tmp/gradeplane",
	}
}

// Load reads configuration from an optional YAML file and then applies
// GRADEPLANE_* environment variable overrides. An empty path falls back
// to gradeplane.yaml in the current directory, if present.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		if _, err := os.Stat("gradeplane.yaml"); err == nil {
			path = "gradeplane.yaml"
		}
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString("GRADEPLANE_COURSE_NAME", &c.CourseName)
	setString("GRADEPLANE_GITHUB_HOST", &c.GithubHost)
	setString("GRADEPLANE_ORG", &c.Org)
	setString("GRADEPLANE_PROJECT_PREFIX", &c.ProjectPrefix)
	setString("GRADEPLANE_IMPORT_URL", &c.ImportURL)
	setString("GRADEPLANE_BACKEND_URL", &c.BackendURL)
	setString("GRADEPLANE_RUNTIME", &c.Runtime)
	setString("GRADEPLANE_DOCKER_HOST", &c.DockerHost)
	setString("GRADEPLANE_SSL_CERT_PATH", &c.SSLCertPath)
	setString("GRADEPLANE_SSL_KEY_PATH", &c.SSLKeyPath)
	setString("GRADEPLANE_SSL_CA_CERT_PATH", &c.SSLCACertPath)
	setString("GRADEPLANE_DATABASE_URL", &c.DatabaseURL)
	setString("GRADEPLANE_OTEL_ENDPOINT", &c.OTELEndpoint)
	setString("GRADEPLANE_WORKSPACE_DIR", &c.WorkspaceDir)
	setString("GRADEPLANE_WEBHOOK_SECRET", &c.WebhookSecret)

	for key, dst := range map[string]*int{
		"GRADEPLANE_BACKEND_PORT":         &c.BackendPort,
		"GRADEPLANE_HTTP_PORT":            &c.HTTPPort,
		"GRADEPLANE_NUM_SLOTS_EXPRESS":    &c.NumSlotsExpress,
		"GRADEPLANE_NUM_SLOTS_STANDARD":   &c.NumSlotsStandard,
		"GRADEPLANE_NUM_SLOTS_REGRESSION": &c.NumSlotsRegression,
	} {
		if err := setInt(key, dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("GRADEPLANE_PASS_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid GRADEPLANE_PASS_THRESHOLD: %w", err)
		}
		c.PassThreshold = f
	}

	return nil
}

// WebhookURL assembles the URL installed on provisioned repositories.
func (c *Config) WebhookURL() string {
	return fmt.Sprintf("%s:%d/webhook", c.BackendURL, c.BackendPort)
}
