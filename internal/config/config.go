package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Browser launch modes
const (
	BrowserModeExec   = "exec"
	BrowserModeDocker = "docker"
)

// Config holds all service configuration
type Config struct {
	Server   ServerConfig
	Logging  LogConfig
	Scratch  ScratchConfig
	Browser  BrowserConfig
	Artifact ArtifactConfig
	Job      JobConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOST" default:""`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// ScratchConfig says where job scripts are written before loading
type ScratchConfig struct {
	Dir string `envconfig:"SCRATCH_DIR"`
}

// BrowserConfig holds sandbox launch configuration
type BrowserConfig struct {
	Mode         string        `envconfig:"BROWSER_MODE" default:"exec"`
	ChromePath   string        `envconfig:"CHROME_PATH"`
	Image        string        `envconfig:"BROWSER_IMAGE" default:"browserless/chrome:latest"`
	WindowWidth  int           `envconfig:"BROWSER_WINDOW_WIDTH" default:"1280"`
	WindowHeight int           `envconfig:"BROWSER_WINDOW_HEIGHT" default:"800"`
	ReadyTimeout time.Duration `envconfig:"BROWSER_READY_TIMEOUT" default:"10s"`
	NoSandbox    bool          `envconfig:"BROWSER_NO_SANDBOX" default:"true"`
}

// ArtifactConfig holds the upload destination. An empty bucket disables uploads.
type ArtifactConfig struct {
	Bucket        string `envconfig:"BUCKET_NAME"`
	Region        string `envconfig:"AWS_REGION" default:"us-east-1"`
	PublicBaseURL string `envconfig:"ARTIFACT_PUBLIC_BASE_URL"`
	Prefix        string `envconfig:"ARTIFACT_PREFIX" default:"chromeserver"`
}

// JobConfig holds per-invocation limits
type JobConfig struct {
	// Timeout of zero leaves invocations unbounded
	Timeout time.Duration `envconfig:"JOB_TIMEOUT" default:"0s"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Scratch.Dir == "" {
		cfg.Scratch.Dir = os.TempDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when the environment is empty
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Port: "8080"},
		Logging: LogConfig{Level: "info"},
		Scratch: ScratchConfig{Dir: os.TempDir()},
		Browser: BrowserConfig{
			Mode:         BrowserModeExec,
			Image:        "browserless/chrome:latest",
			WindowWidth:  1280,
			WindowHeight: 800,
			ReadyTimeout: 10 * time.Second,
			NoSandbox:    true,
		},
		Artifact: ArtifactConfig{
			Region: "us-east-1",
			Prefix: "chromeserver",
		},
	}
}

// Validate rejects configurations the service cannot start with
func (c *Config) Validate() error {
	switch c.Browser.Mode {
	case BrowserModeExec, BrowserModeDocker:
	default:
		return fmt.Errorf("config invalid: BROWSER_MODE must be %q or %q, got %q", BrowserModeExec, BrowserModeDocker, c.Browser.Mode)
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("config invalid: browser window must be positive, got %dx%d", c.Browser.WindowWidth, c.Browser.WindowHeight)
	}
	if c.Browser.ReadyTimeout <= 0 {
		return fmt.Errorf("config invalid: BROWSER_READY_TIMEOUT must be positive")
	}
	if c.Job.Timeout < 0 {
		return fmt.Errorf("config invalid: JOB_TIMEOUT must not be negative")
	}
	if c.Artifact.Prefix == "" {
		return fmt.Errorf("config invalid: ARTIFACT_PREFIX must not be empty")
	}
	return nil
}
