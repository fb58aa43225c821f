package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the harness configuration
type Config struct {
	Environment    string               `toml:"environment"`
	Dashboard      DashboardConfig      `toml:"dashboard"`
	StorageService StorageServiceConfig `toml:"storage_service"`
	Browser        BrowserConfig        `toml:"browser"`
	Timing         TimingConfig         `toml:"timing"`
	Server         ServerConfig         `toml:"server"`
	Vocabulary     VocabularyConfig     `toml:"vocabulary"`
	Paths          PathsConfig          `toml:"paths"`
	Metadata       MetadataConfig       `toml:"metadata"`
	Logging        LoggingConfig        `toml:"logging"`
}

// DashboardConfig addresses the Archivematica dashboard under test
type DashboardConfig struct {
	URL      string `toml:"url" validate:"required,url"`
	Username string `toml:"username" validate:"required"`
	Password string `toml:"password" validate:"required"`
	Email    string `toml:"email" validate:"omitempty,email"`
	Version  string `toml:"version" validate:"required,oneof=1.6 1.7"`
	APIKey   string `toml:"api_key"`
}

// StorageServiceConfig addresses the Storage Service paired with the dashboard
type StorageServiceConfig struct {
	URL      string `toml:"url" validate:"required,url"`
	Username string `toml:"username" validate:"required"`
	Password string `toml:"password" validate:"required"`
	APIKey   string `toml:"api_key"`
}

// BrowserConfig controls the remote-controlled Chrome instance
type BrowserConfig struct {
	Headless     bool   `toml:"headless"`
	RemoteURL    string `toml:"remote_url" validate:"omitempty,url"` // DevTools websocket URL of an already running browser
	ExecPath     string `toml:"exec_path"`
	NoSandbox    bool   `toml:"no_sandbox"`
	DisableGPU   bool   `toml:"disable_gpu"`
	WindowWidth  int    `toml:"window_width" validate:"gte=0"`
	WindowHeight int    `toml:"window_height" validate:"gte=0"`
	UserAgent    string `toml:"user_agent"`
}

// TimingConfig holds every poll interval, timeout and attempt ceiling
type TimingConfig struct {
	ElementTimeout         Duration `toml:"element_timeout"`
	WaitPollInterval       Duration `toml:"wait_poll_interval"`
	GroupPollInterval      Duration `toml:"group_poll_interval"`
	JobPollInterval        Duration `toml:"job_poll_interval"`
	VisibilityPollInterval Duration `toml:"visibility_poll_interval"`
	DecisionRetryInterval  Duration `toml:"decision_retry_interval"`
	JobSettleDelay         Duration `toml:"job_settle_delay"`
	UnitAppearInterval     Duration `toml:"unit_appear_interval"`
	UnitAppearMaxPolls     int      `toml:"unit_appear_max_polls" validate:"gt=0"`
	DirectoryNavMaxTries   int      `toml:"directory_nav_max_tries" validate:"gt=0"`
	DownloadMaxAttempts    int      `toml:"download_max_attempts" validate:"gt=0"`
	DownloadRetryInterval  Duration `toml:"download_retry_interval"`
	ArchivalStorageMaxWait Duration `toml:"archival_storage_max_wait"`
	StaleRetryLimit        int      `toml:"stale_retry_limit" validate:"gte=0"` // 0 = unbounded
	HTTPTimeout            Duration `toml:"http_timeout"`
	HTTPRateLimit          int      `toml:"http_rate_limit" validate:"gt=0"` // requests per second
}

// ServerConfig describes shell access to the host running the dashboard
type ServerConfig struct {
	User                string `toml:"user"`
	Password            string `toml:"password"`
	SSHAccessible       bool   `toml:"ssh_accessible"`
	SSHRequiresPassword bool   `toml:"ssh_requires_password"`
	SSHIdentityFile     string `toml:"ssh_identity_file"`
}

// VocabularyConfig controls the microservice to group reference table
type VocabularyConfig struct {
	File         string `toml:"file"`          // optional TOML overlay on the embedded table
	StrictGroups bool   `toml:"strict_groups"` // ambiguous microservice names become errors
}

// PathsConfig holds local filesystem locations
type PathsConfig struct {
	TmpDir       string `toml:"tmp_dir" validate:"required"`
	ArtifactsDir string `toml:"artifacts_dir" validate:"required"`
}

// MetadataConfig holds the values used when filling metadata forms
type MetadataConfig struct {
	Attributes []string `toml:"attributes"`
	DummyValue string   `toml:"dummy_value"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
	Dir    string   `toml:"dir"`    // defaults to <executable dir>/logs
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Dashboard: DashboardConfig{
			URL:      "http://192.168.168.192/",
			Username: "test",
			Password: "testtest",
			Email:    "test@example.com",
			Version:  "1.6",
		},
		StorageService: StorageServiceConfig{
			URL:      "http://192.168.168.192:8000/",
			Username: "test",
			Password: "test",
		},
		Browser: BrowserConfig{
			Headless:     true,
			NoSandbox:    true,
			DisableGPU:   true,
			WindowWidth:  1280,
			WindowHeight: 1024,
		},
		Timing: TimingConfig{
			ElementTimeout:         Duration{5 * time.Second},
			WaitPollInterval:       Duration{250 * time.Millisecond},
			GroupPollInterval:      Duration{500 * time.Millisecond},
			JobPollInterval:        Duration{500 * time.Millisecond},
			VisibilityPollInterval: Duration{250 * time.Millisecond},
			DecisionRetryInterval:  Duration{500 * time.Millisecond},
			JobSettleDelay:         Duration{time.Second},
			UnitAppearInterval:     Duration{500 * time.Millisecond},
			UnitAppearMaxPolls:     200,
			DirectoryNavMaxTries:   5,
			DownloadMaxAttempts:    20,
			DownloadRetryInterval:  Duration{time.Second},
			ArchivalStorageMaxWait: Duration{2 * time.Minute},
			StaleRetryLimit:        0,
			HTTPTimeout:            Duration{60 * time.Second},
			HTTPRateLimit:          10,
		},
		Server: ServerConfig{
			User:          "vagrant",
			Password:      "vagrant",
			SSHAccessible: true,
		},
		Paths: PathsConfig{
			TmpDir:       ".amsc-tmp",
			ArtifactsDir: "./artifacts",
		},
		Metadata: MetadataConfig{
			Attributes: []string{"title", "creator"},
			DummyValue: "Dummy text.",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// Validate checks the configuration struct tags
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies AMSC_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("AMSC_ENV"); env != "" {
		config.Environment = env
	}

	// Dashboard
	setString(&config.Dashboard.URL, "AMSC_AM_URL")
	setString(&config.Dashboard.Username, "AMSC_AM_USERNAME")
	setString(&config.Dashboard.Password, "AMSC_AM_PASSWORD")
	setString(&config.Dashboard.Version, "AMSC_AM_VERSION")
	setString(&config.Dashboard.APIKey, "AMSC_AM_API_KEY")

	// Storage Service
	setString(&config.StorageService.URL, "AMSC_SS_URL")
	setString(&config.StorageService.Username, "AMSC_SS_USERNAME")
	setString(&config.StorageService.Password, "AMSC_SS_PASSWORD")
	setString(&config.StorageService.APIKey, "AMSC_SS_API_KEY")

	// Browser
	setBool(&config.Browser.Headless, "AMSC_BROWSER_HEADLESS")
	setString(&config.Browser.RemoteURL, "AMSC_BROWSER_REMOTE_URL")
	setString(&config.Browser.ExecPath, "AMSC_BROWSER_EXEC_PATH")

	// Timing
	if timeout := os.Getenv("AMSC_ELEMENT_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Timing.ElementTimeout = Duration{d}
		}
	}

	// Server
	setString(&config.Server.User, "AMSC_SERVER_USER")
	setString(&config.Server.Password, "AMSC_SERVER_PASSWORD")
	setBool(&config.Server.SSHAccessible, "AMSC_SSH_ACCESSIBLE")
	setBool(&config.Server.SSHRequiresPassword, "AMSC_SSH_REQUIRES_PASSWORD")

	// Paths and vocabulary
	setString(&config.Paths.TmpDir, "AMSC_TMP_DIR")
	setString(&config.Paths.ArtifactsDir, "AMSC_ARTIFACTS_DIR")
	setString(&config.Vocabulary.File, "AMSC_VOCABULARY_FILE")
	setBool(&config.Vocabulary.StrictGroups, "AMSC_STRICT_GROUPS")

	// Logging
	setString(&config.Logging.Level, "AMSC_LOG_LEVEL")
	if output := os.Getenv("AMSC_LOG_OUTPUT"); output != "" {
		var outputs []string
		for _, o := range strings.Split(output, ",") {
			if o = strings.TrimSpace(o); o != "" {
				outputs = append(outputs, o)
			}
		}
		config.Logging.Output = outputs
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// IsSSURL reports whether url is served by the configured Storage Service
func (c *Config) IsSSURL(url string) bool {
	return strings.HasPrefix(url, c.StorageService.URL)
}
