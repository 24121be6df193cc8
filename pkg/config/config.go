// Package config loads the YAML configuration of an outreach run.
//
// Values are layered: DefaultConfig, then the YAML file, then environment
// variables for credentials, then command-line flags applied by the caller.
// Validate must pass before a Config is handed to the engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the full configuration of the outreach engine
type Config struct {
	Run       RunConfig      `yaml:"run" json:"run"`
	Browser   BrowserConfig  `yaml:"browser" json:"browser"`
	Composer  ComposerConfig `yaml:"composer" json:"composer"`
	Gate      GateConfig     `yaml:"gate" json:"gate"`
	LLM       LLMConfig      `yaml:"llm" json:"llm"`
	Ledger    LedgerConfig   `yaml:"ledger" json:"ledger"`
	Logging   LoggingConfig  `yaml:"logging" json:"logging"`
	Artifacts ArtifactConfig `yaml:"artifacts" json:"artifacts"`
}

// RunConfig controls batching, retries and quota.
type RunConfig struct {
	BatchSize  int `yaml:"batch_size" json:"batch_size"`
	MaxRetries int `yaml:"max_retries" json:"max_retries"` // attempts per batch, including the first

	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`

	// DailyLimit caps sends per local calendar day. Zero or less disables the cap.
	DailyLimit int `yaml:"daily_limit" json:"daily_limit"`

	// Resume continues after the last processed row of the latest run of the same file
	Resume bool `yaml:"resume" json:"resume"`

	// Instructions steer message generation (tone, offer, sign-off)
	Instructions string `yaml:"instructions" json:"instructions"`
}

// BrowserConfig controls the browser session owned by each batch.
type BrowserConfig struct {
	Headless bool `yaml:"headless" json:"headless"`

	// UserDataDir keeps cookies between runs so the operator stays logged in.
	// Empty means an ephemeral profile.
	UserDataDir string `yaml:"user_data_dir" json:"user_data_dir"`

	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	ViewportWidth  int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height" json:"viewport_height"`
	Args           []string      `yaml:"args" json:"args"`

	// AllowedURLs are glob patterns a profile URL must match before navigation
	AllowedURLs []string `yaml:"allowed_urls" json:"allowed_urls"`
}

// Range is an inclusive duration range used for human pacing pauses.
type Range struct {
	Min time.Duration `yaml:"min" json:"min"`
	Max time.Duration `yaml:"max" json:"max"`
}

// ComposerConfig describes the target site's messaging UI. Selectors are
// configuration rather than contract; they are expected to drift.
type ComposerConfig struct {
	// ComposerURL is the composer address; "{id}" is replaced by the messaging id
	ComposerURL string `yaml:"composer_url" json:"composer_url"`

	ContentRegion         string `yaml:"content_region" json:"content_region"` // element name whose text is extracted
	SubjectSelector       string `yaml:"subject_selector" json:"subject_selector"`
	BodySelector          string `yaml:"body_selector" json:"body_selector"`
	SendSelector          string `yaml:"send_selector" json:"send_selector"`
	EmailModeSelector     string `yaml:"email_mode_selector" json:"email_mode_selector"`
	ChannelToggleSelector string `yaml:"channel_toggle_selector" json:"channel_toggle_selector"`
	NoAddressSelector     string `yaml:"no_address_selector" json:"no_address_selector"`
	RecipientSelector     string `yaml:"recipient_selector" json:"recipient_selector"`

	// ChunkSize is the number of characters typed per burst
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// FixedSubject, when set, is used instead of a generated subject
	FixedSubject string `yaml:"fixed_subject" json:"fixed_subject"`

	NavigationPause Range `yaml:"navigation_pause" json:"navigation_pause"`
	ComposePause    Range `yaml:"compose_pause" json:"compose_pause"`
	KeystrokePause  Range `yaml:"keystroke_pause" json:"keystroke_pause"`
}

// GateConfig controls the human confirmation step before each send.
type GateConfig struct {
	Enabled    bool          `yaml:"enabled" json:"enabled"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	ConfirmKey string        `yaml:"confirm_key" json:"confirm_key"`
	SkipKey    string        `yaml:"skip_key" json:"skip_key"`
}

// LLMConfig configures the OpenAI-compatible provider used for generation.
type LLMConfig struct {
	Model   string `yaml:"model" json:"model"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	APIKey  string `yaml:"api_key" json:"-"`

	// MaxInputTokens truncates extracted page text before it is sent
	MaxInputTokens int `yaml:"max_input_tokens" json:"max_input_tokens"`

	// Temperature is left to the provider default when unset
	Temperature *float64 `yaml:"temperature" json:"temperature,omitempty"`

	// Timeout bounds each completion request; zero means no limit
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// LedgerConfig locates the SQLite audit database.
type LedgerConfig struct {
	Path string `yaml:"path" json:"path"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level" json:"level"`
	// Dir overrides ~/.inreach/logs
	Dir string `yaml:"dir" json:"dir"`
}

// ArtifactConfig defines the run summary files written when a run ends
type ArtifactConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`
}

// DefaultConfig returns a configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			BatchSize:    10,
			MaxRetries:   3,
			RetryBackoff: 30 * time.Second,
			DailyLimit:   50,
		},
		Browser: BrowserConfig{
			Headless:       false,
			Timeout:        30 * time.Second,
			ViewportWidth:  1280,
			ViewportHeight: 900,
			Args:           []string{"--disable-gpu", "--no-sandbox", "--start-maximized"},
			AllowedURLs:    []string{"https://www.linkedin.com/*", "https://linkedin.com/*"},
		},
		Composer: ComposerConfig{
			ComposerURL:           "https://www.linkedin.com/talent/profile/{id}?rightRail=composer",
			ContentRegion:         "main",
			SubjectSelector:       "input[aria-label='Message subject'][placeholder='Add a subject']",
			BodySelector:          ".ql-editor[contenteditable='true']",
			SendSelector:          "button[data-live-test-messaging-submit-btn]",
			EmailModeSelector:     "[data-live-test-compose-email-mode]",
			ChannelToggleSelector: "button[data-live-test-compose-switch-to-email]",
			NoAddressSelector:     "[data-live-test-compose-no-email-on-file]",
			RecipientSelector:     "input[data-live-test-compose-recipient-email]",
			ChunkSize:             20,
			NavigationPause:       Range{Min: 2 * time.Second, Max: 5 * time.Second},
			ComposePause:          Range{Min: 10 * time.Second, Max: 20 * time.Second},
			KeystrokePause:        Range{Min: 50 * time.Millisecond, Max: 200 * time.Millisecond},
		},
		Gate: GateConfig{
			Enabled:    false,
			Timeout:    5 * time.Minute,
			ConfirmKey: "Enter",
			SkipKey:    "Backspace",
		},
		LLM: LLMConfig{
			Model:          "gpt-4o-mini",
			MaxInputTokens: 6000,
			Timeout:        2 * time.Minute,
		},
		Ledger: LedgerConfig{
			Path: "run_history.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Artifacts: ArtifactConfig{
			Enabled:   true,
			OutputDir: ".inreach/artifacts",
		},
	}
}

// Load reads a YAML file on top of DefaultConfig. An empty path returns the
// defaults. Credentials missing from the file are taken from the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv fills LLM credentials from OPENAI_API_KEY and OPENAI_BASE_URL when
// they are not configured.
func (c *Config) ApplyEnv() {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Run.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("run.batch_size must be positive, got %d", c.Run.BatchSize))
	}
	if c.Run.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("run.max_retries must be positive, got %d", c.Run.MaxRetries))
	}
	if c.Run.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("run.retry_backoff cannot be negative"))
	}

	if c.Browser.Timeout < 0 {
		errs = append(errs, fmt.Errorf("browser.timeout cannot be negative"))
	}

	if !strings.Contains(c.Composer.ComposerURL, "{id}") {
		errs = append(errs, fmt.Errorf("composer.composer_url must contain {id}"))
	}
	if c.Composer.BodySelector == "" || c.Composer.SendSelector == "" {
		errs = append(errs, fmt.Errorf("composer.body_selector and composer.send_selector are required"))
	}
	if c.Composer.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("composer.chunk_size must be positive, got %d", c.Composer.ChunkSize))
	}
	for name, r := range map[string]Range{
		"navigation_pause": c.Composer.NavigationPause,
		"compose_pause":    c.Composer.ComposePause,
		"keystroke_pause":  c.Composer.KeystrokePause,
	} {
		if r.Min < 0 || r.Max < r.Min {
			errs = append(errs, fmt.Errorf("composer.%s must satisfy 0 <= min <= max", name))
		}
	}

	if c.Gate.Enabled {
		if c.Gate.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("gate.timeout must be positive when the gate is enabled"))
		}
		if c.Gate.ConfirmKey == "" || c.Gate.SkipKey == "" {
			errs = append(errs, fmt.Errorf("gate.confirm_key and gate.skip_key are required"))
		}
		if c.Gate.ConfirmKey == c.Gate.SkipKey {
			errs = append(errs, fmt.Errorf("gate.confirm_key and gate.skip_key must differ"))
		}
	}

	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2, got %g", *t))
	}
	if c.LLM.Timeout < 0 {
		errs = append(errs, fmt.Errorf("llm.timeout cannot be negative"))
	}

	if c.Ledger.Path == "" {
		errs = append(errs, fmt.Errorf("ledger.path is required"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid logging level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// ComposerURLFor returns the composer address for a messaging id.
func (c *Config) ComposerURLFor(messagingID string) string {
	return strings.ReplaceAll(c.Composer.ComposerURL, "{id}", messagingID)
}
