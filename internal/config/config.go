// Package config loads kirosync settings from a YAML file, environment
// variables, and defaults, in that order of increasing precedence for the
// token and decreasing for everything else (explicit file values win).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kirosync/kirosync/internal/github"
)

// DefaultPath is where Load looks when no --config flag is given.
const DefaultPath = ".kirosync/config.yaml"

// Config holds every tunable the sync engine and client need.
type Config struct {
	// Repository is the target in "owner/repo" form.
	Repository string `mapstructure:"repository"`

	// Token authenticates against the GitHub API. Usually left out of the
	// file and supplied via KIROSYNC_TOKEN or GITHUB_TOKEN.
	Token string `mapstructure:"token"`

	// APIBaseURL overrides the GitHub API endpoint, for GitHub Enterprise.
	APIBaseURL string `mapstructure:"api_base_url"`

	// SpecDirs are the directories scanned for task markdown files.
	SpecDirs []string `mapstructure:"spec_dirs"`

	// StatePath is the sync-state JSON file location.
	StatePath string `mapstructure:"state_path"`

	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	RateLimitBuffer int           `mapstructure:"rate_limit_buffer"`

	// Debounce is the quiet period in watch mode before a changed file
	// triggers a sync run.
	Debounce time.Duration `mapstructure:"debounce"`
}

// Default returns a config with every field at its built-in default. The
// repository and token still have to come from the file or environment.
func Default() *Config {
	return &Config{
		APIBaseURL:      github.DefaultAPIEndpoint,
		SpecDirs:        []string{".kiro/specs"},
		StatePath:       ".kirosync/sync-state.json",
		MaxRetries:      github.DefaultMaxRetries,
		RetryDelay:      github.DefaultRetryDelay,
		RateLimitBuffer: github.DefaultRateLimitBuffer,
		Debounce:        2 * time.Second,
	}
}

// Load reads the config file at path, falling back to defaults for missing
// keys. A missing file is not an error; a malformed one is. The token is
// resolved from the environment when the file leaves it empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("api_base_url", cfg.APIBaseURL)
	v.SetDefault("spec_dirs", cfg.SpecDirs)
	v.SetDefault("state_path", cfg.StatePath)
	v.SetDefault("max_retries", cfg.MaxRetries)
	v.SetDefault("retry_delay", cfg.RetryDelay)
	v.SetDefault("rate_limit_buffer", cfg.RateLimitBuffer)
	v.SetDefault("debounce", cfg.Debounce)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			// No file: run on defaults plus environment.
		} else {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Token == "" {
		cfg.Token = tokenFromEnv()
	}

	return cfg, nil
}

// tokenFromEnv checks the tool-specific variable first, then the
// conventional one that gh and CI runners already export.
func tokenFromEnv() string {
	if tok := os.Getenv("KIROSYNC_TOKEN"); tok != "" {
		return tok
	}
	return os.Getenv("GITHUB_TOKEN")
}

// Validate reports configuration problems. Callers can print them all at
// once rather than failing on the first.
func (c *Config) Validate() []string {
	var issues []string

	owner, repo, err := c.SplitRepository()
	if err != nil {
		issues = append(issues, err.Error())
	} else if owner == "" || repo == "" {
		issues = append(issues, fmt.Sprintf("repository: %q must be in owner/repo form", c.Repository))
	}

	if c.Token == "" {
		issues = append(issues, "token: not set (use the config file, KIROSYNC_TOKEN, or GITHUB_TOKEN)")
	}
	if len(c.SpecDirs) == 0 {
		issues = append(issues, "spec_dirs: at least one directory is required")
	}
	if c.StatePath == "" {
		issues = append(issues, "state_path: must not be empty")
	}
	if c.MaxRetries < 0 {
		issues = append(issues, fmt.Sprintf("max_retries: %d must not be negative", c.MaxRetries))
	}
	if c.RetryDelay < 0 {
		issues = append(issues, fmt.Sprintf("retry_delay: %s must not be negative", c.RetryDelay))
	}
	if c.RateLimitBuffer < 0 {
		issues = append(issues, fmt.Sprintf("rate_limit_buffer: %d must not be negative", c.RateLimitBuffer))
	}
	if c.Debounce <= 0 {
		issues = append(issues, fmt.Sprintf("debounce: %s must be positive", c.Debounce))
	}

	return issues
}

// SplitRepository parses the "owner/repo" target.
func (c *Config) SplitRepository() (owner, repo string, err error) {
	if c.Repository == "" {
		return "", "", fmt.Errorf("repository: not set")
	}
	parts := strings.Split(c.Repository, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository: %q must be in owner/repo form", c.Repository)
	}
	return parts[0], parts[1], nil
}

// NewClient builds a GitHub client from the config.
func (c *Config) NewClient() (*github.Client, error) {
	owner, repo, err := c.SplitRepository()
	if err != nil {
		return nil, err
	}

	client := github.NewClient(c.Token, owner, repo).
		WithRetry(c.MaxRetries, c.RetryDelay).
		WithRateLimitBuffer(c.RateLimitBuffer)
	if c.APIBaseURL != "" && c.APIBaseURL != github.DefaultAPIEndpoint {
		client = client.WithBaseURL(c.APIBaseURL)
	}
	return client, nil
}
