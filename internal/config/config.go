// Package config loads harvester configuration from command-line flags,
// environment variables and .env files.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/animap/harvester/internal/domain"
	herrors "github.com/animap/harvester/internal/errors"
	"github.com/animap/harvester/internal/validation"
)

// Config holds the configuration of one harvest run.
type Config struct {
	App         AppConfig
	Logger      LoggerConfig
	Harvest     HarvestConfig
	Paths       PathsConfig
	Fetch       FetchConfig
	Credentials CredentialsConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `flag:"env" validate:"oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `flag:"log-level" validate:"oneof=debug info warn error"`
}

// HarvestConfig selects what to harvest and how.
type HarvestConfig struct {
	Target        string        `flag:"target" validate:"required,target"`
	Mode          string        `flag:"mode" validate:"mode"`
	Freshness     time.Duration `flag:"freshness" validate:"gt=0"`
	Workers       int           `flag:"workers" validate:"gte=1,lte=64"`
	BatchSize     int           `flag:"batch-size" validate:"gte=1"`
	ProgressEvery int           `flag:"progress-every" validate:"gte=1"`
	YearStart     int           `flag:"year-start" validate:"gte=1900"`
	YearEnd       int           `flag:"year-end" validate:"gtefield=YearStart"`
	// Reset discards the checkpoint before the run starts.
	Reset bool `flag:"reset"`
}

// PathsConfig holds filesystem locations. Empty index and run log paths
// default to files under the output directory.
type PathsConfig struct {
	Output   string `flag:"output" validate:"required"`
	StateDir string `flag:"state-dir" validate:"required"`
	Index    string `flag:"index-path"`
	RunLog   string `flag:"runlog-path"`
}

// FetchConfig holds the retry policy and request timeout.
type FetchConfig struct {
	ThrottleCooldown   time.Duration `flag:"throttle-cooldown" validate:"gte=0"`
	TransientBackoff   time.Duration `flag:"transient-backoff" validate:"gte=0"`
	MaxAttempts        int           `flag:"max-attempts" validate:"gte=1"`
	MaxThrottleRetries int           `flag:"max-throttle-retries" validate:"gte=0"`
	RequestTimeout     time.Duration `flag:"request-timeout" validate:"gt=0"`
}

// CredentialsConfig holds source credentials. They are read from the
// environment only.
type CredentialsConfig struct {
	AniListToken  string
	SimklClientID string
}

// Target returns the parsed harvest target.
func (c *Config) Target() domain.Target {
	t, _ := domain.ParseTarget(c.Harvest.Target)
	return t
}

// Mode returns the parsed run mode.
func (c *Config) Mode() domain.Mode {
	m, _ := domain.ParseMode(c.Harvest.Mode)
	return m
}

// LoadConfig loads configuration from the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("harvest", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")

	target := fs.String("target", "", "Harvest target <catalog>-<kind> (default: anilist-anime)")
	mode := fs.String("mode", "", "Run mode: update or force (default: update)")
	freshness := fs.String("freshness", "", "Records younger than this are skipped in update mode (default: 168h)")
	workers := fs.String("workers", "", "Concurrent detail fetches (default: 4)")
	batchSize := fs.String("batch-size", "", "Identifiers per checkpointed detail batch (default: 50)")
	progressEvery := fs.String("progress-every", "", "Log progress every N detail items (default: 50)")
	yearStart := fs.String("year-start", "", "First year of the discovery year sweep (default: 2000)")
	yearEnd := fs.String("year-end", "", "Last year of the discovery year sweep (default: next year)")
	reset := fs.String("reset", "", "Discard the checkpoint and start over (default: false)")

	output := fs.String("output", "", "Record output directory (default: media_database)")
	stateDir := fs.String("state-dir", "", "Checkpoint directory (default: .)")
	indexPath := fs.String("index-path", "", "Cross-reference index directory (default: {output}/.index)")
	runlogPath := fs.String("runlog-path", "", "Run history database (default: {output}/runs.db)")

	throttleCooldown := fs.String("throttle-cooldown", "", "Wait after a rate-limit response (default: 60s)")
	transientBackoff := fs.String("transient-backoff", "", "Base wait after a transient failure (default: 10s)")
	maxAttempts := fs.String("max-attempts", "", "Attempts per request for transient failures (default: 3)")
	maxThrottleRetries := fs.String("max-throttle-retries", "", "Cap on rate-limit retries, 0 for none (default: 0)")
	requestTimeout := fs.String("request-timeout", "", "Per-request timeout (default: 20s)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, herrors.Configuration(err.Error())
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	p := parser{}
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: strings.ToLower(getConfigValue(*logLevel, "LOG_LEVEL", "info")),
		},
		Harvest: HarvestConfig{
			Target:        strings.ToLower(getConfigValue(*target, "TARGET_SERVICE", "anilist-anime")),
			Mode:          strings.ToLower(getConfigValue(*mode, "SCRAPE_MODE", string(domain.ModeUpdate))),
			Freshness:     p.duration("freshness", getConfigValue(*freshness, "FRESHNESS", "168h")),
			Workers:       p.int("workers", getConfigValue(*workers, "DETAIL_WORKERS", "4")),
			BatchSize:     p.int("batch-size", getConfigValue(*batchSize, "DETAIL_BATCH_SIZE", "50")),
			ProgressEvery: p.int("progress-every", getConfigValue(*progressEvery, "PROGRESS_EVERY", "50")),
			YearStart:     p.int("year-start", getConfigValue(*yearStart, "DISCOVERY_YEAR_START", "2000")),
			YearEnd: p.int("year-end", getConfigValue(*yearEnd, "DISCOVERY_YEAR_END",
				strconv.Itoa(time.Now().Year()+1))),
			Reset: getBoolConfigValue(*reset, "RESET_CHECKPOINT", false),
		},
		Paths: PathsConfig{
			Output:   getConfigValue(*output, "OUTPUT_DIR", "media_database"),
			StateDir: getConfigValue(*stateDir, "STATE_DIR", "."),
			Index:    getConfigValue(*indexPath, "INDEX_PATH", ""),
			RunLog:   getConfigValue(*runlogPath, "RUNLOG_PATH", ""),
		},
		Fetch: FetchConfig{
			ThrottleCooldown:   p.duration("throttle-cooldown", getConfigValue(*throttleCooldown, "THROTTLE_COOLDOWN", "60s")),
			TransientBackoff:   p.duration("transient-backoff", getConfigValue(*transientBackoff, "TRANSIENT_BACKOFF", "10s")),
			MaxAttempts:        p.int("max-attempts", getConfigValue(*maxAttempts, "MAX_ATTEMPTS", "3")),
			MaxThrottleRetries: p.int("max-throttle-retries", getConfigValue(*maxThrottleRetries, "MAX_THROTTLE_RETRIES", "0")),
			RequestTimeout:     p.duration("request-timeout", getConfigValue(*requestTimeout, "REQUEST_TIMEOUT", "20s")),
		},
		Credentials: CredentialsConfig{
			AniListToken:  os.Getenv("ANILIST_TOKEN"),
			SimklClientID: os.Getenv("SIMKL_CLIENT_ID"),
		},
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, herrors.Configurationf("invalid path: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and the credentials the target needs.
func (c *Config) Validate() error {
	if err := validation.New().Validate(c); err != nil {
		return err
	}
	if c.Target().Catalog == domain.CatalogSimkl && strings.TrimSpace(c.Credentials.SimklClientID) == "" {
		return herrors.Configuration("SIMKL_CLIENT_ID is required for simkl targets")
	}
	return nil
}

// parser converts strings and keeps the first failure.
type parser struct {
	err error
}

func (p *parser) duration(name, s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil && p.err == nil {
		p.err = herrors.Configurationf("invalid %s %q: %v", name, s, err)
	}
	return d
}

func (p *parser) int(name, s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil && p.err == nil {
		p.err = herrors.Configurationf("invalid %s %q: not an integer", name, s)
	}
	return n
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is used.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		path = defaultPath
	}
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return filepath.Clean(absPath), nil
}

// expandPaths resolves every path; the index and run log default to
// {output}/.index and {output}/runs.db.
func (c *Config) expandPaths() error {
	var err error
	if c.Paths.Output, err = expandPath(c.Paths.Output, ""); err != nil {
		return err
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir, ""); err != nil {
		return err
	}
	if c.Paths.Index, err = expandPath(c.Paths.Index, filepath.Join(c.Paths.Output, ".index")); err != nil {
		return err
	}
	if c.Paths.RunLog, err = expandPath(c.Paths.RunLog, filepath.Join(c.Paths.Output, "runs.db")); err != nil {
		return err
	}
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	s := getConfigValue(flagValue, envKey, "")
	if s == "" {
		return defaultValue
	}
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Real environment variables win over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
