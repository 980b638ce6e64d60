// Package config holds the CLI configuration: flag parsing plus an optional
// YAML file whose values fill in anything not set on the command line.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/urlsentry/urlsentry/pkg/duration"
)

// Config holds all runtime options.
type Config struct {
	// Classification service
	ClassifyEndpoint string
	ScanTimeout      time.Duration
	Concurrency      int
	RateLimit        float64

	// Transports
	PushURL      string
	PollURL      string
	StatsURL     string
	PollInterval time.Duration
	BridgeListen string
	BridgeOrigin string

	// Dashboard state
	FeedCapacity int
	SettingsPath string

	// Observability
	MetricsAddr  string
	OTelEndpoint string
	OTelInsecure bool

	// Output
	Verbose bool
	NoColor bool

	// ConfigFile is the YAML file the rest was merged from, if any.
	ConfigFile string
}

// ParseFlags parses command line arguments, merging a YAML config file under
// them when -config is given. Flags win over file values, including flags
// explicitly set to their default.
func ParseFlags() (*Config, error) {
	cfg := &Config{}

	flag.StringVar(&cfg.ClassifyEndpoint, "classify", "", "Classification service endpoint URL")
	flag.DurationVar(&cfg.ScanTimeout, "scan-timeout", duration.Classify, "Per-scan timeout")
	flag.IntVar(&cfg.Concurrency, "concurrency", 5, "Max simultaneous classification calls")
	flag.IntVar(&cfg.Concurrency, "c", 5, "Max simultaneous classification calls (alias)")
	flag.Float64Var(&cfg.RateLimit, "rate-limit", 0, "Outbound classification calls per second (0 = unlimited)")
	flag.Float64Var(&cfg.RateLimit, "rl", 0, "Rate limit (alias)")

	flag.StringVar(&cfg.PushURL, "push", "", "WebSocket push endpoint (ws:// or wss://)")
	flag.StringVar(&cfg.PollURL, "poll", "", "REST recent-scans endpoint")
	flag.StringVar(&cfg.StatsURL, "stats", "", "REST cumulative-stats endpoint")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", duration.PollInterval, "Polling cadence")
	flag.StringVar(&cfg.BridgeListen, "bridge-listen", "", "HTTP intake address for extension bridge messages (empty = disabled)")
	flag.StringVar(&cfg.BridgeOrigin, "bridge-origin", "", "Origin allowed to post bridge messages (empty = any)")

	flag.IntVar(&cfg.FeedCapacity, "feed-capacity", 100, "Max visible feed entries")
	flag.StringVar(&cfg.SettingsPath, "settings", defaultSettingsPath(), "Settings snapshot file")

	flag.StringVar(&cfg.MetricsAddr, "metrics", "", "Prometheus listen address (empty = disabled)")
	flag.StringVar(&cfg.OTelEndpoint, "otel", "", "OTLP/gRPC trace endpoint (empty = disabled)")
	flag.BoolVar(&cfg.OTelInsecure, "otel-insecure", false, "Disable TLS on the OTLP exporter")

	flag.BoolVar(&cfg.Verbose, "verbose", false, "Verbose output")
	flag.BoolVar(&cfg.Verbose, "v", false, "Verbose (alias)")
	flag.BoolVar(&cfg.NoColor, "no-color", false, "Disable colored output")
	flag.StringVar(&cfg.ConfigFile, "config", "", "YAML config file")

	flag.Parse()

	seen := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { seen[f.Name] = true })

	if cfg.ConfigFile != "" {
		if err := cfg.mergeFile(cfg.ConfigFile, seen); err != nil {
			return nil, err
		}
	}

	if cfg.ClassifyEndpoint == "" {
		return nil, fmt.Errorf("%w: classify endpoint (use -classify or config file)", ErrMissingRequired)
	}
	return cfg, nil
}

// fileConfig is the YAML shape of the config file. Durations are strings in
// Go syntax ("30s", "2m") so the file stays hand-editable.
type fileConfig struct {
	ClassifyEndpoint string  `yaml:"classify_endpoint"`
	ScanTimeout      string  `yaml:"scan_timeout"`
	Concurrency      int     `yaml:"concurrency"`
	RateLimit        float64 `yaml:"rate_limit"`

	PushURL      string `yaml:"push_url"`
	PollURL      string `yaml:"poll_url"`
	StatsURL     string `yaml:"stats_url"`
	PollInterval string `yaml:"poll_interval"`
	BridgeListen string `yaml:"bridge_listen"`
	BridgeOrigin string `yaml:"bridge_origin"`

	FeedCapacity int    `yaml:"feed_capacity"`
	SettingsPath string `yaml:"settings_path"`

	MetricsAddr  string `yaml:"metrics_addr"`
	OTelEndpoint string `yaml:"otel_endpoint"`
	OTelInsecure bool   `yaml:"otel_insecure"`

	Verbose bool `yaml:"verbose"`
	NoColor bool `yaml:"no_color"`
}

// mergeFile fills fields from a YAML file, leaving alone anything whose flag
// appears in seen. Tracking set flags instead of comparing against defaults
// means a flag explicitly given its default value still wins over the file.
func (c *Config) mergeFile(path string, seen map[string]bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrInvalidConfig, path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}

	set := func(names ...string) bool {
		for _, n := range names {
			if seen[n] {
				return true
			}
		}
		return false
	}

	if file.ClassifyEndpoint != "" && !set("classify") {
		c.ClassifyEndpoint = file.ClassifyEndpoint
	}
	if file.PushURL != "" && !set("push") {
		c.PushURL = file.PushURL
	}
	if file.PollURL != "" && !set("poll") {
		c.PollURL = file.PollURL
	}
	if file.StatsURL != "" && !set("stats") {
		c.StatsURL = file.StatsURL
	}
	if file.BridgeListen != "" && !set("bridge-listen") {
		c.BridgeListen = file.BridgeListen
	}
	if file.BridgeOrigin != "" && !set("bridge-origin") {
		c.BridgeOrigin = file.BridgeOrigin
	}
	if file.MetricsAddr != "" && !set("metrics") {
		c.MetricsAddr = file.MetricsAddr
	}
	if file.OTelEndpoint != "" && !set("otel") {
		c.OTelEndpoint = file.OTelEndpoint
	}
	if file.OTelInsecure && !set("otel-insecure") {
		c.OTelInsecure = true
	}
	if file.Verbose && !set("verbose", "v") {
		c.Verbose = true
	}
	if file.NoColor && !set("no-color") {
		c.NoColor = true
	}
	if file.SettingsPath != "" && !set("settings") {
		c.SettingsPath = file.SettingsPath
	}
	if file.ScanTimeout != "" && !set("scan-timeout") {
		d, err := time.ParseDuration(file.ScanTimeout)
		if err != nil {
			return fmt.Errorf("%w: scan_timeout: %v", ErrInvalidConfig, err)
		}
		c.ScanTimeout = d
	}
	if file.PollInterval != "" && !set("poll-interval") {
		d, err := time.ParseDuration(file.PollInterval)
		if err != nil {
			return fmt.Errorf("%w: poll_interval: %v", ErrInvalidConfig, err)
		}
		c.PollInterval = d
	}
	if file.Concurrency > 0 && !set("concurrency", "c") {
		c.Concurrency = file.Concurrency
	}
	if file.RateLimit > 0 && !set("rate-limit", "rl") {
		c.RateLimit = file.RateLimit
	}
	if file.FeedCapacity > 0 && !set("feed-capacity") {
		c.FeedCapacity = file.FeedCapacity
	}
	return nil
}

// URLs returns the positional arguments: URLs to scan at startup.
func (c *Config) URLs() []string {
	return flag.Args()
}

func defaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "urlsentry-settings.json"
	}
	return home + "/.urlsentry/settings.json"
}
