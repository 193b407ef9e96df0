package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLogDir      = "logs"
	DefaultLayout      = LayoutSplit
	DefaultDriver      = DriverCSV
	DefaultSummaryName = "summary.csv"
	DefaultPlotDir     = "plots"
	DefaultPingCount   = 4
	DefaultListen      = "127.0.0.1:8089"
	DefaultLogLevel    = "info"
	DefaultSchedule    = "0 */15 * * * *"
)

// Log layouts.
const (
	LayoutUnified = "unified"
	LayoutSplit   = "split"
)

// Storage drivers.
const (
	DriverCSV      = "csv"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds harness settings. CLI flags override file values.
type Config struct {
	Destinations Destinations `yaml:"destinations"`
	Proxy        string       `yaml:"proxy,omitempty"`
	LogDir       string       `yaml:"log_dir"`
	Layout       string       `yaml:"layout"`
	Storage      Storage      `yaml:"storage"`
	SummaryPath  string       `yaml:"summary_path"`
	PlotDir      string       `yaml:"plot_dir"`
	Plot         *bool        `yaml:"plot,omitempty"`
	PingCount    int          `yaml:"ping_count"`
	Iperf3JSON   bool         `yaml:"iperf3_json,omitempty"`
	STUNServers  []string     `yaml:"stun_servers,omitempty"`
	Schedule     string       `yaml:"schedule"`
	Listen       string       `yaml:"listen"`
	LogLevel     string       `yaml:"log_level"`
}

// Destinations selects the target of each test category.
type Destinations struct {
	Latency string `yaml:"latency,omitempty"`
	Wget    string `yaml:"wget,omitempty"`
	Iperf3  string `yaml:"iperf3,omitempty"`
}

// Storage selects the log store backend.
type Storage struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn,omitempty"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks settings that do not depend on the selected tests.
func Validate(cfg Config) error {
	switch cfg.Layout {
	case LayoutUnified, LayoutSplit:
	default:
		return errors.Errorf("layout must be %s or %s, got %q", LayoutUnified, LayoutSplit, cfg.Layout)
	}
	switch cfg.Storage.Driver {
	case DriverCSV:
	case DriverSQLite, DriverPostgres:
		if cfg.Storage.DSN == "" {
			return errors.Errorf("storage.dsn is required for driver %s", cfg.Storage.Driver)
		}
	default:
		return errors.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
	if cfg.PingCount <= 0 {
		return errors.New("ping_count must be positive")
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.LogDir == "" {
		cfg.LogDir = DefaultLogDir
	}
	if cfg.Layout == "" {
		cfg.Layout = DefaultLayout
	}
	cfg.Layout = strings.ToLower(cfg.Layout)
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultDriver
	}
	if cfg.SummaryPath == "" {
		cfg.SummaryPath = filepath.Join(cfg.LogDir, DefaultSummaryName)
	}
	if cfg.PlotDir == "" {
		cfg.PlotDir = DefaultPlotDir
	}
	if cfg.Plot == nil {
		enabled := true
		cfg.Plot = &enabled
	}
	if cfg.PingCount == 0 {
		cfg.PingCount = DefaultPingCount
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}

// PlotEnabled reports whether plots should be rendered after aggregation.
func PlotEnabled(cfg *Config) bool {
	return cfg.Plot == nil || *cfg.Plot
}
