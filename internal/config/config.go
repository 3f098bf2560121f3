// Package config loads and validates coursesync configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/coursesync/internal/extract"
	"github.com/JakeFAU/coursesync/internal/logging"
	"github.com/JakeFAU/coursesync/internal/normalize"
)

// MaxBatchSize is the largest write batch the store accepts.
const MaxBatchSize = 10

// Config captures every knob loaded via Viper.
type Config struct {
	Logging   logging.Config       `mapstructure:"logging"`
	Browser   BrowserConfig        `mapstructure:"browser"`
	Sources   []extract.Definition `mapstructure:"sources"`
	Normalize normalize.Options    `mapstructure:"normalize"`
	Store     StoreConfig          `mapstructure:"store"`
	Sync      SyncConfig           `mapstructure:"sync"`
	Output    OutputConfig         `mapstructure:"output"`
	Mirror    MirrorConfig         `mapstructure:"mirror"`
	Archive   ArchiveConfig        `mapstructure:"archive"`
	Notify    NotifyConfig         `mapstructure:"notify"`
	Metrics   MetricsConfig        `mapstructure:"metrics"`
}

// BrowserConfig selects and tunes the page renderer.
type BrowserConfig struct {
	Engine            string        `mapstructure:"engine"`
	UserAgent         string        `mapstructure:"user_agent"`
	ExecPath          string        `mapstructure:"exec_path"`
	ShowWindow        bool          `mapstructure:"show_window"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	EvaluateTimeout   time.Duration `mapstructure:"evaluate_timeout"`
}

// StoreConfig holds the remote tabular store endpoint and credentials.
type StoreConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	APIKey         string        `mapstructure:"api_key"`
	BaseID         string        `mapstructure:"base_id"`
	Table          string        `mapstructure:"table"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestsPerSec float64       `mapstructure:"requests_per_second"`
}

// HasCredentials reports whether every value needed to reach the store is set.
func (s StoreConfig) HasCredentials() bool {
	return s.APIKey != "" && s.BaseID != "" && s.Table != ""
}

// SyncConfig controls batch dispatch against the store.
type SyncConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	BatchDelay      time.Duration `mapstructure:"batch_delay"`
	ReplaceExisting bool          `mapstructure:"replace_existing"`
}

// OutputConfig sets where local snapshots land.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// MirrorConfig lists optional off-box copies of the snapshot.
type MirrorConfig struct {
	GCS  GCSConfig  `mapstructure:"gcs"`
	SFTP SFTPConfig `mapstructure:"sftp"`
}

// GCSConfig enables the GCS mirror when Bucket is set.
type GCSConfig struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Compress bool   `mapstructure:"compress"`
}

// SFTPConfig enables the SFTP mirror when Host is set.
type SFTPConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	KeyPath        string        `mapstructure:"key_path"`
	KnownHostsPath string        `mapstructure:"known_hosts_path"`
	Dir            string        `mapstructure:"dir"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// ArchiveConfig enables the Postgres archive when DSN is set.
type ArchiveConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// NotifyConfig holds run-completed notification targets.
type NotifyConfig struct {
	PubSub PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig enables the notification when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether a topic is fully configured.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Topic != ""
}

// MetricsConfig points at an optional Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Load builds a Config from defaults, an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COURSESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := normalize.DefaultOptions()

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("browser.engine", "chromedp")
	v.SetDefault("browser.user_agent", "coursesync/0.1")
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.evaluate_timeout", 10*time.Second)
	v.SetDefault("sources", DefaultSources())
	v.SetDefault("normalize.default_title", d.DefaultTitle)
	v.SetDefault("normalize.default_provider", d.DefaultProvider)
	v.SetDefault("normalize.default_location", d.DefaultLocation)
	v.SetDefault("normalize.default_type", d.DefaultType)
	v.SetDefault("normalize.region", d.Region)
	v.SetDefault("normalize.id_length", d.IDLength)
	v.SetDefault("store.endpoint", "https://api.airtable.com/v0/")
	v.SetDefault("store.api_key", "")
	v.SetDefault("store.base_id", "")
	v.SetDefault("store.table", "")
	v.SetDefault("store.timeout", 30*time.Second)
	v.SetDefault("store.requests_per_second", 5.0)
	v.SetDefault("sync.batch_size", MaxBatchSize)
	v.SetDefault("sync.batch_delay", 250*time.Millisecond)
	v.SetDefault("sync.replace_existing", true)
	v.SetDefault("output.dir", "data")
	v.SetDefault("mirror.gcs.bucket", "")
	v.SetDefault("mirror.gcs.prefix", "snapshots")
	v.SetDefault("mirror.gcs.compress", false)
	v.SetDefault("mirror.sftp.host", "")
	v.SetDefault("mirror.sftp.port", 22)
	v.SetDefault("mirror.sftp.dir", "coursesync")
	v.SetDefault("mirror.sftp.timeout", 15*time.Second)
	v.SetDefault("archive.dsn", "")
	v.SetDefault("archive.table", "courses")
	v.SetDefault("notify.pubsub.project_id", "")
	v.SetDefault("notify.pubsub.topic", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "coursesync")
}

// DefaultSources returns one source per extraction variant.
func DefaultSources() []map[string]any {
	return []map[string]any{
		{
			"name":      "community-centre",
			"variant":   string(extract.VariantStaticCatalog),
			"url":       "https://www.communitycentre.example.ca/programs",
			"provider":  "Community Centre",
			"type":      "Recreation",
			"selectors": []string{".program-item"},
		},
		{
			"name":         "safety-training",
			"variant":      string(extract.VariantDynamicApp),
			"url":          "https://booking.safetytraining.example.ca/courses",
			"provider":     "Safety Training Co",
			"type":         "First Aid",
			"selectors":    []string{".course-card", "[data-course]", ".event-item"},
			"wait_until":   "networkidle",
			"wait_timeout": "15s",
		},
		{
			"name":      "college-continuing-ed",
			"variant":   string(extract.VariantTableListing),
			"url":       "https://continuing.college.example.ca/schedule",
			"provider":  "College Continuing Studies",
			"type":      "Continuing Education",
			"selectors": []string{"table.schedule tbody tr"},
			"min_cells": 3,
		},
		{
			"name":      "library-workshops",
			"variant":   string(extract.VariantCardListing),
			"url":       "https://events.library.example.ca/workshops",
			"provider":  "Public Library",
			"type":      "Workshop",
			"selectors": []string{".event-card", ".card", "article"},
		},
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Browser.Engine {
	case "chromedp", "static":
	default:
		return fmt.Errorf("browser.engine must be chromedp or static, got %q", c.Browser.Engine)
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be > 0")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for _, src := range c.Sources {
		if err := src.Validate(); err != nil {
			return err
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = struct{}{}
	}
	if c.Sync.BatchSize <= 0 || c.Sync.BatchSize > MaxBatchSize {
		return fmt.Errorf("sync.batch_size must be between 1 and %d", MaxBatchSize)
	}
	if c.Sync.BatchDelay < 0 {
		return fmt.Errorf("sync.batch_delay must be >= 0")
	}
	if c.Store.RequestsPerSec < 0 {
		return fmt.Errorf("store.requests_per_second must be >= 0")
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.Mirror.SFTP.Host != "" {
		if c.Mirror.SFTP.User == "" {
			return fmt.Errorf("mirror.sftp.user must be set when mirror.sftp.host is set")
		}
		if c.Mirror.SFTP.Password == "" && c.Mirror.SFTP.KeyPath == "" {
			return fmt.Errorf("mirror.sftp needs a password or key_path")
		}
	}
	if (c.Notify.PubSub.ProjectID == "") != (c.Notify.PubSub.Topic == "") {
		return fmt.Errorf("notify.pubsub.project_id and notify.pubsub.topic must be set together")
	}
	return nil
}
