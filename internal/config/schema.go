package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackzampolin/relayout/internal/compare"
	"github.com/jackzampolin/relayout/internal/detector"
	"github.com/jackzampolin/relayout/internal/docker"
	"github.com/jackzampolin/relayout/internal/extract"
	"github.com/jackzampolin/relayout/internal/metrics"
	"github.com/jackzampolin/relayout/internal/reclassify"
	"github.com/jackzampolin/relayout/internal/types"
)

// Config holds relayout configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Server     ServerCfg     `mapstructure:"server" yaml:"server"`
	Store      StoreCfg      `mapstructure:"store" yaml:"store"`
	Detector   DetectorCfg   `mapstructure:"detector" yaml:"detector"`
	Ingest     IngestCfg     `mapstructure:"ingest" yaml:"ingest"`
	Reclassify ReclassifyCfg `mapstructure:"reclassify" yaml:"reclassify"`
	Compare    CompareCfg    `mapstructure:"compare" yaml:"compare"`
	Metrics    MetricsCfg    `mapstructure:"metrics" yaml:"metrics"`
}

// ServerCfg configures the HTTP listener.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// StoreCfg selects the page store backend.
type StoreCfg struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"` // "memory" or "postgres"
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`       // supports ${ENV_VAR} syntax
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// DetectorCfg configures the layout detector.
type DetectorCfg struct {
	Type              string               `mapstructure:"type" yaml:"type"` // "http", "openai" or "static"
	URL               string               `mapstructure:"url" yaml:"url"`
	APIKey            string               `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	Model             string               `mapstructure:"model" yaml:"model"`
	StaticFile        string               `mapstructure:"static_file" yaml:"static_file"`
	MaxConcurrency    int                  `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	RequestsPerMinute int                  `mapstructure:"requests_per_minute" yaml:"requests_per_minute"` // 0 = unlimited
	MaxRetries        int                  `mapstructure:"max_retries" yaml:"max_retries"`
	Timeout           time.Duration        `mapstructure:"timeout" yaml:"timeout"`
	Container         DetectorContainerCfg `mapstructure:"container" yaml:"container"`
}

// DetectorContainerCfg holds the detector Docker container settings.
type DetectorContainerCfg struct {
	// ContainerName defaults to a name derived from the home directory.
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	Image         string `mapstructure:"image" yaml:"image"`
	Port          string `mapstructure:"port" yaml:"port"`
	// AutoStart starts the container with "relayout serve".
	AutoStart bool `mapstructure:"auto_start" yaml:"auto_start"`
}

// IngestCfg configures PDF ingest.
type IngestCfg struct {
	DPI          float64 `mapstructure:"dpi" yaml:"dpi"`
	RenderImages bool    `mapstructure:"render_images" yaml:"render_images"`
}

// ReclassifyCfg mirrors reclassify.Config with plain label names.
type ReclassifyCfg struct {
	InsideThreshold      float64        `mapstructure:"inside_threshold" yaml:"inside_threshold"`
	OverlapThreshold     float64        `mapstructure:"overlap_threshold" yaml:"overlap_threshold"`
	LineOverlapThreshold float64        `mapstructure:"line_overlap_threshold" yaml:"line_overlap_threshold"`
	SliceGap             float64        `mapstructure:"slice_gap" yaml:"slice_gap"`
	DominantLabels       []string       `mapstructure:"dominant_labels" yaml:"dominant_labels"`
	LabelPriority        map[string]int `mapstructure:"label_priority" yaml:"label_priority"`
	DefaultLabel         string         `mapstructure:"default_label" yaml:"default_label"`
}

// CompareCfg configures the containment classifier.
type CompareCfg struct {
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
}

// MetricsCfg configures the in-memory operation metrics.
type MetricsCfg struct {
	Enabled  bool `mapstructure:"enabled" yaml:"enabled"`
	Capacity int  `mapstructure:"capacity" yaml:"capacity"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	rc := reclassify.DefaultConfig()
	dominant := make([]string, len(rc.DominantLabels))
	for i, l := range rc.DominantLabels {
		dominant[i] = string(l)
	}
	priority := make(map[string]int, len(rc.LabelPriority))
	for l, p := range rc.LabelPriority {
		priority[string(l)] = p
	}

	return &Config{
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Store: StoreCfg{
			Driver:          "memory",
			DSN:             "${RELAYOUT_DATABASE_URL}",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Detector: DetectorCfg{
			Type:           detector.HTTPName,
			URL:            "http://localhost:" + docker.DefaultPort,
			APIKey:         "${OPENAI_API_KEY}",
			Model:          "gpt-4o",
			MaxConcurrency: detector.DefaultMaxConcurrency,
			MaxRetries:     3,
			Timeout:        60 * time.Second,
			Container: DetectorContainerCfg{
				Image: docker.DefaultImage,
				Port:  docker.DefaultPort,
			},
		},
		Ingest: IngestCfg{
			DPI:          extract.DefaultDPI,
			RenderImages: true,
		},
		Reclassify: ReclassifyCfg{
			InsideThreshold:      rc.InsideThreshold,
			OverlapThreshold:     rc.OverlapThreshold,
			LineOverlapThreshold: rc.LineOverlapThreshold,
			SliceGap:             rc.SliceGap,
			DominantLabels:       dominant,
			LabelPriority:        priority,
			DefaultLabel:         string(rc.DefaultLabel),
		},
		Compare: CompareCfg{
			Threshold: compare.DefaultThreshold,
		},
		Metrics: MetricsCfg{
			Enabled:  true,
			Capacity: metrics.DefaultCapacity,
		},
	}
}

// ReclassifyConfig converts the reclassify section, validating label names.
func (c *Config) ReclassifyConfig() (reclassify.Config, error) {
	dominantNames := make([]string, len(c.Reclassify.DominantLabels))
	for i, n := range c.Reclassify.DominantLabels {
		dominantNames[i] = canonicalLabel(n)
	}
	dominant, err := reclassify.ParseLabels(dominantNames)
	if err != nil {
		return reclassify.Config{}, fmt.Errorf("reclassify.dominant_labels: %w", err)
	}
	// Viper lowercases map keys, so priority names are matched case-insensitively.
	names := make(map[string]int, len(c.Reclassify.LabelPriority))
	for n, p := range c.Reclassify.LabelPriority {
		names[canonicalLabel(n)] = p
	}
	priority, err := reclassify.ParsePriority(names)
	if err != nil {
		return reclassify.Config{}, fmt.Errorf("reclassify.label_priority: %w", err)
	}
	def, err := types.ParseLabel(canonicalLabel(c.Reclassify.DefaultLabel))
	if err != nil {
		return reclassify.Config{}, fmt.Errorf("reclassify.default_label: %w", err)
	}
	rc := reclassify.Config{
		InsideThreshold:      c.Reclassify.InsideThreshold,
		OverlapThreshold:     c.Reclassify.OverlapThreshold,
		LineOverlapThreshold: c.Reclassify.LineOverlapThreshold,
		SliceGap:             c.Reclassify.SliceGap,
		DominantLabels:       dominant,
		LabelPriority:        priority,
		DefaultLabel:         def,
	}
	if err := rc.Validate(); err != nil {
		return reclassify.Config{}, err
	}
	return rc, nil
}

// DetectorConfig converts the detector section, resolving ${ENV_VAR}
// references in the API key.
func (c *Config) DetectorConfig() detector.Config {
	d := c.Detector
	return detector.Config{
		Type:              d.Type,
		URL:               d.URL,
		APIKey:            ResolveEnvVars(d.APIKey),
		Model:             d.Model,
		StaticFile:        d.StaticFile,
		MaxConcurrency:    d.MaxConcurrency,
		RequestsPerMinute: d.RequestsPerMinute,
		MaxRetries:        d.MaxRetries,
		Timeout:           d.Timeout,
	}
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// canonicalLabel returns the known label matching name ignoring case, or
// name unchanged.
func canonicalLabel(name string) string {
	for _, l := range types.Labels {
		if strings.EqualFold(string(l), name) {
			return string(l)
		}
	}
	return name
}

// Validate checks values that cannot be fixed up at use time.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("store.driver must be memory or postgres, got %q", c.Store.Driver)
	}
	switch c.Detector.Type {
	case detector.HTTPName, detector.OpenAIName, detector.StaticName:
	default:
		return fmt.Errorf("detector.type must be %s, %s or %s, got %q",
			detector.HTTPName, detector.OpenAIName, detector.StaticName, c.Detector.Type)
	}
	if c.Compare.Threshold <= 0 || c.Compare.Threshold > 1 {
		return fmt.Errorf("compare.threshold must be in (0, 1], got %v", c.Compare.Threshold)
	}
	if c.Ingest.DPI <= 0 {
		return fmt.Errorf("ingest.dpi must be positive, got %v", c.Ingest.DPI)
	}
	if c.Detector.RequestsPerMinute < 0 {
		return fmt.Errorf("detector.requests_per_minute must not be negative, got %d", c.Detector.RequestsPerMinute)
	}
	if c.Metrics.Capacity < 0 {
		return fmt.Errorf("metrics.capacity must not be negative, got %d", c.Metrics.Capacity)
	}
	if _, err := c.ReclassifyConfig(); err != nil {
		return err
	}
	return nil
}
