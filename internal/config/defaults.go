package config

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// Entry describes one configuration key and its default value.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// DefaultEntries returns every documented configuration key with its default.
func DefaultEntries() []Entry {
	d := DefaultConfig()
	return []Entry{
		// ===================
		// Server
		// ===================
		{Key: "server.host", Value: d.Server.Host, Description: "HTTP listen host"},
		{Key: "server.port", Value: d.Server.Port, Description: "HTTP listen port"},

		// ===================
		// Store
		// ===================
		{Key: "store.driver", Value: d.Store.Driver, Description: "Page store backend: memory or postgres"},
		{Key: "store.dsn", Value: d.Store.DSN, Description: "PostgreSQL connection string (uses environment variable)"},
		{Key: "store.max_open_conns", Value: d.Store.MaxOpenConns, Description: "Maximum open PostgreSQL connections"},
		{Key: "store.max_idle_conns", Value: d.Store.MaxIdleConns, Description: "Maximum idle PostgreSQL connections"},
		{Key: "store.conn_max_lifetime", Value: d.Store.ConnMaxLifetime.String(), Description: "Maximum PostgreSQL connection lifetime"},

		// ===================
		// Detector
		// ===================
		{Key: "detector.type", Value: d.Detector.Type, Description: "Layout detector: http, openai or static"},
		{Key: "detector.url", Value: d.Detector.URL, Description: "Detection service base URL (http detector)"},
		{Key: "detector.api_key", Value: d.Detector.APIKey, Description: "OpenAI API key (uses environment variable)"},
		{Key: "detector.model", Value: d.Detector.Model, Description: "Vision model for the openai detector"},
		{Key: "detector.static_file", Value: d.Detector.StaticFile, Description: "JSON file of regions for the static detector"},
		{Key: "detector.max_concurrency", Value: d.Detector.MaxConcurrency, Description: "Maximum concurrent detection requests"},
		{Key: "detector.requests_per_minute", Value: d.Detector.RequestsPerMinute, Description: "Detection calls allowed per minute (0 = unlimited)"},
		{Key: "detector.max_retries", Value: d.Detector.MaxRetries, Description: "Retry attempts for transient detector failures"},
		{Key: "detector.timeout", Value: d.Detector.Timeout.String(), Description: "Per-request detector timeout"},
		{Key: "detector.container.container_name", Value: d.Detector.Container.ContainerName, Description: "Detector container name (derived from home when empty)"},
		{Key: "detector.container.image", Value: d.Detector.Container.Image, Description: "Detector container image"},
		{Key: "detector.container.port", Value: d.Detector.Container.Port, Description: "Host port bound to the detector container"},
		{Key: "detector.container.auto_start", Value: d.Detector.Container.AutoStart, Description: "Start the detector container with the server"},

		// ===================
		// Ingest
		// ===================
		{Key: "ingest.dpi", Value: d.Ingest.DPI, Description: "Rendering resolution; text is scaled by dpi/72"},
		{Key: "ingest.render_images", Value: d.Ingest.RenderImages, Description: "Render page images with pdftoppm on upload"},

		// ===================
		// Reconciliation
		// ===================
		{Key: "reclassify.inside_threshold", Value: d.Reclassify.InsideThreshold, Description: "Containment ratio for a region to count as inside a dominant region"},
		{Key: "reclassify.overlap_threshold", Value: d.Reclassify.OverlapThreshold, Description: "Overlap ratio above which two regions are clipped apart"},
		{Key: "reclassify.line_overlap_threshold", Value: d.Reclassify.LineOverlapThreshold, Description: "Vertical overlap ratio for two regions to share a line"},
		{Key: "reclassify.slice_gap", Value: d.Reclassify.SliceGap, Description: "Gap left between a sliced region and a dominant region"},
		{Key: "reclassify.dominant_labels", Value: d.Reclassify.DominantLabels, Description: "Labels that are never modified and cut other regions"},
		{Key: "reclassify.label_priority", Value: d.Reclassify.LabelPriority, Description: "Label priority when merging regions on one line"},
		{Key: "reclassify.default_label", Value: d.Reclassify.DefaultLabel, Description: "Label for regrouped text with an unknown font"},
		{Key: "compare.threshold", Value: d.Compare.Threshold, Description: "Fraction of a fragment's area that must lie in a region"},

		// ===================
		// Metrics
		// ===================
		{Key: "metrics.enabled", Value: d.Metrics.Enabled, Description: "Record detect, compare and reclassify timings"},
		{Key: "metrics.capacity", Value: d.Metrics.Capacity, Description: "Number of recent operations kept in memory"},
	}
}

// GetDefault returns the default entry for a key.
func GetDefault(key string) (*Entry, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	for _, e := range DefaultEntries() {
		if e.Key == key {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoDefault, key)
}

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}
