package detector

import (
	"fmt"
	"log/slog"
	"time"
)

// Config selects and configures a detector.
type Config struct {
	Type           string // "http", "openai" or "static"
	URL            string // http: detection service base URL
	APIKey         string // openai
	Model          string // openai
	StaticFile     string // static: JSON array of regions
	MaxConcurrency int
	// RequestsPerMinute throttles detection calls; 0 disables throttling.
	RequestsPerMinute int
	MaxRetries        int
	Timeout           time.Duration
}

// New builds the configured detector wrapped in an admission limit.
func New(cfg Config, logger *slog.Logger) (*Limited, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var d Detector
	switch cfg.Type {
	case HTTPName, "":
		if cfg.URL == "" {
			return nil, fmt.Errorf("detector url is required for type %q", HTTPName)
		}
		d = NewHTTPDetector(HTTPConfig{
			URL:        cfg.URL,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			Logger:     logger,
		})
	case OpenAIName:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("detector api_key is required for type %q", OpenAIName)
		}
		d = NewOpenAIDetector(OpenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
			Logger:     logger,
		})
	case StaticName:
		s, err := LoadStaticDetector(cfg.StaticFile)
		if err != nil {
			return nil, err
		}
		d = s
	default:
		return nil, fmt.Errorf("unknown detector type: %s", cfg.Type)
	}

	if cfg.RequestsPerMinute > 0 {
		d = Throttle(d, cfg.RequestsPerMinute)
	}

	logger.Info("detector configured", "type", d.Name(),
		"max_concurrency", cfg.MaxConcurrency, "requests_per_minute", cfg.RequestsPerMinute)
	return Limit(d, int64(cfg.MaxConcurrency)), nil
}
