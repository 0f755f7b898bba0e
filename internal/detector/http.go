package detector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/relayout/internal/types"
)

const (
	HTTPName = "http"

	defaultHTTPTimeout    = 60 * time.Second
	defaultHTTPRetryDelay = 500 * time.Millisecond
	defaultHTTPRetries    = 2
)

// HTTPConfig holds configuration for a detection service client.
type HTTPConfig struct {
	URL        string        // Base URL of the detection service
	Timeout    time.Duration // Per-request timeout
	MaxRetries int           // Retries after the first attempt on transient failures
	RetryDelay time.Duration
	HTTPClient *http.Client // Optional (tests)
	Logger     *slog.Logger
}

// HTTPDetector posts page images to a detection service as multipart form
// data and reads back normalized boxes.
type HTTPDetector struct {
	url        string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
	logger     *slog.Logger
}

// NewHTTPDetector creates a detection service client.
func NewHTTPDetector(cfg HTTPConfig) *HTTPDetector {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultHTTPRetryDelay
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDetector{
		url:        strings.TrimRight(cfg.URL, "/"),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     client,
		logger:     logger,
	}
}

// Name returns the detector identifier.
func (d *HTTPDetector) Name() string {
	return HTTPName
}

// Detect sends the image to the service's /detect endpoint.
func (d *HTTPDetector) Detect(ctx context.Context, image []byte) ([]types.Region, error) {
	info, err := DecodeImageInfo(image)
	if err != nil {
		d.logger.Warn("skipping unreadable image", "error", err)
		return []types.Region{}, nil
	}

	var body []byte
	err = retry.Do(
		func() error {
			b, err := d.post(ctx, image, info)
			if err != nil {
				return err
			}
			body = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(d.maxRetries+1)),
		retry.Delay(d.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			d.logger.Debug("retrying detection request", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("detection request failed: %w", err)
	}

	return ParseResponse(body, info.Width, info.Height)
}

func (d *HTTPDetector) post(ctx context.Context, image []byte, info ImageInfo) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", "page."+info.Format)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url+"/detect", &buf)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// StatusError is returned when the detection service answers with a non-200
// status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("detector returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("detector returned status %d: %s", e.StatusCode, e.Body)
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

var _ Detector = (*HTTPDetector)(nil)
