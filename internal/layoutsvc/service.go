// Package layoutsvc coordinates per-page layout state: ingest, detection,
// comparison of text against detected regions, and reclassification.
package layoutsvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/relayout/internal/compare"
	"github.com/jackzampolin/relayout/internal/detector"
	"github.com/jackzampolin/relayout/internal/extract"
	"github.com/jackzampolin/relayout/internal/home"
	"github.com/jackzampolin/relayout/internal/ingest"
	"github.com/jackzampolin/relayout/internal/metrics"
	"github.com/jackzampolin/relayout/internal/pagestore"
	"github.com/jackzampolin/relayout/internal/reclassify"
	"github.com/jackzampolin/relayout/internal/types"
)

var (
	// ErrPrecondition is returned when a step runs before the page state it
	// depends on has been registered.
	ErrPrecondition = errors.New("precondition failed")

	// ErrDetectionFailed is returned when the detector finds no regions.
	ErrDetectionFailed = errors.New("layout detection returned no regions")
)

// NewMetricsRecorder creates a recorder that classifies this package's
// failures by sentinel.
func NewMetricsRecorder(capacity int) *metrics.Recorder {
	return metrics.NewRecorder(capacity,
		metrics.ErrorType{Err: reclassify.ErrInvariant, Name: "invariant"},
		metrics.ErrorType{Err: ErrPrecondition, Name: "precondition"},
		metrics.ErrorType{Err: ErrDetectionFailed, Name: "no_regions"},
		metrics.ErrorType{Err: pagestore.ErrNotFound, Name: "not_found"},
		metrics.ErrorType{Err: types.ErrUnknownLabel, Name: "unknown_label"},
		metrics.ErrorType{Err: detector.ErrBadResponse, Name: "bad_response"},
	)
}

// Config configures a Service.
type Config struct {
	Store     pagestore.Store
	Extractor extract.Extractor
	Detector  detector.Detector
	Home      *home.Dir

	Reclassify       reclassify.Config
	CompareThreshold float64
	DPI              float64
	RenderImages     bool

	// Metrics receives one record per detect, compare and reclassify call.
	// Optional.
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// settings are swapped as a unit on config reload.
type settings struct {
	reconciler *reclassify.Reconciler
	threshold  float64
}

// Service implements the layout operations over a Store.
type Service struct {
	store    pagestore.Store
	detector detector.Detector
	home     *home.Dir
	ingester *ingest.Ingester
	metrics  *metrics.Recorder
	logger   *slog.Logger

	settings atomic.Pointer[settings]
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Home == nil {
		return nil, errors.New("home directory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	extractor := cfg.Extractor
	if extractor == nil {
		extractor = extract.NewPDFExtractor(cfg.DPI)
	}

	s := &Service{
		store:    cfg.Store,
		detector: cfg.Detector,
		home:     cfg.Home,
		metrics:  cfg.Metrics,
		logger:   logger,
		ingester: &ingest.Ingester{
			Store:     cfg.Store,
			Extractor: extractor,
			Home:      cfg.Home,
			DPI:       cfg.DPI,
			Render:    cfg.RenderImages,
			Logger:    logger,
		},
	}
	if err := s.SetReclassifyConfig(cfg.Reclassify, cfg.CompareThreshold); err != nil {
		return nil, err
	}
	return s, nil
}

// SetReclassifyConfig replaces the reconciler configuration and comparison
// threshold. In-flight operations keep the settings they started with.
func (s *Service) SetReclassifyConfig(cfg reclassify.Config, threshold float64) error {
	if threshold <= 0 || threshold > 1 {
		return fmt.Errorf("compare threshold must be in (0, 1], got %v", threshold)
	}
	r, err := reclassify.New(cfg, s.logger)
	if err != nil {
		return err
	}
	s.settings.Store(&settings{reconciler: r, threshold: threshold})
	return nil
}

// ReclassifyConfig returns the active reconciler configuration.
func (s *Service) ReclassifyConfig() reclassify.Config {
	return s.settings.Load().reconciler.Config()
}

// CompareThreshold returns the active containment threshold.
func (s *Service) CompareThreshold() float64 {
	return s.settings.Load().threshold
}

// DetectorName returns the configured detector's name, or "" when none is set.
func (s *Service) DetectorName() string {
	if s.detector == nil {
		return ""
	}
	return s.detector.Name()
}

// Ingest stores a PDF and its extracted text.
func (s *Service) Ingest(ctx context.Context, filename string, r io.Reader) (*ingest.Result, error) {
	return s.ingester.Ingest(ctx, ingest.Request{Filename: filename, Source: r})
}

// Document returns a stored document.
func (s *Service) Document(ctx context.Context, id string) (*pagestore.Document, error) {
	return s.store.Document(ctx, id)
}

// Detect runs the layout detector on a page image and stores the regions.
// The image is kept alongside the document, and when the page size is known
// the page's scale factors are recomputed from the image size.
func (s *Service) Detect(ctx context.Context, key types.PageKey, image []byte) (found []types.Region, err error) {
	if s.detector == nil {
		return nil, errors.New("no detector configured")
	}
	defer s.record(metrics.StageDetect, key, time.Now(), func() int { return len(found) }, &err)

	if err := s.checkPage(ctx, key); err != nil {
		return nil, err
	}

	regions, err := s.detector.Detect(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detection failed for %s: %w", key, err)
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDetectionFailed, key)
	}

	// Regions were found, so the image decodes.
	info, err := detector.DecodeImageInfo(image)
	if err != nil {
		return nil, err
	}
	if err := s.saveImage(key, info.Format, image); err != nil {
		return nil, err
	}
	if err := s.rescale(ctx, key, info); err != nil {
		return nil, err
	}
	if err := s.store.PutRegions(ctx, key, regions); err != nil {
		return nil, fmt.Errorf("failed to store regions: %w", err)
	}

	s.logger.Info("detected layout", "document_id", key.DocumentID, "page", key.Page,
		"detector", s.detector.Name(), "regions", len(regions))
	return regions, nil
}

// RegisterRegions stores externally produced detections for a page.
func (s *Service) RegisterRegions(ctx context.Context, key types.PageKey, regions []types.Region) error {
	if err := s.checkPage(ctx, key); err != nil {
		return err
	}
	if len(regions) == 0 {
		return fmt.Errorf("%w: no regions given for %s", ErrPrecondition, key)
	}
	if err := types.ValidateRegions(regions); err != nil {
		return err
	}
	if err := s.store.PutRegions(ctx, key, regions); err != nil {
		return fmt.Errorf("failed to store regions: %w", err)
	}
	s.logger.Debug("registered regions", "document_id", key.DocumentID, "page", key.Page, "regions", len(regions))
	return nil
}

// CompareLayout partitions the page's fragments into those inside detected
// regions and those outside, stores the result and writes it to the
// outputs directory.
func (s *Service) CompareLayout(ctx context.Context, key types.PageKey) (result *pagestore.Comparison, err error) {
	defer s.record(metrics.StageCompare, key, time.Now(), func() int {
		if result == nil {
			return 0
		}
		return len(result.Inside)
	}, &err)

	regions, err := s.store.Regions(ctx, key)
	if err != nil {
		return nil, missing(err, "no detected regions for %s", key)
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("%w: no detected regions for %s", ErrPrecondition, key)
	}
	page, err := s.store.PageText(ctx, key)
	if err != nil {
		return nil, missing(err, "no extracted text for %s", key)
	}
	if len(page.Fragments) == 0 {
		return nil, fmt.Errorf("%w: no text fragments for %s", ErrPrecondition, key)
	}
	if page.ScaleX <= 0 || page.ScaleY <= 0 {
		return nil, fmt.Errorf("%w: invalid scale %vx%v for %s", ErrPrecondition, page.ScaleX, page.ScaleY, key)
	}

	threshold := s.settings.Load().threshold
	normalized := compare.Normalize(page.Fragments, page.ScaleX, page.ScaleY)
	res := compare.Classify(normalized, regions, threshold)
	cmp := pagestore.Comparison{Inside: res.Inside, Outside: res.Outside}

	if err := s.store.PutComparison(ctx, key, cmp); err != nil {
		return nil, fmt.Errorf("failed to store comparison: %w", err)
	}
	if err := pagestore.WriteComparisonFiles(s.home.OutputsDir(), key, cmp); err != nil {
		return nil, err
	}

	s.logger.Info("compared layout", "document_id", key.DocumentID, "page", key.Page,
		"inside", len(cmp.Inside), "outside", len(cmp.Outside))
	return &cmp, nil
}

// ReclassifyLayout runs the reconciler over the page's regions and its last
// comparison and stores the result.
func (s *Service) ReclassifyLayout(ctx context.Context, key types.PageKey) (result []types.Region, err error) {
	defer s.record(metrics.StageReclassify, key, time.Now(), func() int { return len(result) }, &err)

	cmp, err := s.store.Comparison(ctx, key)
	if err != nil {
		return nil, missing(err, "no comparison for %s", key)
	}
	regions, err := s.store.Regions(ctx, key)
	if err != nil {
		return nil, missing(err, "no detected regions for %s", key)
	}

	out, err := s.settings.Load().reconciler.Run(regions, cmp.Inside, cmp.Outside)
	if err != nil {
		return nil, fmt.Errorf("reclassify %s: %w", key, err)
	}
	if err := s.store.PutReclassified(ctx, key, out); err != nil {
		return nil, fmt.Errorf("failed to store reclassified regions: %w", err)
	}

	s.logger.Info("reclassified layout", "document_id", key.DocumentID, "page", key.Page,
		"before", len(regions), "after", len(out))
	return out, nil
}

// Metrics returns the operation recorder, nil when metrics are disabled.
func (s *Service) Metrics() *metrics.Recorder {
	return s.metrics
}

// record is deferred by the layout operations; items and err are read after
// the operation returns.
func (s *Service) record(stage metrics.Stage, key types.PageKey, start time.Time, items func() int, err *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordOp(metrics.RecordOpts{
		Stage:      stage,
		DocumentID: key.DocumentID,
		Page:       key.Page,
		Detector:   s.DetectorName(),
	}, start, items(), *err)
}

// checkPage verifies the document exists and has the page.
func (s *Service) checkPage(ctx context.Context, key types.PageKey) error {
	doc, err := s.store.Document(ctx, key.DocumentID)
	if err != nil {
		return err
	}
	if key.Page < 1 || key.Page > doc.PageCount {
		return fmt.Errorf("%w: page %d of document %s (%d pages)", pagestore.ErrNotFound, key.Page, doc.ID, doc.PageCount)
	}
	return nil
}

func (s *Service) saveImage(key types.PageKey, format string, image []byte) error {
	if err := s.home.EnsureImagesDir(key.DocumentID); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}
	// Drop an earlier image that may have a different extension.
	if old, err := s.home.FindPageImage(key.DocumentID, key.Page); err == nil {
		os.Remove(old)
	}
	path := s.home.PageImagePath(key.DocumentID, key.Page, format)
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return fmt.Errorf("failed to save page image: %w", err)
	}
	return nil
}

func (s *Service) rescale(ctx context.Context, key types.PageKey, info detector.ImageInfo) error {
	page, err := s.store.PageText(ctx, key)
	if errors.Is(err, pagestore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if page.Width <= 0 || page.Height <= 0 {
		return nil
	}
	page.ScaleX = float64(info.Width) / page.Width
	page.ScaleY = float64(info.Height) / page.Height
	if err := s.store.PutPageText(ctx, key, *page); err != nil {
		return fmt.Errorf("failed to update page scale: %w", err)
	}
	return nil
}

// missing maps a store miss to ErrPrecondition.
func missing(err error, format string, args ...any) error {
	if errors.Is(err, pagestore.ErrNotFound) {
		return fmt.Errorf("%w: "+format, append([]any{ErrPrecondition}, args...)...)
	}
	return err
}
