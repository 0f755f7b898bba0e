package layoutsvc

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"strings"
	"testing"

	"github.com/jackzampolin/relayout/internal/detector"
	"github.com/jackzampolin/relayout/internal/geometry"
	"github.com/jackzampolin/relayout/internal/home"
	"github.com/jackzampolin/relayout/internal/metrics"
	"github.com/jackzampolin/relayout/internal/pagestore"
	"github.com/jackzampolin/relayout/internal/reclassify"
	"github.com/jackzampolin/relayout/internal/types"
)

type fakeExtractor struct {
	pages []pagestore.PageText
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) ([]pagestore.PageText, error) {
	return f.pages, nil
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

type fixture struct {
	svc   *Service
	store *pagestore.MemoryStore
	home  *home.Dir
	key   types.PageKey
}

// newFixture ingests a two-page document whose first page has one fragment
// under the detected text block and one fragment below it.
func newFixture(t *testing.T, regions []types.Region) fixture {
	t.Helper()
	dir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	store := pagestore.NewMemoryStore()
	ex := &fakeExtractor{pages: []pagestore.PageText{
		{
			Fragments: []types.Fragment{
				{Box: geometry.R(10, 10, 50, 20), Text: "Inside", Font: "Times", Size: 10},
				{Box: geometry.R(400, 400, 450, 410), Text: "Outside", Font: "Times", Size: 10},
			},
			ScaleX: 1, ScaleY: 1, Width: 612, Height: 792,
		},
		{ScaleX: 1, ScaleY: 1, Width: 612, Height: 792},
	}}

	svc, err := New(Config{
		Store:            store,
		Extractor:        ex,
		Detector:         detector.NewStaticDetector(regions),
		Home:             dir,
		Reclassify:       reclassify.DefaultConfig(),
		CompareThreshold: 0.3,
		Metrics:          NewMetricsRecorder(100),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := svc.Ingest(context.Background(), "doc.pdf", strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	return fixture{svc: svc, store: store, home: dir, key: types.PageKey{DocumentID: res.DocumentID, Page: 1}}
}

func TestService_FullFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []types.Region{{Label: types.LabelText, Box: geometry.R(0, 0, 600, 200)}})

	// Image at twice the page size doubles the scale factors.
	regions, err := f.svc.Detect(ctx, f.key, pngImage(t, 1224, 1584))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d", len(regions))
	}
	page, err := f.store.PageText(ctx, f.key)
	if err != nil {
		t.Fatalf("PageText: %v", err)
	}
	if page.ScaleX != 2 || page.ScaleY != 2 {
		t.Errorf("expected scale 2x2, got %vx%v", page.ScaleX, page.ScaleY)
	}
	if _, err := f.home.FindPageImage(f.key.DocumentID, 1); err != nil {
		t.Errorf("expected stored page image: %v", err)
	}

	cmp, err := f.svc.CompareLayout(ctx, f.key)
	if err != nil {
		t.Fatalf("CompareLayout: %v", err)
	}
	if len(cmp.Inside) != 1 || cmp.Inside[0].Text != "Inside" {
		t.Errorf("unexpected inside: %+v", cmp.Inside)
	}
	if len(cmp.Outside) != 1 || cmp.Outside[0].Box != geometry.R(800, 800, 900, 820) {
		t.Errorf("unexpected outside: %+v", cmp.Outside)
	}
	insidePath, outsidePath := pagestore.OutputFiles(f.home.OutputsDir(), f.key)
	for _, p := range []string{insidePath, outsidePath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected output file %s: %v", p, err)
		}
	}

	out, err := f.svc.ReclassifyLayout(ctx, f.key)
	if err != nil {
		t.Fatalf("ReclassifyLayout: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 regions, got %+v", out)
	}
	if out[1].Label != types.LabelText || out[1].Box != geometry.R(800, 800, 900, 820) || out[1].Text != "Outside" {
		t.Errorf("unexpected regrouped region: %+v", out[1])
	}

	state, err := f.svc.Page(ctx, f.key)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if state.Comparison == nil || len(state.Reclassified) != 2 || !state.HasImage {
		t.Errorf("unexpected page state: %+v", state)
	}
}

func TestService_Preconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("compare without regions", func(t *testing.T) {
		f := newFixture(t, nil)
		if _, err := f.svc.CompareLayout(ctx, f.key); !errors.Is(err, ErrPrecondition) {
			t.Errorf("expected ErrPrecondition, got %v", err)
		}
	})

	t.Run("compare without fragments", func(t *testing.T) {
		f := newFixture(t, nil)
		key := types.PageKey{DocumentID: f.key.DocumentID, Page: 2}
		if err := f.svc.RegisterRegions(ctx, key, []types.Region{{Label: types.LabelText, Box: geometry.R(0, 0, 10, 10)}}); err != nil {
			t.Fatalf("RegisterRegions: %v", err)
		}
		if _, err := f.svc.CompareLayout(ctx, key); !errors.Is(err, ErrPrecondition) {
			t.Errorf("expected ErrPrecondition, got %v", err)
		}
	})

	t.Run("register empty regions", func(t *testing.T) {
		f := newFixture(t, nil)
		if err := f.svc.RegisterRegions(ctx, f.key, []types.Region{}); !errors.Is(err, ErrPrecondition) {
			t.Errorf("expected ErrPrecondition, got %v", err)
		}
		if _, err := f.store.Regions(ctx, f.key); !errors.Is(err, pagestore.ErrNotFound) {
			t.Errorf("expected no regions stored, got %v", err)
		}
	})

	t.Run("compare with empty stored regions", func(t *testing.T) {
		f := newFixture(t, nil)
		if err := f.store.PutRegions(ctx, f.key, []types.Region{}); err != nil {
			t.Fatalf("PutRegions: %v", err)
		}
		if _, err := f.svc.CompareLayout(ctx, f.key); !errors.Is(err, ErrPrecondition) {
			t.Errorf("expected ErrPrecondition, got %v", err)
		}
		if _, err := f.store.Comparison(ctx, f.key); !errors.Is(err, pagestore.ErrNotFound) {
			t.Errorf("expected no comparison stored, got %v", err)
		}
	})

	t.Run("compare with zero scale", func(t *testing.T) {
		f := newFixture(t, nil)
		page, err := f.store.PageText(ctx, f.key)
		if err != nil {
			t.Fatalf("PageText: %v", err)
		}
		page.ScaleX = 0
		if err := f.store.PutPageText(ctx, f.key, *page); err != nil {
			t.Fatalf("PutPageText: %v", err)
		}
		if err := f.svc.RegisterRegions(ctx, f.key, []types.Region{{Label: types.LabelText, Box: geometry.R(0, 0, 10, 10)}}); err != nil {
			t.Fatalf("RegisterRegions: %v", err)
		}
		if _, err := f.svc.CompareLayout(ctx, f.key); !errors.Is(err, ErrPrecondition) {
			t.Errorf("expected ErrPrecondition, got %v", err)
		}
	})

	t.Run("reclassify without comparison", func(t *testing.T) {
		f := newFixture(t, nil)
		if err := f.svc.RegisterRegions(ctx, f.key, []types.Region{{Label: types.LabelText, Box: geometry.R(0, 0, 10, 10)}}); err != nil {
			t.Fatalf("RegisterRegions: %v", err)
		}
		if _, err := f.svc.ReclassifyLayout(ctx, f.key); !errors.Is(err, ErrPrecondition) {
			t.Errorf("expected ErrPrecondition, got %v", err)
		}
	})
}

func TestService_Detect(t *testing.T) {
	ctx := context.Background()

	t.Run("empty detection stores nothing", func(t *testing.T) {
		f := newFixture(t, []types.Region{{Label: types.LabelText, Box: geometry.R(0, 0, 10, 10)}})
		_, err := f.svc.Detect(ctx, f.key, []byte("not an image"))
		if !errors.Is(err, ErrDetectionFailed) {
			t.Fatalf("expected ErrDetectionFailed, got %v", err)
		}
		if _, err := f.store.Regions(ctx, f.key); !errors.Is(err, pagestore.ErrNotFound) {
			t.Errorf("expected no regions stored, got %v", err)
		}
	})

	t.Run("failed image save stores nothing", func(t *testing.T) {
		f := newFixture(t, []types.Region{{Label: types.LabelText, Box: geometry.R(0, 0, 10, 10)}})
		imagesDir := f.home.ImagesDir(f.key.DocumentID)
		if err := os.RemoveAll(imagesDir); err != nil {
			t.Fatalf("RemoveAll: %v", err)
		}
		if err := os.WriteFile(imagesDir, []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := f.svc.Detect(ctx, f.key, pngImage(t, 1224, 1584)); err == nil {
			t.Fatal("expected error when the image cannot be saved")
		}
		if _, err := f.store.Regions(ctx, f.key); !errors.Is(err, pagestore.ErrNotFound) {
			t.Errorf("expected no regions stored, got %v", err)
		}
		page, err := f.store.PageText(ctx, f.key)
		if err != nil {
			t.Fatalf("PageText: %v", err)
		}
		if page.ScaleX != 1 || page.ScaleY != 1 {
			t.Errorf("expected scale unchanged, got %vx%v", page.ScaleX, page.ScaleY)
		}
	})

	t.Run("unknown document", func(t *testing.T) {
		f := newFixture(t, nil)
		key := types.PageKey{DocumentID: "missing", Page: 1}
		if _, err := f.svc.Detect(ctx, key, pngImage(t, 10, 10)); !errors.Is(err, pagestore.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("page out of range", func(t *testing.T) {
		f := newFixture(t, nil)
		key := types.PageKey{DocumentID: f.key.DocumentID, Page: 3}
		if _, err := f.svc.Detect(ctx, key, pngImage(t, 10, 10)); !errors.Is(err, pagestore.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestService_RegisterRegionsRejectsUnknownLabel(t *testing.T) {
	f := newFixture(t, nil)
	err := f.svc.RegisterRegions(context.Background(), f.key, []types.Region{{Label: "Banner", Box: geometry.R(0, 0, 1, 1)}})
	if !errors.Is(err, types.ErrUnknownLabel) {
		t.Errorf("expected ErrUnknownLabel, got %v", err)
	}
}

func TestService_SetReclassifyConfig(t *testing.T) {
	f := newFixture(t, nil)

	cfg := reclassify.DefaultConfig()
	cfg.OverlapThreshold = 0.2
	if err := f.svc.SetReclassifyConfig(cfg, 0.5); err != nil {
		t.Fatalf("SetReclassifyConfig: %v", err)
	}
	if f.svc.ReclassifyConfig().OverlapThreshold != 0.2 || f.svc.CompareThreshold() != 0.5 {
		t.Errorf("settings not applied")
	}

	if err := f.svc.SetReclassifyConfig(cfg, 0); err == nil {
		t.Error("expected error for zero threshold")
	}
	if f.svc.CompareThreshold() != 0.5 {
		t.Error("failed update must keep previous settings")
	}
}

func TestService_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []types.Region{{Label: types.LabelText, Box: geometry.R(0, 0, 600, 200)}})

	if _, err := f.svc.CompareLayout(ctx, f.key); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition, got %v", err)
	}
	if _, err := f.svc.Detect(ctx, f.key, pngImage(t, 612, 792)); err != nil {
		t.Fatalf("Detect: %v", err)
	}

	rec := f.svc.Metrics()
	if rec.Len() != 2 {
		t.Fatalf("expected 2 metrics, got %d", rec.Len())
	}
	list := rec.List(metrics.Filter{}, 0)
	detect, cmp := list[0], list[1]
	if detect.Stage != metrics.StageDetect || !detect.Success || detect.Items != 1 || detect.Detector != detector.StaticName {
		t.Errorf("unexpected detect metric: %+v", detect)
	}
	if cmp.Stage != metrics.StageCompare || cmp.Success || cmp.ErrorType != "precondition" {
		t.Errorf("unexpected compare metric: %+v", cmp)
	}
	if cmp.DocumentID != f.key.DocumentID || cmp.Page != 1 {
		t.Errorf("unexpected attribution: %+v", cmp)
	}
}
