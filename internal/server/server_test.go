package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/relayout/internal/config"
	"github.com/jackzampolin/relayout/internal/detector"
	"github.com/jackzampolin/relayout/internal/geometry"
	"github.com/jackzampolin/relayout/internal/home"
	"github.com/jackzampolin/relayout/internal/ingest"
	"github.com/jackzampolin/relayout/internal/metrics"
	"github.com/jackzampolin/relayout/internal/pagestore"
	"github.com/jackzampolin/relayout/internal/server/endpoints"
	"github.com/jackzampolin/relayout/internal/testutil"
	"github.com/jackzampolin/relayout/internal/types"
)

type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, _ string) ([]pagestore.PageText, error) {
	return []pagestore.PageText{{
		Fragments: []types.Fragment{
			{Box: geometry.R(10, 10, 50, 20), Text: "Inside", Font: "Times", Size: 10},
			{Box: geometry.R(400, 400, 450, 410), Text: "Outside", Font: "Times", Size: 10},
		},
		ScaleX: 1, ScaleY: 1, Width: 612, Height: 792,
	}}, nil
}

func newTestServer(t *testing.T, port string) *Server {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("ingest:\n  render_images: false\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	mgr, err := config.NewManager(cfgPath, "")
	if err != nil {
		t.Fatalf("config.NewManager() error = %v", err)
	}
	h, err := home.New(filepath.Join(dir, "home"))
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}

	srv, err := New(Config{
		Host:          "127.0.0.1",
		Port:          port,
		Home:          h,
		ConfigManager: mgr,
		Store:         pagestore.NewMemoryStore(),
		Detector: detector.NewStaticDetector([]types.Region{
			{Label: types.LabelText, Box: geometry.R(0, 0, 300, 100)},
		}),
		Extractor: fakeExtractor{},
		Logger:    testutil.NewServerConfig(t).Logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, fields map[string]string, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write(content)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, want int, v any) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != want {
		var e endpoints.ErrorResponse
		json.NewDecoder(resp.Body).Decode(&e)
		t.Fatalf("expected status %d, got %d (%s)", want, resp.StatusCode, e.Error)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
}

func TestServer_RequireInit(t *testing.T) {
	srv := newTestServer(t, "0")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	tests := []struct {
		method, path string
		want         int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/ready", http.StatusServiceUnavailable},
		{"GET", "/status", http.StatusOK},
		{"POST", "/api/compare", http.StatusServiceUnavailable},
		{"GET", "/api/documents/x", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, ts.URL+tt.path, strings.NewReader("{}"))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestServer_LayoutFlow(t *testing.T) {
	srv := newTestServer(t, "0")
	if err := srv.initialize(context.Background()); err != nil {
		t.Fatalf("initialize() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// Upload
	body, ct := multipartBody(t, nil, "file", "paper.pdf", []byte("%PDF-1.4"))
	resp, err := http.Post(ts.URL+"/api/documents", ct, body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	var ingested ingest.Result
	decode(t, resp, http.StatusCreated, &ingested)
	if ingested.PageCount != 1 {
		t.Fatalf("expected 1 page, got %d", ingested.PageCount)
	}
	docID := ingested.DocumentID
	key := types.PageKey{DocumentID: docID, Page: 1}

	t.Run("compare before detect is a precondition failure", func(t *testing.T) {
		decode(t, postJSON(t, ts.URL+"/api/compare", key), http.StatusBadRequest, nil)
	})

	t.Run("detect", func(t *testing.T) {
		fields := map[string]string{"document_id": docID, "page_number": "1"}
		body, ct := multipartBody(t, fields, "image", "page.png", pngBytes(t, 612, 792))
		resp, err := http.Post(ts.URL+"/api/detect", ct, body)
		if err != nil {
			t.Fatalf("detect: %v", err)
		}
		var out endpoints.DetectResponse
		decode(t, resp, http.StatusOK, &out)
		if len(out.Regions) != 1 {
			t.Errorf("expected 1 region, got %d", len(out.Regions))
		}
	})

	t.Run("detect with unreadable image", func(t *testing.T) {
		fields := map[string]string{"document_id": docID, "page_number": "1"}
		body, ct := multipartBody(t, fields, "image", "page.png", []byte("nope"))
		resp, err := http.Post(ts.URL+"/api/detect", ct, body)
		if err != nil {
			t.Fatalf("detect: %v", err)
		}
		decode(t, resp, http.StatusBadRequest, nil)
	})

	t.Run("compare", func(t *testing.T) {
		var out endpoints.CompareResponse
		decode(t, postJSON(t, ts.URL+"/api/compare", key), http.StatusOK, &out)
		if out.InsideCount != 1 || out.OutsideCount != 1 {
			t.Errorf("expected 1 inside and 1 outside, got %d/%d", out.InsideCount, out.OutsideCount)
		}
	})

	t.Run("reclassify", func(t *testing.T) {
		var out endpoints.ReclassifyResponse
		decode(t, postJSON(t, ts.URL+"/api/reclassify", key), http.StatusOK, &out)
		if len(out.Regions) != 2 {
			t.Errorf("expected 2 regions, got %+v", out.Regions)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/metrics?stage=detect")
		if err != nil {
			t.Fatalf("get metrics: %v", err)
		}
		var out endpoints.MetricsSummaryResponse
		decode(t, resp, http.StatusOK, &out)
		if !out.Enabled || out.Overall.Count != 2 || out.Overall.SuccessCount != 1 {
			t.Errorf("unexpected detect metrics: %+v", out.Overall)
		}
		if out.Overall.Errors["no_regions"] != 1 {
			t.Errorf("expected one empty detection, got %v", out.Overall.Errors)
		}

		resp, err = http.Get(ts.URL + "/api/metrics/recent?limit=1")
		if err != nil {
			t.Fatalf("list metrics: %v", err)
		}
		var list endpoints.ListMetricsResponse
		decode(t, resp, http.StatusOK, &list)
		if list.Count != 1 || list.Metrics[0].Stage != metrics.StageReclassify {
			t.Errorf("expected the reclassify call first, got %+v", list.Metrics)
		}
	})

	t.Run("page state", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/documents/" + docID + "/pages/1")
		if err != nil {
			t.Fatalf("get page: %v", err)
		}
		var state struct {
			Reclassified []types.Region `json:"reclassified"`
			HasImage     bool           `json:"has_image"`
		}
		decode(t, resp, http.StatusOK, &state)
		if len(state.Reclassified) != 2 || !state.HasImage {
			t.Errorf("unexpected page state: %+v", state)
		}
	})

	t.Run("page image", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/documents/" + docID + "/pages/1/image")
		if err != nil {
			t.Fatalf("get image: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
			t.Errorf("unexpected image response: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
		}
	})

	t.Run("set regions with unknown label", func(t *testing.T) {
		data := []byte(`{"regions":[{"label":"Banner","box":[0,0,1,1]}]}`)
		req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/documents/"+docID+"/pages/1/regions", bytes.NewReader(data))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("put regions: %v", err)
		}
		decode(t, resp, http.StatusBadRequest, nil)
	})

	t.Run("unknown document", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/documents/missing")
		if err != nil {
			t.Fatalf("get document: %v", err)
		}
		decode(t, resp, http.StatusNotFound, nil)
	})

	t.Run("bad page number", func(t *testing.T) {
		decode(t, postJSON(t, ts.URL+"/api/compare", map[string]any{"document_id": docID, "page_number": 0}), http.StatusBadRequest, nil)
	})
}

func TestServer_Lifecycle(t *testing.T) {
	port, err := testutil.FindFreePort()
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	srv := newTestServer(t, port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	url := "http://127.0.0.1:" + port
	if err := testutil.WaitForServer(url, 10*time.Second); err != nil {
		t.Fatalf("server did not become ready: %v", err)
	}
	if !srv.IsRunning() {
		t.Error("expected server to report running")
	}

	if err := srv.Start(ctx); err == nil {
		t.Error("second Start() should fail while running")
	}

	cancel()
	if err := testutil.WaitForShutdown(done, 10*time.Second); err != nil {
		t.Fatalf("Start() returned error on shutdown: %v", err)
	}
	if srv.IsRunning() {
		t.Error("expected server to be stopped")
	}
}
