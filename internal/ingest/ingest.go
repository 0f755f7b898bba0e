// Package ingest stores uploaded PDFs, extracts their text per page and,
// when a renderer is available, renders page images for detection.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/relayout/internal/extract"
	"github.com/jackzampolin/relayout/internal/home"
	"github.com/jackzampolin/relayout/internal/pagestore"
	"github.com/jackzampolin/relayout/internal/types"
)

// Request contains the parameters for ingesting a PDF.
type Request struct {
	Filename string    // Original file name (informational)
	Source   io.Reader // PDF bytes
}

// PageSummary describes one ingested page.
type PageSummary struct {
	Page      int     `json:"page_number"`
	Fragments int     `json:"fragments"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	ScaleX    float64 `json:"scale_x"`
	ScaleY    float64 `json:"scale_y"`
	Image     bool    `json:"image"`
}

// Result contains the result of a successful ingest.
type Result struct {
	DocumentID string        `json:"document_id"`
	Filename   string        `json:"filename"`
	PageCount  int           `json:"page_count"`
	Pages      []PageSummary `json:"pages"`
}

// Ingester wires the store, extractor and home directory together.
type Ingester struct {
	Store     pagestore.Store
	Extractor extract.Extractor
	Home      *home.Dir
	DPI       float64
	Render    bool // render page images with pdftoppm
	Logger    *slog.Logger
}

// Ingest saves the PDF, extracts fragments for every page and records the
// document. On failure nothing is left behind on disk.
func (i *Ingester) Ingest(ctx context.Context, req Request) (*Result, error) {
	log := i.Logger
	if log == nil {
		log = slog.Default()
	}
	if req.Source == nil {
		return nil, errors.New("no PDF provided")
	}
	dpi := i.DPI
	if dpi <= 0 {
		dpi = extract.DefaultDPI
	}

	docID := uuid.New().String()
	pdfPath := i.Home.UploadPath(docID)
	if err := saveUpload(pdfPath, req.Source); err != nil {
		return nil, err
	}
	cleanup := func() {
		os.Remove(pdfPath)
		os.RemoveAll(i.Home.ImagesDir(docID))
	}

	log.Info("starting ingest", "document_id", docID, "filename", req.Filename)

	pages, err := i.Extractor.Extract(ctx, pdfPath)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	if len(pages) == 0 {
		cleanup()
		return nil, errors.New("PDF has no pages")
	}

	rendered := false
	if i.Render {
		if !RendererAvailable() {
			log.Warn("pdftoppm not found, skipping page images")
		} else {
			if err := i.Home.EnsureImagesDir(docID); err != nil {
				cleanup()
				return nil, fmt.Errorf("failed to create image directory: %w", err)
			}
			start := time.Now()
			if err := renderPages(ctx, pdfPath, i.Home.ImagesDir(docID), len(pages), dpi); err != nil {
				cleanup()
				return nil, err
			}
			rendered = true
			log.Debug("rendered page images", "document_id", docID, "pages", len(pages), "elapsed", time.Since(start))
		}
	}

	result := &Result{
		DocumentID: docID,
		Filename:   req.Filename,
		PageCount:  len(pages),
		Pages:      make([]PageSummary, 0, len(pages)),
	}
	for n, page := range pages {
		key := types.PageKey{DocumentID: docID, Page: n + 1}
		if err := i.Store.PutPageText(ctx, key, page); err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to store page %d: %w", key.Page, err)
		}
		result.Pages = append(result.Pages, PageSummary{
			Page:      key.Page,
			Fragments: len(page.Fragments),
			Width:     page.Width,
			Height:    page.Height,
			ScaleX:    page.ScaleX,
			ScaleY:    page.ScaleY,
			Image:     rendered,
		})
	}

	doc := pagestore.Document{
		ID:        docID,
		Filename:  documentName(req.Filename),
		PageCount: len(pages),
		CreatedAt: time.Now().UTC(),
	}
	if err := i.Store.PutDocument(ctx, doc); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	result.Filename = doc.Filename

	log.Info("ingest complete", "document_id", docID, "pages", len(pages))
	return result, nil
}

func saveUpload(path string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create uploads directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to save upload: %w", err)
	}
	return f.Close()
}

// documentName normalizes an uploaded file name.
// e.g., "/tmp/My Paper.PDF" -> "My Paper.PDF", "" -> "document.pdf"
func documentName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" || base == "" {
		return "document.pdf"
	}
	return base
}
