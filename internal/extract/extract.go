// Package extract reads character-level text fragments from PDF pages.
package extract

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/jackzampolin/relayout/internal/geometry"
	"github.com/jackzampolin/relayout/internal/pagestore"
	"github.com/jackzampolin/relayout/internal/types"
)

// DefaultDPI is the resolution pages are assumed to be rendered at for
// detection.
const DefaultDPI = 300

// Extractor produces per-page text fragments for a PDF.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]pagestore.PageText, error)
}

// PDFExtractor reads glyphs with their font name and size. Fragments are in
// top-down PDF point space; the scale factors map points to pixels of a page
// rendered at DPI.
type PDFExtractor struct {
	DPI float64
}

// NewPDFExtractor creates an extractor for pages rendered at dpi.
func NewPDFExtractor(dpi float64) *PDFExtractor {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &PDFExtractor{DPI: dpi}
}

// Extract returns one PageText per page, in page order.
func (e *PDFExtractor) Extract(ctx context.Context, path string) ([]pagestore.PageText, error) {
	dims, err := pageDims(path)
	if err != nil {
		return nil, err
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	if n != len(dims) {
		return nil, fmt.Errorf("page count mismatch: %d pages, %d page sizes", n, len(dims))
	}

	scale := e.DPI / 72
	pages := make([]pagestore.PageText, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := pagestore.PageText{
			Fragments: []types.Fragment{},
			ScaleX:    scale,
			ScaleY:    scale,
			Width:     dims[i-1].Width,
			Height:    dims[i-1].Height,
		}
		p := r.Page(i)
		if !p.V.IsNull() {
			page.Fragments = Fragments(p.Content().Text, page.Height)
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func pageDims(path string) ([]pdfDim, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	count, err := api.PageCount(f, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	raw, err := api.PageDims(f, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to get page dimensions: %w", err)
	}
	if len(raw) != count {
		return nil, fmt.Errorf("expected %d page sizes, got %d", count, len(raw))
	}
	dims := make([]pdfDim, len(raw))
	for i, d := range raw {
		dims[i] = pdfDim{Width: d.Width, Height: d.Height}
	}
	return dims, nil
}

type pdfDim struct {
	Width, Height float64
}

// Fragments converts glyphs to fragments. Glyph positions are baseline
// points with Y growing upward; fragments use top-down boxes spanning one
// font size above the baseline. Blank and non-printable glyphs are dropped.
func Fragments(glyphs []pdf.Text, pageHeight float64) []types.Fragment {
	out := make([]types.Fragment, 0, len(glyphs))
	for _, g := range glyphs {
		if !printable(g.S) {
			continue
		}
		bottom := pageHeight - g.Y
		out = append(out, types.Fragment{
			Box:  geometry.R(g.X, bottom-g.FontSize, g.X+g.W, bottom),
			Text: g.S,
			Font: g.Font,
			Size: int(math.RoundToEven(g.FontSize)),
		})
	}
	return out
}

func printable(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

var _ Extractor = (*PDFExtractor)(nil)
