package ingest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
)

// RendererAvailable reports whether pdftoppm (poppler-utils) is on PATH.
func RendererAvailable() bool {
	_, err := exec.LookPath("pdftoppm")
	return err == nil
}

// renderPages renders every page of pdfPath to outDir as page_NNNN.png,
// running up to NumCPU pdftoppm processes at once.
func renderPages(ctx context.Context, pdfPath, outDir string, pageCount int, dpi float64) error {
	type result struct {
		pageNum int
		err     error
	}

	results := make(chan result, pageCount)
	sem := make(chan struct{}, runtime.NumCPU())

	for page := 1; page <= pageCount; page++ {
		sem <- struct{}{} // acquire
		go func(pageNum int) {
			defer func() { <-sem }() // release
			results <- result{pageNum: pageNum, err: renderPage(ctx, pdfPath, outDir, pageNum, dpi)}
		}(page)
	}

	var firstErr error
	for i := 0; i < pageCount; i++ {
		r := <-results
		if r.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to render page %d: %w", r.pageNum, r.err)
		}
	}
	return firstErr
}

// renderPage renders a single page with pdftoppm.
func renderPage(ctx context.Context, pdfPath, outDir string, pageNum int, dpi float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp("", "relayout-page-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")

	// -singlefile: don't add page number suffix (naming is handled here)
	pageStr := strconv.Itoa(pageNum)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.FormatFloat(dpi, 'f', -1, 64),
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	data, err := os.ReadFile(outputPrefix + ".png")
	if err != nil {
		return fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}

	dstPath := filepath.Join(outDir, fmt.Sprintf("page_%04d.png", pageNum))
	if err := os.WriteFile(dstPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write page image: %w", err)
	}
	return nil
}
