// Package detector provides clients for layout detection services.
//
// A Detector takes page image bytes and returns labeled regions in pixel
// coordinates of that image. Images that cannot be decoded produce an empty
// result rather than an error.
package detector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/jackzampolin/relayout/internal/types"
)

// ErrBadResponse is returned when a detection service answers with a payload
// that does not match the expected shape.
var ErrBadResponse = errors.New("invalid detector response")

// Detector finds layout regions in a page image.
type Detector interface {
	// Name returns the detector identifier.
	Name() string

	// Detect returns regions in pixel coordinates of image. Unreadable
	// images yield an empty slice and a nil error.
	Detect(ctx context.Context, image []byte) ([]types.Region, error)
}

// ImageInfo describes a decoded image header.
type ImageInfo struct {
	Width  int
	Height int
	Format string
}

// DecodeImageInfo reads the dimensions and format of an encoded image.
func DecodeImageInfo(data []byte) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, errors.New("empty image")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, fmt.Errorf("image has no area: %dx%d", cfg.Width, cfg.Height)
	}
	return ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// MimeType returns the MIME type for the image format.
func (i ImageInfo) MimeType() string {
	return "image/" + i.Format
}
