package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackzampolin/relayout/internal/types"
)

const StaticName = "static"

// StaticDetector returns the same regions for every readable image.
// Useful for tests and for replaying detections produced elsewhere.
type StaticDetector struct {
	regions []types.Region
}

// NewStaticDetector creates a detector that always answers with regions.
func NewStaticDetector(regions []types.Region) *StaticDetector {
	return &StaticDetector{regions: append([]types.Region(nil), regions...)}
}

// LoadStaticDetector reads a JSON array of regions from path.
func LoadStaticDetector(path string) (*StaticDetector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read static detections: %w", err)
	}
	var regions []types.Region
	if err := json.Unmarshal(data, &regions); err != nil {
		return nil, fmt.Errorf("failed to parse static detections: %w", err)
	}
	if err := types.ValidateRegions(regions); err != nil {
		return nil, err
	}
	return NewStaticDetector(regions), nil
}

// Name returns the detector identifier.
func (d *StaticDetector) Name() string {
	return StaticName
}

// Detect returns a copy of the configured regions.
func (d *StaticDetector) Detect(ctx context.Context, image []byte) ([]types.Region, error) {
	if _, err := DecodeImageInfo(image); err != nil {
		return []types.Region{}, nil
	}
	out := make([]types.Region, len(d.regions))
	copy(out, d.regions)
	return out, nil
}

var _ Detector = (*StaticDetector)(nil)
