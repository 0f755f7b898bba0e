package detector

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/relayout/internal/geometry"
	"github.com/jackzampolin/relayout/internal/types"
)

// Response is the JSON payload returned by a detection service.
// Boxes are normalized to [0, 1] relative to the image size.
type Response struct {
	Detections []Detection `json:"detections"`
}

// Detection is one detected box.
type Detection struct {
	Label      string     `json:"label"`
	Box        [4]float64 `json:"box"`
	Confidence float64    `json:"confidence,omitempty"`
}

// ResponseSchema is the JSON schema every detector payload must satisfy.
const ResponseSchema = `{
  "type": "object",
  "required": ["detections"],
  "properties": {
    "detections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["label", "box"],
        "properties": {
          "label": {"type": "string"},
          "box": {
            "type": "array",
            "minItems": 4,
            "maxItems": 4,
            "items": {"type": "number", "minimum": 0, "maximum": 1}
          },
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    }
  }
}`

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("detections.json", strings.NewReader(ResponseSchema)); err != nil {
		return nil, fmt.Errorf("failed to load detection schema: %w", err)
	}
	schema, err := compiler.Compile("detections.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile detection schema: %w", err)
	}
	return schema, nil
})

// ParseResponse validates a detector payload and converts its normalized
// boxes to pixel coordinates of a width x height image.
func ParseResponse(data []byte, width, height int) ([]types.Region, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	w, h := float64(width), float64(height)
	regions := make([]types.Region, 0, len(resp.Detections))
	for i, d := range resp.Detections {
		label, err := types.ParseLabel(d.Label)
		if err != nil {
			return nil, fmt.Errorf("%w: detection %d: %w", ErrBadResponse, i, err)
		}
		regions = append(regions, types.Region{
			Label: label,
			Box:   geometry.R(d.Box[0]*w, d.Box[1]*h, d.Box[2]*w, d.Box[3]*h),
		})
	}
	return regions, nil
}

// extractJSON pulls the first JSON object out of free-form model output,
// tolerating markdown fences and surrounding prose.
func extractJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end < start {
		return ""
	}
	return trimmed[start : end+1]
}
