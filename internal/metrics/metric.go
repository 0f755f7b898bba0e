// Package metrics tracks timing and outcomes of layout operations.
package metrics

import "time"

// Stage names the layout operation a metric was recorded for.
type Stage string

const (
	StageDetect     Stage = "detect"
	StageCompare    Stage = "compare"
	StageReclassify Stage = "reclassify"
)

// Metric represents a single recorded layout operation.
// Metrics are append-only records kept in memory by a Recorder.
type Metric struct {
	// Attribution (for filtering/aggregation)
	Stage      Stage  `json:"stage"`
	DocumentID string `json:"document_id"`
	Page       int    `json:"page_number"`
	Detector   string `json:"detector,omitempty"`

	// Items is the stage's output size: detected regions, inside fragments
	// or reclassified regions.
	Items int `json:"items"`

	// Timing
	Seconds float64 `json:"seconds"`

	// Status
	Success   bool   `json:"success"`
	ErrorType string `json:"error_type,omitempty"`

	// Metadata
	CreatedAt time.Time `json:"created_at"`
}
