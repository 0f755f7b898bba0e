// Package reclassify rewrites a page's detected layout regions using text
// geometry and font statistics.
//
// Run applies eight passes in a fixed order:
//
//	A  separate dominant regions (pictures, tables, headers, ...) and cut
//	   other regions around them
//	B  drop regions contained in another region
//	C  clip overlapping pairs apart
//	D  merge regions sharing a line
//	E  split regions whose text implies more than one label
//	F  drop degenerate regions
//	G  re-append dominant regions
//	H  group uncovered text into new regions without creating overlaps
package reclassify

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/relayout/internal/types"
)

// ErrInvariant is returned when input violates an assumption the passes
// depend on, such as a label outside the known set.
var ErrInvariant = errors.New("reclassify invariant violated")

// Reconciler runs the reclassification passes. It is safe for concurrent use;
// each Run works on its own copies of the inputs.
type Reconciler struct {
	cfg      Config
	dominant map[types.Label]bool
	logger   *slog.Logger
}

// New creates a Reconciler after validating cfg.
func New(cfg Config, logger *slog.Logger) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reclassify config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	dominant := make(map[types.Label]bool, len(cfg.DominantLabels))
	for _, l := range cfg.DominantLabels {
		dominant[l] = true
	}
	return &Reconciler{cfg: cfg, dominant: dominant, logger: logger}, nil
}

// Config returns the configuration the reconciler was built with.
func (r *Reconciler) Config() Config {
	return r.cfg
}

// Run reconciles regions against the page's inside and outside fragments
// (already in region coordinates) and returns the final region list:
// reconciled regions, then dominant regions, then regions synthesized from
// outside text. Inputs are not modified.
func (r *Reconciler) Run(regions []types.Region, inside, outside []types.Fragment) ([]types.Region, error) {
	for i, reg := range regions {
		if !reg.Label.Valid() {
			return nil, fmt.Errorf("%w: region %d: %w: %q", ErrInvariant, i, types.ErrUnknownLabel, reg.Label)
		}
	}

	dominant, others := r.partition(regions)
	r.trace("partition", len(others), "dominant", len(dominant))

	others = r.separateEchelons(others, dominant)
	r.trace("echelons", len(others))

	others = r.pruneContained(others)
	r.trace("prune", len(others))

	others = r.resolveOverlaps(others)
	r.trace("overlaps", len(others))

	others, err := r.mergeLines(others)
	if err != nil {
		return nil, err
	}
	r.trace("merge", len(others))

	stats := BuildFontStats(inside, others)
	others = r.splitByFont(others, inside, stats)
	r.trace("font_split", len(others), "signatures", stats.Len())

	others = dropDegenerate(others)
	r.trace("validate", len(others))

	result := append(others, dominant...)

	synthesized := r.regroupOutside(outside, result, stats)
	r.trace("regroup", len(synthesized), "outside", len(outside))

	return append(result, synthesized...), nil
}

func (r *Reconciler) trace(pass string, count int, kv ...any) {
	args := append([]any{"pass", pass, "regions", count}, kv...)
	r.logger.Debug("reclassify pass complete", args...)
}

// partition copies regions into dominant and other sets, preserving order.
func (r *Reconciler) partition(regions []types.Region) (dominant, others []types.Region) {
	for _, reg := range regions {
		if r.dominant[reg.Label] {
			dominant = append(dominant, reg)
		} else {
			others = append(others, reg)
		}
	}
	return dominant, others
}
