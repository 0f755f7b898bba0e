package metrics

import "sort"

// DetailedStats summarizes a set of metrics, including latency percentiles.
type DetailedStats struct {
	// Basic counts
	Count        int `json:"count"`
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`

	// Items produced by successful operations
	TotalItems int     `json:"total_items"`
	AvgItems   float64 `json:"avg_items"`

	// Latency percentiles (seconds)
	LatencyP50 float64 `json:"latency_p50"`
	LatencyP95 float64 `json:"latency_p95"`
	LatencyP99 float64 `json:"latency_p99"`
	LatencyAvg float64 `json:"latency_avg"`
	LatencyMin float64 `json:"latency_min"`
	LatencyMax float64 `json:"latency_max"`

	// Errors by type
	Errors map[string]int `json:"errors,omitempty"`
}

// Stats returns statistics for metrics matching the filter.
func (r *Recorder) Stats(f Filter) *DetailedStats {
	return aggregate(r.List(f, 0))
}

// StageStats returns statistics grouped by stage.
func (r *Recorder) StageStats(f Filter) map[Stage]*DetailedStats {
	byStage := make(map[Stage][]Metric)
	for _, m := range r.List(f, 0) {
		byStage[m.Stage] = append(byStage[m.Stage], m)
	}

	result := make(map[Stage]*DetailedStats, len(byStage))
	for stage, ms := range byStage {
		result[stage] = aggregate(ms)
	}
	return result
}

func aggregate(metrics []Metric) *DetailedStats {
	stats := &DetailedStats{Count: len(metrics)}
	if len(metrics) == 0 {
		return stats
	}

	latencies := make([]float64, 0, len(metrics))
	for _, m := range metrics {
		if m.Success {
			stats.SuccessCount++
			stats.TotalItems += m.Items
		} else {
			stats.ErrorCount++
			if stats.Errors == nil {
				stats.Errors = make(map[string]int)
			}
			stats.Errors[m.ErrorType]++
		}
		latencies = append(latencies, m.Seconds)
	}

	if stats.SuccessCount > 0 {
		stats.AvgItems = float64(stats.TotalItems) / float64(stats.SuccessCount)
	}

	sort.Float64s(latencies)
	stats.LatencyMin = latencies[0]
	stats.LatencyMax = latencies[len(latencies)-1]
	var sum float64
	for _, l := range latencies {
		sum += l
	}
	stats.LatencyAvg = sum / float64(len(latencies))
	stats.LatencyP50 = percentile(latencies, 50)
	stats.LatencyP95 = percentile(latencies, 95)
	stats.LatencyP99 = percentile(latencies, 99)

	return stats
}

// percentile calculates the p-th percentile from a sorted slice of values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	n := float64(len(sorted))
	idx := (p / 100.0) * (n - 1)

	// Interpolate between floor and ceil indices
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
