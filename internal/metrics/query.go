package metrics

import "time"

// Filter specifies query filters. Zero fields match everything.
type Filter struct {
	Stage      Stage
	DocumentID string
	Detector   string
	After      time.Time
	Before     time.Time
	Success    *bool // nil = any, true = success only, false = errors only
}

func (f Filter) matches(m Metric) bool {
	if f.Stage != "" && m.Stage != f.Stage {
		return false
	}
	if f.DocumentID != "" && m.DocumentID != f.DocumentID {
		return false
	}
	if f.Detector != "" && m.Detector != f.Detector {
		return false
	}
	if !f.After.IsZero() && !m.CreatedAt.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !m.CreatedAt.Before(f.Before) {
		return false
	}
	if f.Success != nil && m.Success != *f.Success {
		return false
	}
	return true
}

// List returns metrics matching the filter, newest first.
// A limit of 0 returns all matches.
func (r *Recorder) List(f Filter, limit int) []Metric {
	all := r.snapshot()
	out := make([]Metric, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if !f.matches(all[i]) {
			continue
		}
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
