package metrics

import (
	"errors"
	"sync"
	"time"
)

// DefaultCapacity is the number of metrics a Recorder keeps.
const DefaultCapacity = 10000

// Recorder keeps the most recent metrics in a fixed-size ring.
// A nil *Recorder discards everything.
type Recorder struct {
	mu    sync.RWMutex
	buf   []Metric
	next  int
	full  bool
	types []ErrorType
}

// ErrorType maps a sentinel error to the name recorded for it.
type ErrorType struct {
	Err  error
	Name string
}

// NewRecorder creates a recorder holding up to capacity metrics.
// errorTypes classify failures; unmatched errors are recorded as "error".
func NewRecorder(capacity int, errorTypes ...ErrorType) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{buf: make([]Metric, capacity), types: errorTypes}
}

// Record stores a single metric, evicting the oldest when full.
func (r *Recorder) Record(m Metric) {
	if r == nil {
		return
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = m
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// RecordOpts provides context for a metric recording.
type RecordOpts struct {
	Stage      Stage
	DocumentID string
	Page       int
	Detector   string
}

// RecordOp records an operation that started at start and finished with err.
func (r *Recorder) RecordOp(opts RecordOpts, start time.Time, items int, err error) {
	if r == nil {
		return
	}
	m := Metric{
		Stage:      opts.Stage,
		DocumentID: opts.DocumentID,
		Page:       opts.Page,
		Detector:   opts.Detector,
		Items:      items,
		Seconds:    time.Since(start).Seconds(),
		Success:    err == nil,
	}
	if err != nil {
		m.ErrorType = r.classify(err)
	}
	r.Record(m)
}

func (r *Recorder) classify(err error) string {
	for _, t := range r.types {
		if errors.Is(err, t.Err) {
			return t.Name
		}
	}
	return "error"
}

// Len returns the number of metrics held.
func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// snapshot returns held metrics oldest first.
func (r *Recorder) snapshot() []Metric {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.full {
		return append([]Metric(nil), r.buf[:r.next]...)
	}
	out := make([]Metric, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
