// internal/meterbus/batch.go
package meterbus

import (
	"fmt"
	"sort"
)

// BatchResult is one batch window's worth of decoded measurements.
// Decode outcomes are memoized per measurement at construction: a
// failing slice reports its own error from Get without affecting its
// neighbors.
type BatchResult struct {
	spec   BatchSpec
	raw    []uint16
	values map[Measurement]any
	errs   map[Measurement]error
}

// NewBatchResult decodes a raw window against its spec. The raw slice
// must be at least spec.Count long; BatchSpec.Validate guarantees the
// item slices fit.
func NewBatchResult(spec BatchSpec, raw []uint16) *BatchResult {
	res := &BatchResult{
		spec:   spec,
		raw:    raw,
		values: make(map[Measurement]any, len(spec.Items)),
		errs:   make(map[Measurement]error),
	}
	for m, it := range spec.Items {
		words := raw[it.Offset : it.Offset+it.Spec.Count]
		v, err := Decode(words, it.Spec)
		if err != nil {
			res.errs[m] = err
			continue
		}
		res.values[m] = v
	}
	return res
}

// Get returns the decoded value for one measurement in the batch.
func (r *BatchResult) Get(m Measurement) (any, error) {
	if err, ok := r.errs[m]; ok {
		return nil, err
	}
	if v, ok := r.values[m]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("batch 0x%04X: no measurement %q", r.spec.Address, m)
}

// value is Get without the not-found error, for coordinator fan-out.
func (r *BatchResult) value(m Measurement) (any, bool) {
	v, ok := r.values[m]
	return v, ok
}

// Measurements lists the batch's measurement ids, sorted for stable
// iteration.
func (r *BatchResult) Measurements() []Measurement {
	out := make([]Measurement, 0, len(r.spec.Items))
	for m := range r.spec.Items {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Raw exposes the undecoded window.
func (r *BatchResult) Raw() []uint16 { return r.raw }
