package services

import "fmt"

// HeightRange is an inclusive [Min, Max] block-height interval, the
// bookkeeping unit HeaderSync uses to track what's already synced versus
// what a bulk ingestor still needs to backfill.
type HeightRange struct {
	Min uint32
	Max int64 // int64 so an empty range can represent Max = Min-1 below zero
}

// NewHeightRange builds a HeightRange from a min/max pair.
func NewHeightRange(min uint32, max int64) HeightRange {
	return HeightRange{Min: min, Max: max}
}

// Length reports the number of heights the range covers, or 0 if empty.
func (r HeightRange) Length() int64 {
	if r.IsEmpty() {
		return 0
	}
	return r.Max - int64(r.Min) + 1
}

// IsEmpty reports whether Min exceeds Max.
func (r HeightRange) IsEmpty() bool {
	return int64(r.Min) > r.Max
}

// Intersect returns the overlap between r and other.
func (r HeightRange) Intersect(other HeightRange) HeightRange {
	min := r.Min
	if other.Min > min {
		min = other.Min
	}
	max := r.Max
	if other.Max < max {
		max = other.Max
	}
	return HeightRange{Min: min, Max: max}
}

// Union merges r and other, which must overlap or be adjacent.
func (r HeightRange) Union(other HeightRange) (HeightRange, error) {
	if r.IsEmpty() && other.IsEmpty() {
		return r, nil
	}
	if r.IsEmpty() {
		return other, nil
	}
	if other.IsEmpty() {
		return r, nil
	}
	if r.Max+1 < int64(other.Min) || other.Max+1 < int64(r.Min) {
		return HeightRange{}, fmt.Errorf("cannot union height ranges with a gap: %v, %v", r, other)
	}
	min := r.Min
	if other.Min < min {
		min = other.Min
	}
	max := r.Max
	if other.Max > max {
		max = other.Max
	}
	return HeightRange{Min: min, Max: max}, nil
}

// Subtract removes other from r. It errors if other sits in the interior
// of r, since the result would no longer be a single contiguous range.
func (r HeightRange) Subtract(other HeightRange) (HeightRange, error) {
	if r.IsEmpty() || other.IsEmpty() {
		return r, nil
	}
	if other.Max < int64(r.Min) || int64(other.Min) > r.Max {
		return r, nil
	}
	if int64(other.Min) > int64(r.Min) && other.Max < r.Max {
		return HeightRange{}, fmt.Errorf("cannot subtract %v from %v: would leave a hole", other, r)
	}
	if other.Min <= r.Min && other.Max >= r.Max {
		return HeightRange{Min: r.Min, Max: int64(r.Min) - 1}, nil
	}
	if other.Min <= r.Min {
		return HeightRange{Min: uint32(other.Max + 1), Max: r.Max}, nil
	}
	return HeightRange{Min: r.Min, Max: int64(other.Min) - 1}, nil
}

func (r HeightRange) String() string {
	return fmt.Sprintf("HeightRange(min=%d, max=%d)", r.Min, r.Max)
}
