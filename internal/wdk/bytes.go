package wdk

import (
	"encoding/json"
	"fmt"
)

// ByteSlice carries binary payloads across the BRC-100 JSON boundary as
// list[int] (spec.md §9: "at the JSON boundary always use list[int]; at the
// internal boundary use bytes and convert once").
type ByteSlice []byte

// MarshalJSON renders the byte slice as a JSON array of 0-255 ints.
func (b ByteSlice) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

// UnmarshalJSON parses a JSON array of 0-255 ints into bytes.
func (b *ByteSlice) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("decode byte slice: %w", err)
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("decode byte slice: value %d at index %d out of byte range", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}
