package facematch

import (
	"encoding/json"
	"fmt"
	"math"
)

// Dim is the descriptor length produced by the reference recognition model.
const Dim = 128

// Descriptor is a face embedding. All descriptors compared with each other
// must have the same length.
type Descriptor []float32

// Distance returns the Euclidean distance between two descriptors.
// It panics when the lengths differ.
func Distance(a, b Descriptor) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("facematch: descriptor length mismatch %d != %d", len(a), len(b)))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Clone returns an independent copy.
func (d Descriptor) Clone() Descriptor {
	if d == nil {
		return nil
	}
	out := make(Descriptor, len(d))
	copy(out, d)
	return out
}

// Float64s returns the persisted form of the descriptor.
func (d Descriptor) Float64s() []float64 {
	out := make([]float64, len(d))
	for i, v := range d {
		out[i] = float64(v)
	}
	return out
}

// FromFloat64s converts the persisted form back into a descriptor.
func FromFloat64s(vals []float64) Descriptor {
	out := make(Descriptor, len(vals))
	for i, v := range vals {
		out[i] = float32(v)
	}
	return out
}

// EncodeDescriptor serializes d as a JSON array of float64 values.
func EncodeDescriptor(d Descriptor) (string, error) {
	b, err := json.Marshal(d.Float64s())
	if err != nil {
		return "", fmt.Errorf("encode descriptor: %w", err)
	}
	return string(b), nil
}

// DecodeDescriptor parses the JSON array written by EncodeDescriptor.
func DecodeDescriptor(s string) (Descriptor, error) {
	var vals []float64
	if err := json.Unmarshal([]byte(s), &vals); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("decode descriptor: empty")
	}
	return FromFloat64s(vals), nil
}
