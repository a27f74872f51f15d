// Package distance provides the distance metrics used for vector scoring.
// Every metric is normalized so that a lower score means a closer match.
package distance

import (
	"fmt"
	"math/bits"
)

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	// MetricL2 is squared Euclidean distance.
	MetricL2 Metric = iota
	// MetricIP is negative inner product, so ascending order still means
	// closest-first.
	MetricIP
	// MetricHamming counts differing bits between packed binary vectors.
	MetricHamming
)

// String returns the string representation of the Metric.
func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricIP:
		return "IP"
	case MetricHamming:
		return "Hamming"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// Func is a function type for distance calculation on float32 vectors.
type Func func(a, b []float32) float32

// FuncBytes is a function type for distance calculation on packed bit vectors.
type FuncBytes func(a, b []byte) float32

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two
// vectors. Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// NegDot is the inner-product metric: -Dot(a, b), lower = closer.
func NegDot(a, b []float32) float32 {
	return -Dot(a, b)
}

// Hamming calculates the Hamming distance between two packed bit vectors.
// Assumes slices are the same length.
func Hamming(a, b []byte) float32 {
	var count int
	for i := range a {
		count += bits.OnesCount8(a[i] ^ b[i])
	}
	return float32(count)
}

// Provider returns the distance function for the given metric on float32
// vectors.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricIP:
		return NegDot, nil
	default:
		return nil, fmt.Errorf("unsupported metric for float32: %v", m)
	}
}

// ProviderBytes returns the distance function for the given metric on
// packed bit vectors.
func ProviderBytes(m Metric) (FuncBytes, error) {
	switch m {
	case MetricHamming:
		return Hamming, nil
	default:
		return nil, fmt.Errorf("unsupported metric for bytes: %v", m)
	}
}
