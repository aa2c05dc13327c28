// Package embedding provides the fixed-dimension text encoder the
// disentangler and article store depend on, plus a process-local cache
// in front of it.
package embedding

import (
	"context"
	"math"
)

// Dimensions is the fixed output dimension D every Provider implementation
// must produce. It is a build-time constant, not a runtime parameter.
const Dimensions = 384

// Provider encodes text into dense vectors. Encode and EncodeBatch are
// deterministic given input and model identity; callers must treat a
// returned error as "no vector available" and degrade gracefully rather
// than fail the surrounding operation.
type Provider interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

// L2Normalize scales v to unit length in place and returns it. A
// zero-length vector is returned unchanged.
func L2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
