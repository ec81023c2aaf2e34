// Package points normalises a variable-size raw LIDAR scan into the
// fixed-size point set the network consumes. Downstream stages assume
// only a fixed-size, order-independent point set, so the sampling
// policy can be upgraded (e.g. farthest-point sampling) without
// touching any other package.
package points

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/golang/geo/r3"
)

// SampleSize is the fixed number of points every sampled set carries,
// regardless of how many points the sensor returned.
const SampleSize = 1024

// RawScan is one sensor frame's worth of points, variable length.
type RawScan []r3.Vector

// SampledPointSet is a fixed-size point set drawn from a RawScan.
// Invariant: len == the preprocessor's configured size (SampleSize in
// production), always.
type SampledPointSet []r3.Vector

// ErrEmptyScan reports a scan with no points. The frame carries no
// usable perception; the caller skips it and surfaces the previous
// estimate or a loss-of-perception signal to navigation.
var ErrEmptyScan = errors.New("empty scan")

// Preprocessor draws fixed-size point sets from raw scans.
type Preprocessor struct {
	// Size is the number of points per sampled set. Zero means SampleSize.
	Size int
}

// NewPreprocessor returns a preprocessor producing SampleSize-point sets.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{Size: SampleSize}
}

// Sample draws exactly p.Size points from scan using rng.
//
// N >= Size: a uniform sample without replacement. The output order is
// a uniform random permutation, so any prefix of the result is itself a
// uniform subsample; deeper stages rely on this when selecting
// centroid sets.
//
// N < Size: the scan is resampled with replacement until the set is
// full.
//
// N == 0: fails with ErrEmptyScan.
//
// The draw is fully determined by the rng stream, so a fixed seed
// reproduces the same sampled set for the same scan.
func (p *Preprocessor) Sample(scan RawScan, rng *rand.Rand) (SampledPointSet, error) {
	size := p.Size
	if size <= 0 {
		size = SampleSize
	}
	n := len(scan)
	if n == 0 {
		return nil, fmt.Errorf("preprocess: %w", ErrEmptyScan)
	}

	out := make(SampledPointSet, size)
	if n >= size {
		// Partial Fisher-Yates: the first `size` entries of a uniform
		// permutation of scan indices.
		idx := rng.Perm(n)
		for i := 0; i < size; i++ {
			out[i] = scan[idx[i]]
		}
		return out, nil
	}

	for i := 0; i < size; i++ {
		out[i] = scan[rng.Intn(n)]
	}
	return out, nil
}
