// Package neighbors computes the K-nearest-neighbor shells each network
// stage consumes. The search is brute-force pairwise distance, a known
// inefficiency kept for correctness; a spatial index (k-d tree, grid)
// is a valid drop-in replacement as long as it returns identical
// neighbor sets for unique-distance inputs and keeps the deterministic
// tie-break below.
package neighbors

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Space selects the metric a stage measures neighbor distance in.
type Space int

const (
	// SpaceCoordinates measures Euclidean distance in raw 3D coordinates.
	SpaceCoordinates Space = iota
	// SpaceFeatures measures Euclidean distance between the points'
	// current feature vectors. Offsets are still geometric.
	SpaceFeatures
)

// ErrDegenerateNeighborhood reports an active set too small to supply K
// distinct neighbors (set size <= K, the query itself excluded).
var ErrDegenerateNeighborhood = errors.New("degenerate neighborhood")

// Shell is the ordered neighborhood of one query point: K neighbor
// indices sorted by non-decreasing distance, distance ties broken by
// ascending original index so results are stable and deterministic.
type Shell struct {
	// Query is the query point's index in the searched set.
	Query int
	// Indices are the K neighbor indices into the searched set.
	Indices []int
	// Distances are the matching metric distances, non-decreasing.
	Distances []float64
	// Offsets are query-minus-neighbor 3D offsets, index-aligned with
	// Indices. These feed the shell convolution's lift transform.
	Offsets []r3.Vector
}

// Request describes one stage's neighborhood computation.
type Request struct {
	// Coords are the searched set's 3D coordinates. Offsets always come
	// from here regardless of Space.
	Coords []r3.Vector
	// Features holds one row per searched point; required when Space is
	// SpaceFeatures, ignored otherwise.
	Features *mat.Dense
	// Queries are indices into Coords naming the query centroids. The
	// query point never appears in its own shell.
	Queries []int
	// K is the neighbor count, fixed per network stage by configuration.
	K int
	// Space selects the distance metric.
	Space Space
}

// Indexer performs brute-force K-nearest-neighbor shell construction.
// It is stateless and safe for concurrent use.
type Indexer struct{}

// Shells returns one Shell per request query. It fails with
// ErrDegenerateNeighborhood when the searched set cannot supply K
// distinct neighbors for a query.
func (Indexer) Shells(req Request) ([]Shell, error) {
	n := len(req.Coords)
	if req.K <= 0 {
		return nil, fmt.Errorf("neighbors: invalid K %d", req.K)
	}
	if n <= req.K {
		return nil, fmt.Errorf("neighbors: %d points cannot supply %d distinct neighbors: %w",
			n, req.K, ErrDegenerateNeighborhood)
	}
	if req.Space == SpaceFeatures {
		if req.Features == nil {
			return nil, errors.New("neighbors: feature-space request without features")
		}
		if r, _ := req.Features.Dims(); r != n {
			return nil, fmt.Errorf("neighbors: feature rows %d != point count %d", r, n)
		}
	}

	shells := make([]Shell, len(req.Queries))
	// Reused scratch: candidate index list excluding the query itself.
	cand := make([]int, 0, n-1)
	dist2 := make([]float64, n)

	for qi, q := range req.Queries {
		if q < 0 || q >= n {
			return nil, fmt.Errorf("neighbors: query index %d out of range [0,%d)", q, n)
		}

		for i := 0; i < n; i++ {
			dist2[i] = req.squaredDistance(q, i)
		}

		cand = cand[:0]
		for i := 0; i < n; i++ {
			if i != q {
				cand = append(cand, i)
			}
		}
		sort.Slice(cand, func(a, b int) bool {
			da, db := dist2[cand[a]], dist2[cand[b]]
			if da != db {
				return da < db
			}
			return cand[a] < cand[b]
		})

		sh := Shell{
			Query:     q,
			Indices:   make([]int, req.K),
			Distances: make([]float64, req.K),
			Offsets:   make([]r3.Vector, req.K),
		}
		center := req.Coords[q]
		for k := 0; k < req.K; k++ {
			idx := cand[k]
			sh.Indices[k] = idx
			sh.Distances[k] = math.Sqrt(dist2[idx])
			sh.Offsets[k] = center.Sub(req.Coords[idx])
		}
		shells[qi] = sh
	}
	return shells, nil
}

// squaredDistance returns the squared metric distance between searched
// points q and i. Squared form preserves ordering and tie structure.
func (req *Request) squaredDistance(q, i int) float64 {
	if req.Space == SpaceFeatures {
		_, cols := req.Features.Dims()
		var sum float64
		for c := 0; c < cols; c++ {
			d := req.Features.At(q, c) - req.Features.At(i, c)
			sum += d * d
		}
		return sum
	}
	d := req.Coords[q].Sub(req.Coords[i])
	return d.X*d.X + d.Y*d.Y + d.Z*d.Z
}
