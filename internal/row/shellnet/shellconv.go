package shellnet

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/agrinav-robotics/rowfollow/internal/row/neighbors"
)

// ShellConv is the permutation-invariant local feature extractor: it
// lifts each neighbor's relative offset into a point feature, partitions
// the K distance-ordered neighbors into Divisions contiguous shells,
// max-reduces within each shell, and maps the concatenated shell vectors
// to the block's output feature.
//
// The max reduction makes the output invariant to any permutation of
// neighbors *within* a shell; shell boundaries depend only on distance
// rank, never on input order.
type ShellConv struct {
	K         int
	Divisions int
	PrevDim   int // width of the prior stage's per-point features, 0 at the first stage
	OutDim    int

	Lift1   *Linear // 3 -> F/2, ReLU
	Lift2   *Linear // F/2 -> F, ReLU
	Combine *Linear // (F+PrevDim)*Divisions -> OutDim
}

// newShellConv builds a block with random weights for the given shape.
func newShellConv(k, divisions, prevDim, outDim, pointFeatures int, rng *rand.Rand) *ShellConv {
	half := pointFeatures / 2
	return &ShellConv{
		K:         k,
		Divisions: divisions,
		PrevDim:   prevDim,
		OutDim:    outDim,
		Lift1:     newLinear(half, 3, rng),
		Lift2:     newLinear(pointFeatures, half, rng),
		Combine:   newLinear(outDim, (pointFeatures+prevDim)*divisions, rng),
	}
}

// pointFeatures returns the lift output width F.
func (sc *ShellConv) pointFeatures() int {
	return sc.Lift2.OutDim()
}

// checkShapes validates all layer dimensions against the block's
// configured shape.
func (sc *ShellConv) checkShapes(name string, pointFeatures int) error {
	if sc.K <= 0 || sc.Divisions <= 0 || sc.K%sc.Divisions != 0 {
		return fmt.Errorf("%s: K=%d not divisible into %d shells", name, sc.K, sc.Divisions)
	}
	half := pointFeatures / 2
	if err := sc.Lift1.checkShape(name+" lift1", half, 3); err != nil {
		return err
	}
	if err := sc.Lift2.checkShape(name+" lift2", pointFeatures, half); err != nil {
		return err
	}
	inCh := (pointFeatures + sc.PrevDim) * sc.Divisions
	return sc.Combine.checkShape(name+" combine", sc.OutDim, inCh)
}

// Forward produces the block's output feature for one query point from
// its neighbor shell. prev holds the prior stage's features (one row per
// searched point) and may be nil when PrevDim is 0.
func (sc *ShellConv) Forward(sh neighbors.Shell, prev *mat.Dense) *mat.VecDense {
	f := sc.pointFeatures()
	inCh := f + sc.PrevDim
	shellSize := sc.K / sc.Divisions

	// One max-reduced vector per shell, nearest shell first.
	combined := mat.NewVecDense(inCh*sc.Divisions, nil)
	for i := 0; i < combined.Len(); i++ {
		combined.SetVec(i, math.Inf(-1))
	}

	off := mat.NewVecDense(3, nil)
	for k := 0; k < sc.K; k++ {
		o := sh.Offsets[k]
		off.SetVec(0, o.X)
		off.SetVec(1, o.Y)
		off.SetVec(2, o.Z)

		h := sc.Lift1.Apply(off)
		reluInPlace(h)
		lifted := sc.Lift2.Apply(h)
		reluInPlace(lifted)

		shell := k / shellSize
		base := shell * inCh
		for i := 0; i < f; i++ {
			if v := lifted.AtVec(i); v > combined.AtVec(base+i) {
				combined.SetVec(base+i, v)
			}
		}
		if sc.PrevDim > 0 {
			idx := sh.Indices[k]
			for i := 0; i < sc.PrevDim; i++ {
				if v := prev.At(idx, i); v > combined.AtVec(base+f+i) {
					combined.SetVec(base+f+i, v)
				}
			}
		}
	}

	return sc.Combine.Apply(combined)
}
