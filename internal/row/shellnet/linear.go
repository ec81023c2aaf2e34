package shellnet

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Linear is a learned affine map y = Wx + b. Weights are immutable
// after model load; Apply never mutates the layer, so concurrent reads
// need no locking.
type Linear struct {
	W *mat.Dense    // out x in
	B *mat.VecDense // out
}

// newLinear builds a layer with Glorot-uniform initial weights.
func newLinear(out, in int, rng *rand.Rand) *Linear {
	limit := math.Sqrt(6.0 / float64(in+out))
	w := make([]float64, out*in)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * limit
	}
	return &Linear{
		W: mat.NewDense(out, in, w),
		B: mat.NewVecDense(out, nil),
	}
}

// InDim returns the input width.
func (l *Linear) InDim() int {
	_, c := l.W.Dims()
	return c
}

// OutDim returns the output width.
func (l *Linear) OutDim() int {
	r, _ := l.W.Dims()
	return r
}

// Apply computes Wx + b into a fresh vector.
func (l *Linear) Apply(x *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(l.OutDim(), nil)
	out.MulVec(l.W, x)
	out.AddVec(out, l.B)
	return out
}

// checkShape verifies the layer matches the architecture's expected
// dimensions. Shape mismatches are fatal at model load.
func (l *Linear) checkShape(name string, out, in int) error {
	if l == nil || l.W == nil || l.B == nil {
		return fmt.Errorf("%s: missing weights", name)
	}
	r, c := l.W.Dims()
	if r != out || c != in {
		return fmt.Errorf("%s: weight shape %dx%d, want %dx%d", name, r, c, out, in)
	}
	if l.B.Len() != out {
		return fmt.Errorf("%s: bias length %d, want %d", name, l.B.Len(), out)
	}
	return nil
}

// reluInPlace clamps negative entries to zero.
func reluInPlace(v *mat.VecDense) {
	raw := v.RawVector()
	for i := 0; i < raw.N; i++ {
		if raw.Data[i*raw.Inc] < 0 {
			raw.Data[i*raw.Inc] = 0
		}
	}
}

// allFinite reports whether every entry of v is a finite number.
func allFinite(v mat.Vector) bool {
	for i := 0; i < v.Len(); i++ {
		x := v.AtVec(i)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
