package shellnet

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidFeature reports a non-finite value in a per-point feature
// vector or the resulting logits, typically numerical overflow
// propagated from upstream. The frame is skipped, never clamped.
var ErrInvalidFeature = errors.New("non-finite feature value")

// ClassLabelMap is the fixed mapping from class index to semantic
// meaning, loaded once from the checkpoint and immutable thereafter.
type ClassLabelMap []string

// Name returns the semantic name for a class index.
func (m ClassLabelMap) Name(i int) string {
	if i < 0 || i >= len(m) {
		return fmt.Sprintf("class-%d", i)
	}
	return m[i]
}

// Classifier maps each per-point feature vector independently to a
// class index. There is no cross-point interaction.
type Classifier struct {
	Hidden *Linear // H x featDim, ReLU
	Out    *Linear // C x H
}

// Classes returns the number of output classes C.
func (c *Classifier) Classes() int {
	return c.Out.OutDim()
}

// Label maps every feature row to its arg-max class index. Logit ties
// resolve to the lowest class index so labelling is deterministic.
func (c *Classifier) Label(features *mat.Dense) ([]int, error) {
	rows, cols := features.Dims()
	if cols != c.Hidden.InDim() {
		return nil, fmt.Errorf("classifier: feature width %d, want %d", cols, c.Hidden.InDim())
	}

	labels := make([]int, rows)
	in := mat.NewVecDense(cols, nil)
	for p := 0; p < rows; p++ {
		for i := 0; i < cols; i++ {
			in.SetVec(i, features.At(p, i))
		}
		if !allFinite(in) {
			return nil, fmt.Errorf("classifier: point %d: %w", p, ErrInvalidFeature)
		}

		h := c.Hidden.Apply(in)
		reluInPlace(h)
		logits := c.Out.Apply(h)
		if !allFinite(logits) {
			return nil, fmt.Errorf("classifier: point %d logits: %w", p, ErrInvalidFeature)
		}

		best, bestV := 0, logits.AtVec(0)
		for i := 1; i < logits.Len(); i++ {
			if v := logits.AtVec(i); v > bestV {
				best, bestV = i, v
			}
		}
		labels[p] = best
	}
	return labels, nil
}

// Probabilities returns the softmax class distribution for one feature
// vector. Used by the evaluation harness; Label does not need it.
func (c *Classifier) Probabilities(feat *mat.VecDense) ([]float64, error) {
	if !allFinite(feat) {
		return nil, ErrInvalidFeature
	}
	h := c.Hidden.Apply(feat)
	reluInPlace(h)
	logits := c.Out.Apply(h)
	if !allFinite(logits) {
		return nil, ErrInvalidFeature
	}

	// Shift by the max logit for numerical stability.
	maxV := math.Inf(-1)
	for i := 0; i < logits.Len(); i++ {
		if v := logits.AtVec(i); v > maxV {
			maxV = v
		}
	}
	probs := make([]float64, logits.Len())
	var sum float64
	for i := range probs {
		probs[i] = math.Exp(logits.AtVec(i) - maxV)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}
