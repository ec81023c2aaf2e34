package shellnet

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testClassifier(featDim, hidden, classes int) *Classifier {
	rng := rand.New(rand.NewSource(17))
	return &Classifier{
		Hidden: newLinear(hidden, featDim, rng),
		Out:    newLinear(classes, hidden, rng),
	}
}

func TestClassifierLabelsInRange(t *testing.T) {
	t.Parallel()

	c := testClassifier(8, 6, 3)
	rng := rand.New(rand.NewSource(2))
	feats := mat.NewDense(50, 8, nil)
	for i := 0; i < 50; i++ {
		for j := 0; j < 8; j++ {
			feats.Set(i, j, rng.NormFloat64())
		}
	}

	labels, err := c.Label(feats)
	require.NoError(t, err)
	require.Len(t, labels, 50)
	for _, l := range labels {
		assert.GreaterOrEqual(t, l, 0)
		assert.Less(t, l, 3)
	}
}

func TestClassifierRejectsNonFinite(t *testing.T) {
	t.Parallel()

	c := testClassifier(4, 4, 2)

	for name, bad := range map[string]float64{
		"NaN":  math.NaN(),
		"+Inf": math.Inf(1),
		"-Inf": math.Inf(-1),
	} {
		bad := bad
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			feats := mat.NewDense(3, 4, nil)
			feats.Set(1, 2, bad)
			_, err := c.Label(feats)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidFeature)
		})
	}
}

func TestClassifierFeatureWidthMismatch(t *testing.T) {
	t.Parallel()

	c := testClassifier(8, 6, 2)
	_, err := c.Label(mat.NewDense(5, 7, nil))
	assert.Error(t, err)
}

func TestClassifierProbabilitiesSumToOne(t *testing.T) {
	t.Parallel()

	c := testClassifier(5, 4, 4)
	v := mat.NewVecDense(5, []float64{0.3, -1.2, 2.0, 0.0, 0.7})
	probs, err := c.Probabilities(v)
	require.NoError(t, err)
	require.Len(t, probs, 4)

	var sum float64
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestClassLabelMapName(t *testing.T) {
	t.Parallel()

	m := ClassLabelMap{"ground", "row"}
	assert.Equal(t, "row", m.Name(1))
	assert.Equal(t, "class-7", m.Name(7))
}
