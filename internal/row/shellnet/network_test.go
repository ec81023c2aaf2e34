package shellnet

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrinav-robotics/rowfollow/internal/row/points"
)

// tinyArchitecture keeps forward passes cheap in tests while exercising
// multiple stages, a feature-space stage, and skip fusion.
func tinyArchitecture() Architecture {
	return Architecture{
		PointFeatures: 16,
		Encoder: []StageConfig{
			{Centroids: 32, K: 8, Divisions: 2, OutDim: 24},
			{Centroids: 8, K: 4, Divisions: 2, OutDim: 32, FeatureSpace: true},
		},
		DecoderDims:      []int{24, 16},
		ClassifierHidden: 12,
		Classes:          ClassLabelMap{"ground", "row"},
		RowClass:         1,
	}
}

func cloud(n int, seed int64) points.SampledPointSet {
	rng := rand.New(rand.NewSource(seed))
	pts := make(points.SampledPointSet, n)
	for i := range pts {
		pts[i] = r3.Vector{X: rng.Float64() * 5, Y: rng.Float64() * 5, Z: rng.Float64() * 0.3}
	}
	return pts
}

func TestNetworkForwardRestoresFullResolution(t *testing.T) {
	t.Parallel()

	m, err := NewModel(tinyArchitecture(), 1)
	require.NoError(t, err)

	pts := cloud(64, 9)
	feats, err := m.Net.Forward(pts)
	require.NoError(t, err)

	rows, cols := feats.Dims()
	assert.Equal(t, len(pts), rows, "decoder must restore one feature vector per sampled point")
	assert.Equal(t, 16, cols)
}

func TestNetworkForwardDeterministic(t *testing.T) {
	t.Parallel()

	m, err := NewModel(tinyArchitecture(), 7)
	require.NoError(t, err)

	pts := cloud(64, 2)
	a, err := m.Net.Forward(pts)
	require.NoError(t, err)
	b, err := m.Net.Forward(pts)
	require.NoError(t, err)
	assert.True(t, a.RawMatrix().Rows == b.RawMatrix().Rows)
	assert.Equal(t, a.RawMatrix().Data, b.RawMatrix().Data, "inference must be deterministic for fixed weights")
}

func TestModelLabelRange(t *testing.T) {
	t.Parallel()

	m, err := NewModel(tinyArchitecture(), 3)
	require.NoError(t, err)

	labels, err := m.Label(cloud(64, 4))
	require.NoError(t, err)
	require.Len(t, labels, 64)
	for i, l := range labels {
		assert.GreaterOrEqual(t, l, 0, "point %d", i)
		assert.Less(t, l, len(m.Labels()), "point %d", i)
	}
}
