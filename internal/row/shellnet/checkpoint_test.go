package shellnet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrinav-robotics/rowfollow/internal/row/points"
)

func TestCheckpointRoundTrip(t *testing.T) {
	t.Parallel()

	m, err := NewModel(tinyArchitecture(), 11)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, m.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Arch, loaded.Arch)

	pts := cloud(64, 6)
	want, err := m.Label(pts)
	require.NoError(t, err)
	got, err := loaded.Label(pts)
	require.NoError(t, err)
	assert.Equal(t, want, got, "reloaded checkpoint must reproduce labels exactly")
}

func TestLoadMissingFileFails(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestArchitectureValidation(t *testing.T) {
	t.Parallel()

	t.Run("default is valid", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, DefaultArchitecture().Validate())
	})

	t.Run("K not divisible into shells", func(t *testing.T) {
		t.Parallel()
		arch := tinyArchitecture()
		arch.Encoder[0].Divisions = 3
		assert.Error(t, arch.Validate())
	})

	t.Run("stage cannot supply K neighbors", func(t *testing.T) {
		t.Parallel()
		arch := tinyArchitecture()
		// Second stage searches the 32 centroids of the first; K >= 32
		// can never find 32 distinct neighbors.
		arch.Encoder[1].K = 32
		arch.Encoder[1].Divisions = 4
		assert.Error(t, arch.Validate())
	})

	t.Run("centroids exceed active points", func(t *testing.T) {
		t.Parallel()
		arch := tinyArchitecture()
		arch.Encoder[0].Centroids = points.SampleSize + 1
		assert.Error(t, arch.Validate())
	})

	t.Run("feature space on first stage", func(t *testing.T) {
		t.Parallel()
		arch := tinyArchitecture()
		arch.Encoder[0].FeatureSpace = true
		assert.Error(t, arch.Validate())
	})

	t.Run("row class out of range", func(t *testing.T) {
		t.Parallel()
		arch := tinyArchitecture()
		arch.RowClass = 5
		assert.Error(t, arch.Validate())
	})

	t.Run("decoder dim mismatch", func(t *testing.T) {
		t.Parallel()
		arch := tinyArchitecture()
		arch.DecoderDims = arch.DecoderDims[:1]
		assert.Error(t, arch.Validate())
	})
}

func TestLoadRejectsShapeMismatch(t *testing.T) {
	t.Parallel()

	m, err := NewModel(tinyArchitecture(), 13)
	require.NoError(t, err)

	// Declare a wider classifier hidden layer than the stored weights
	// actually have: the shape check must fail at load, fatally.
	m.Arch.ClassifierHidden = 20
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, m.Save(path))

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier hidden")
}
