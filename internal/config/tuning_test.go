package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrinav-robotics/rowfollow/internal/row/extract"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadPartialConfigOverlaysDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"min_row_points": 50, "max_heading_deg": 60}`)
	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	p := extract.DefaultParams()
	cfg.ApplyExtract(&p)
	assert.Equal(t, 50, p.MinRowPoints)
	assert.Equal(t, 60.0, p.MaxHeadingDeg)
	// Untouched fields keep their defaults.
	assert.Equal(t, extract.DefaultParams().MinAnisotropy, p.MinAnisotropy)
	assert.Equal(t, extract.DefaultParams().ResidualScaleM, p.ResidualScaleM)
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	t.Parallel()

	_, err := LoadTuningConfig("tuning.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"min_row_points": `)
	_, err := LoadTuningConfig(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"min_row_points below two":   `{"min_row_points": 0}`,
		"one row point allowed":      `{"min_row_points": 1}`,
		"zero full support":          `{"full_support_points": 0}`,
		"anisotropy below one":       `{"min_anisotropy": 0.5}`,
		"heading bound above ninety": `{"max_heading_deg": 120}`,
		"heading bound zero":         `{"max_heading_deg": 0}`,
		"residual scale zero":        `{"residual_scale_m": 0}`,
	} {
		body := body
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadTuningConfig(writeConfig(t, body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestValidateAcceptsBoundaryValues(t *testing.T) {
	t.Parallel()

	cfg, err := LoadTuningConfig(writeConfig(t,
		`{"min_row_points": 2, "max_heading_deg": 90, "min_anisotropy": 1}`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func TestSeedFallback(t *testing.T) {
	t.Parallel()

	var nilCfg *TuningConfig
	assert.Equal(t, int64(42), nilCfg.Seed(42))

	path := writeConfig(t, `{"sampling_seed": 7}`)
	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Seed(42))
}
