package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/katalvlaran/ifucube/config"
	"github.com/katalvlaran/ifucube/fluxcal"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ifucube.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Fatalf("defaults (-want +got):\n%s", diff)
	}
	assert.Equal(t, 6, cfg.FluxCal.Degree)
	assert.True(t, cfg.Flexure.Enabled)
	assert.Equal(t, 1.1, cfg.Detector.DefaultAirmass)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
detector:
  width: 1024
  height: 512
  geometry: traces.yaml
flexure:
  step: 0.25
  seed: 42
fluxcal:
  degree: 4
logging:
  level: warn
`)
	t.Setenv("IFUCUBE_FLEXURE_SEED", "7")
	t.Setenv("IFUCUBE_EXTRACTION_WORKERS", "2")
	t.Setenv("IFUCUBE_LOGGING_FORMAT", "json")
	t.Setenv("IFUCUBE_DETECTOR_DEFAULT_AIRMASS", "1.3")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Detector.Width)
	assert.Equal(t, 512, cfg.Detector.Height)
	assert.Equal(t, "traces.yaml", cfg.Detector.Geometry)
	assert.Equal(t, 0.25, cfg.Flexure.Step)
	assert.Equal(t, int64(7), cfg.Flexure.Seed, "env wins over file")
	assert.Equal(t, 3.0, cfg.Flexure.SearchRange, "untouched default")
	assert.Equal(t, 4, cfg.FluxCal.Degree)
	assert.Equal(t, 2, cfg.Extraction.Workers)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 1.3, cfg.Detector.DefaultAirmass)
}

func TestLoad_Rejects(t *testing.T) {
	_, err := config.Load(writeFile(t, "detector:\n  widht: 3\n"))
	assert.Error(t, err, "unknown key")

	_, err = config.Load(writeFile(t, "logging:\n  level: loud\n"))
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = config.Load(writeFile(t, "extraction:\n  grid: {start: 4000, step: 2}\n"))
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = config.Load(writeFile(t, "detector:\n  default_airmass: 0.5\n"))
	assert.ErrorIs(t, err, config.ErrInvalid)

	t.Setenv("IFUCUBE_FLUXCAL_DEGREE", "six")
	_, err = config.Load("")
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSave_RoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Extraction.Grid = config.GridConfig{Start: 3700, Step: 25, N: 220}
	cfg.FluxCal.References = "/data/standards"
	path := filepath.Join(t.TempDir(), "nested", "cfg.yaml")
	require.NoError(t, cfg.Save(path))

	back, err := config.Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, back); diff != "" {
		t.Fatalf("round trip (-saved +loaded):\n%s", diff)
	}
}

func TestConfig_PackageOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Extraction.Workers = 3
	cfg.Extraction.Grid = config.GridConfig{Start: 4000, Step: 10, N: 5}
	log := zaptest.NewLogger(t)

	po, err := cfg.PipelineOptions(log)
	require.NoError(t, err)
	assert.Equal(t, []float64{4000, 4010, 4020, 4030, 4040}, po.Grid)
	require.NotNil(t, po.Flexure)
	assert.Equal(t, 3, po.Flexure.Workers)
	assert.Equal(t, cfg.Flexure.Step, po.Flexure.Step)
	assert.Equal(t, 1.1, po.DefaultAirmass)

	cfg.Flexure.Enabled = false
	assert.Nil(t, cfg.FlexureOptions(log))

	cfg.FluxCal.Degree = 3
	c, err := fluxcal.NewCalibrator(cfg.FluxCalOptions(log)...)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Options().Degree)
	assert.Equal(t, cfg.FluxCal.O2, c.Options().O2)
}

func TestConfig_Logger(t *testing.T) {
	cfg := config.Default()
	l, err := cfg.Logger(false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = cfg.Logger(true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}
