package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/trapsort/pkg/filter"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	c := DefaultConfig()
	c.InputDir = "in"
	c.OutputDir = "out"
	c.Oracle.Backend = OracleHTTP
	c.Oracle.URL = "http://localhost:8000"
	return c
}

func TestDefaults(t *testing.T) {
	c := DefaultConfig()
	require.Equal(t, 5, c.DetectorInterval)
	require.Equal(t, 512, c.DetectorWidth)
	require.Equal(t, 40, c.MinBoxSize)
	require.Equal(t, float32(0.3), c.IoUThreshold)
	require.Equal(t, 30, c.MaxAge)
	require.Equal(t, "mp4v", c.VideoCodec)
	require.Equal(t, ErrorPolicyAbort, c.ErrorPolicy)
	require.NoError(t, validConfig().Validate())
}

func TestLoadConfig(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(fn, []byte(`{"inputDir": "/a", "targetClasses": ["Leopard"], "detectorInterval": 3}`), 0644))
	c, err := LoadConfig(fn)
	require.NoError(t, err)
	require.Equal(t, "/a", c.InputDir)
	require.Equal(t, []string{"Leopard"}, c.TargetClasses)
	require.Equal(t, 3, c.DetectorInterval)
	// Untouched fields keep their defaults
	require.Equal(t, 512, c.DetectorWidth)

	require.NoError(t, os.WriteFile(fn, []byte(`{`), 0644))
	_, err = LoadConfig(fn)
	require.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	dotEnv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotEnv, []byte("TRAPSORT_OUTPUT_DIR=/from-dotenv\nTRAPSORT_INPUT_DIR=/ignored\n"), 0644))

	t.Setenv("TRAPSORT_INPUT_DIR", "/from-env")
	t.Setenv("TRAPSORT_TARGET_CLASSES", "Leopard, Red Fox,,")
	t.Setenv("TRAPSORT_DETECTOR_INTERVAL", "7")
	t.Setenv("TRAPSORT_IOU_THRESHOLD", "0.5")
	t.Setenv("TRAPSORT_TILED_IMAGES", "true")
	require.NoError(t, LoadEnv(dotEnv))
	// godotenv.Load sets the variable in the process. Make sure it's cleaned up.
	t.Cleanup(func() { os.Unsetenv("TRAPSORT_OUTPUT_DIR") })

	c := DefaultConfig()
	require.NoError(t, c.ApplyEnv())
	// Existing environment wins over .env
	require.Equal(t, "/from-env", c.InputDir)
	require.Equal(t, "/from-dotenv", c.OutputDir)
	require.Equal(t, []string{"Leopard", "Red Fox"}, c.TargetClasses)
	require.Equal(t, 7, c.DetectorInterval)
	require.Equal(t, float32(0.5), c.IoUThreshold)
	require.True(t, c.TiledImages)

	t.Setenv("TRAPSORT_MAX_AGE", "lots")
	require.Error(t, c.ApplyEnv())

	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env")))
}

func TestValidate(t *testing.T) {
	c := validConfig()
	c.DetectionMode = "vehicle"
	require.True(t, errors.Is(c.Validate(), filter.ErrInvalidMode))

	c = validConfig()
	c.OutputDir = "in/"
	require.Error(t, c.Validate())

	c = validConfig()
	c.DetectorInterval = 0
	c.ErrorPolicy = "retry"
	err := c.Validate()
	require.ErrorContains(t, err, "detectorInterval")
	require.ErrorContains(t, err, "errorPolicy")

	c = validConfig()
	c.Oracle.Backend = OracleONNX
	require.ErrorContains(t, c.Validate(), "detectorModel")
	c.Oracle.DetectorModel = "md.onnx"
	require.ErrorContains(t, c.Validate(), "classifierModel")
	c.DetectionMode = "human"
	require.NoError(t, c.Validate())
}

func TestModelConfigPath(t *testing.T) {
	require.Equal(t, "models/md.json", ModelConfigPath("models/md.onnx", ""))
	require.Equal(t, "x.json", ModelConfigPath("models/md.onnx", "x.json"))
}
