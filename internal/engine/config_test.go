package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, PostProcessSketch, c.PostProcessLevel)
	assert.False(t, c.DisableInterproc)
	assert.NoError(t, c.Validate())
}

func TestApplyEnv_Overlays(t *testing.T) {
	c := DefaultConfig()
	err := ApplyEnv(&c, envLookup(map[string]string{
		EnvDisableInterproc: "1",
		EnvPostProcessLevel: "2",
		EnvSatTimeout:       "1.5",
		EnvSatNoPtrRule:     "true",
		EnvTraceIDs:         "a, b,",
		EnvPolyFuncs:        `["f", "g"]`,
		EnvPointerSize:      "64",
		EnvDebugDir:         "/tmp/notdec",
	}))
	require.NoError(t, err)

	assert.True(t, c.DisableInterproc)
	assert.True(t, c.NoPointerRule)
	assert.Equal(t, PostProcessMinimize, c.PostProcessLevel)
	assert.Equal(t, 1500*time.Millisecond, c.SatTimeout)
	assert.Equal(t, []string{"a", "b"}, c.TraceIDs)
	assert.Equal(t, []string{"f", "g"}, c.PolyFuncs)
	assert.Equal(t, uint32(64), c.PointerSize)
	assert.Equal(t, "/tmp/notdec", c.DebugDir)
}

func TestApplyEnv_EmptyValuesIgnored(t *testing.T) {
	c := DefaultConfig()
	c.DebugDir = "keep"
	require.NoError(t, ApplyEnv(&c, envLookup(map[string]string{EnvDebugDir: "", EnvNoSCC: ""})))
	assert.Equal(t, "keep", c.DebugDir)
	assert.False(t, c.NoSCC)
}

func TestApplyEnv_PolyFuncsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poly.json")
	require.NoError(t, os.WriteFile(path, []byte(`["h"]`), 0o644))

	c := DefaultConfig()
	require.NoError(t, ApplyEnv(&c, envLookup(map[string]string{EnvPolyFuncs: path})))
	assert.Equal(t, []string{"h"}, c.PolyFuncs)
}

func TestApplyEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"level not a number", map[string]string{EnvPostProcessLevel: "high"}},
		{"level out of range", map[string]string{EnvPostProcessLevel: "3"}},
		{"timeout not a number", map[string]string{EnvSatTimeout: "soon"}},
		{"pointer size", map[string]string{EnvPointerSize: "24"}},
		{"poly funcs not json", map[string]string{EnvPolyFuncs: "[f"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			assert.Error(t, ApplyEnv(&c, envLookup(tt.env)))
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notdec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"postprocess_level: 1\n"+
			"poly_funcs: [f]\n"+
			"sat_timeout: 2s\n"+
			"merge_monomorphic: true\n"), 0o644))

	c := DefaultConfig()
	require.NoError(t, LoadConfigFile(&c, path))
	assert.Equal(t, PostProcessDeterminize, c.PostProcessLevel)
	assert.Equal(t, []string{"f"}, c.PolyFuncs)
	assert.Equal(t, 2*time.Second, c.SatTimeout)
	assert.True(t, c.MergeMonomorphic)
}

func TestLoadConfigFile_Missing(t *testing.T) {
	c := DefaultConfig()
	err := LoadConfigFile(&c, filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestConfig_SaturateOptions(t *testing.T) {
	c := DefaultConfig()
	c.NoPointerRule = true
	opts := c.saturateOptions()
	assert.True(t, opts.NoPointerRule)
	assert.Nil(t, opts.Budget, "no limits, no budget")

	c.SatMaxRounds = 3
	a, b := c.saturateOptions(), c.saturateOptions()
	require.NotNil(t, a.Budget)
	assert.NotSame(t, a.Budget, b.Budget, "every saturation gets a fresh budget")
}
