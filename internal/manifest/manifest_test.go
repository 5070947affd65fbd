package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caldrift/caldrift/internal/manifest"
	"github.com/caldrift/caldrift/internal/testutil"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	m := manifest.Default()
	assert.Equal(t, "raw.fits", m.PrimarySuffix)
	assert.Equal(t, ".fits", m.ArtifactSuffix)
	assert.Equal(t, "INSTRUME", m.DispatchKeyword)
	assert.Len(t, m.Rules, 3)
	assert.Contains(t, m.IgnoreKeys, "DATE")

	assert.True(t, m.IsPrimary("j8c1_raw.fits"))
	assert.False(t, m.IsPrimary("j8c1_flt.fits"))
	assert.True(t, m.IsArtifact("j8c1_flt.fits"))
	assert.False(t, m.IsArtifact("j8c1.tra"))
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeManifest(t, `
primary_suffix: uncal.fits
rules:
  - value: NIRCAM
    exe: calwebb.e
tolerance:
  absolute: 1.0e-6
  relative: 1.0e-4
ignore_keys: [DATE, FILENAME]
`)

	m, err := manifest.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "uncal.fits", m.PrimarySuffix)
	// Unset fields keep their defaults.
	assert.Equal(t, ".fits", m.ArtifactSuffix)
	assert.Equal(t, "INSTRUME", m.DispatchKeyword)
	require.Len(t, m.Rules, 1)
	assert.Equal(t, "calwebb.e", m.Rules[0].Exe)
	assert.InDelta(t, 1e-6, m.Tolerance.Absolute, 0)
	assert.InDelta(t, 1e-4, m.Tolerance.Relative, 0)
	assert.Equal(t, []string{"DATE", "FILENAME"}, m.IgnoreKeys)
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	m, err := manifest.Load(writeManifest(t, ""))
	require.NoError(t, err)
	assert.Equal(t, manifest.Default(), m)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	_, err := manifest.Load(writeManifest(t, "primry_sufix: raw.fits\n"))
	require.Error(t, err)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty primary suffix": "primary_suffix: \"\"\n",
		"rule without exe":     "rules:\n  - value: ACS\n",
		"negative tolerance":   "tolerance:\n  absolute: -1\n",
	}
	for name, content := range cases {
		_, err := manifest.Load(writeManifest(t, content))
		assert.Error(t, err, name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := manifest.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestCommand_ResolvesRule(t *testing.T) {
	input := filepath.Join(t.TempDir(), "iabc_raw.fits")
	testutil.WriteArtifact(t, input, testutil.UnitSpec{
		Cards: []testutil.Card{{Key: "INSTRUME", Value: "wfc3"}},
	})

	m := manifest.Default()
	argv, err := m.Command("/opt/cal/bin", input)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("/opt/cal/bin", "calwf3.e"), "-v", "-1", input}, argv)
}

func TestCommand_NoRule(t *testing.T) {
	input := filepath.Join(t.TempDir(), "x_raw.fits")
	testutil.WriteArtifact(t, input, testutil.UnitSpec{
		Cards: []testutil.Card{{Key: "INSTRUME", Value: "NICMOS"}},
	})

	_, err := manifest.Default().Command("/opt/cal/bin", input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rule")
}

func TestCommand_MissingKeyword(t *testing.T) {
	input := filepath.Join(t.TempDir(), "y_raw.fits")
	testutil.WriteArtifact(t, input, testutil.UnitSpec{})

	_, err := manifest.Default().Command("/opt/cal/bin", input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatch keyword")
}

func TestComparator_CarriesTolerance(t *testing.T) {
	m := manifest.Default()
	m.Tolerance = manifest.Tolerance{Absolute: 0.5, Relative: 0.01}
	cmp := m.Comparator()
	assert.Equal(t, 0.5, cmp.Tolerance.Absolute)
	assert.Equal(t, 0.01, cmp.Tolerance.Relative)
	assert.Equal(t, m.IgnoreKeys, cmp.IgnoreKeys)
}
