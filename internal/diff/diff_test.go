package diff_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caldrift/caldrift/internal/artifact"
	"github.com/caldrift/caldrift/internal/diff"
	"github.com/caldrift/caldrift/internal/testutil"
)

func writePair(t *testing.T, ref, cand testutil.UnitSpec) (string, string) {
	t.Helper()
	dir := t.TempDir()
	refPath := filepath.Join(dir, "ref_flt.fits")
	candPath := filepath.Join(dir, "cand_flt.fits")
	testutil.WriteArtifact(t, refPath, ref)
	testutil.WriteArtifact(t, candPath, cand)
	return refPath, candPath
}

func TestCompare_SelfIsIdentical(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a_flt.fits")
	testutil.WriteArtifact(t, path,
		testutil.UnitSpec{Cards: []testutil.Card{{Key: "INSTRUME", Value: "ACS"}}},
		testutil.UnitSpec{Name: "SCI", Shape: []int{4}, Data: []float64{1, 2, 3, 4}},
	)

	var cmp diff.Comparator
	d, err := cmp.Compare(path, path)
	require.NoError(t, err)
	assert.Equal(t, diff.VerdictIdentical, d.Verdict)
}

func TestCompare_FieldChanged(t *testing.T) {
	refPath, candPath := writePair(t,
		testutil.UnitSpec{Cards: []testutil.Card{{Key: "EXPTIME", Value: 10}}},
		testutil.UnitSpec{Cards: []testutil.Card{{Key: "EXPTIME", Value: 20}}},
	)

	var cmp diff.Comparator
	d, err := cmp.Compare(refPath, candPath)
	require.NoError(t, err)
	require.Equal(t, diff.VerdictDiffering, d.Verdict)
	require.Len(t, d.Units, 1)
	require.Len(t, d.Units[0].Fields, 1)

	f := d.Units[0].Fields[0]
	assert.Equal(t, "EXPTIME", f.Key)
	assert.Equal(t, diff.FieldChanged, f.Kind)
	assert.Equal(t, artifact.Int(10), f.Old)
	assert.Equal(t, artifact.Int(20), f.New)
}

func TestCompare_FieldAddedAndRemoved(t *testing.T) {
	refPath, candPath := writePair(t,
		testutil.UnitSpec{Cards: []testutil.Card{{Key: "ONLYREF", Value: 1}}},
		testutil.UnitSpec{Cards: []testutil.Card{{Key: "ONLYCAND", Value: 2}}},
	)

	var cmp diff.Comparator
	d, err := cmp.Compare(refPath, candPath)
	require.NoError(t, err)
	require.Len(t, d.Units, 1)

	kinds := map[string]diff.FieldChangeKind{}
	for _, f := range d.Units[0].Fields {
		kinds[f.Key] = f.Kind
	}
	assert.Equal(t, diff.FieldRemoved, kinds["ONLYREF"])
	assert.Equal(t, diff.FieldAdded, kinds["ONLYCAND"])
}

func TestCompare_IntFloatRewriteNotADifference(t *testing.T) {
	refPath, candPath := writePair(t,
		testutil.UnitSpec{Cards: []testutil.Card{{Key: "NCOMBINE", Value: 1}}},
		testutil.UnitSpec{Cards: []testutil.Card{{Key: "NCOMBINE", Value: 1.0}}},
	)

	var cmp diff.Comparator
	d, err := cmp.Compare(refPath, candPath)
	require.NoError(t, err)
	assert.Equal(t, diff.VerdictIdentical, d.Verdict)
}

func TestCompare_IgnoredKeys(t *testing.T) {
	refPath, candPath := writePair(t,
		testutil.UnitSpec{Cards: []testutil.Card{{Key: "DATE", Value: "2026-08-01"}}},
		testutil.UnitSpec{Cards: []testutil.Card{{Key: "DATE", Value: "2026-08-02"}}},
	)

	cmp := diff.Comparator{IgnoreKeys: []string{"date"}}
	d, err := cmp.Compare(refPath, candPath)
	require.NoError(t, err)
	assert.Equal(t, diff.VerdictIdentical, d.Verdict)
}

func TestCompare_UnitPresence(t *testing.T) {
	dir := t.TempDir()
	refPath := filepath.Join(dir, "ref_flt.fits")
	candPath := filepath.Join(dir, "cand_flt.fits")
	testutil.WriteArtifact(t, refPath,
		testutil.UnitSpec{},
		testutil.UnitSpec{Name: "SCI"},
	)
	testutil.WriteArtifact(t, candPath,
		testutil.UnitSpec{},
		testutil.UnitSpec{Name: "ERR"},
	)

	var cmp diff.Comparator
	d, err := cmp.Compare(refPath, candPath)
	require.NoError(t, err)
	require.Equal(t, diff.VerdictDiffering, d.Verdict)

	presences := map[string]diff.Presence{}
	for _, u := range d.Units {
		presences[u.Name] = u.Presence
	}
	assert.Equal(t, diff.PresenceBoth, presences["PRIMARY"])
	assert.Equal(t, diff.PresenceRefOnly, presences["SCI"])
	assert.Equal(t, diff.PresenceCandOnly, presences["ERR"])
}

func TestCompare_ShapeMismatchSkipsElements(t *testing.T) {
	refPath, candPath := writePair(t,
		testutil.UnitSpec{Shape: []int{4}, Data: []float64{1, 2, 3, 4}},
		testutil.UnitSpec{Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}},
	)

	var cmp diff.Comparator
	d, err := cmp.Compare(refPath, candPath)
	require.NoError(t, err)
	require.Equal(t, diff.VerdictDiffering, d.Verdict)

	data := d.Units[0].Data
	require.NotNil(t, data)
	assert.True(t, data.ShapeMismatch)
	assert.Equal(t, []int{4}, data.RefShape)
	assert.Equal(t, []int{2, 2}, data.CandShape)
	assert.Zero(t, data.Differing)
}

func TestCompare_OneSidedDataIsShapeMismatch(t *testing.T) {
	refPath, candPath := writePair(t,
		testutil.UnitSpec{Shape: []int{2}, Data: []float64{1, 2}},
		testutil.UnitSpec{},
	)

	var cmp diff.Comparator
	d, err := cmp.Compare(refPath, candPath)
	require.NoError(t, err)
	require.NotNil(t, d.Units[0].Data)
	assert.True(t, d.Units[0].Data.ShapeMismatch)
}

func TestCompare_ToleranceAbsorbsDrift(t *testing.T) {
	refPath, candPath := writePair(t,
		testutil.UnitSpec{Shape: []int{3}, Data: []float64{100, 200, 300}},
		testutil.UnitSpec{Shape: []int{3}, Data: []float64{100.4, 200, 299.6}},
	)

	exact := diff.Comparator{}
	d, err := exact.Compare(refPath, candPath)
	require.NoError(t, err)
	assert.Equal(t, diff.VerdictDiffering, d.Verdict)
	assert.Equal(t, 2, d.Units[0].Data.Differing)
	assert.InDelta(t, 0.4, d.Units[0].Data.MaxAbs, 1e-9)

	loose := diff.Comparator{Tolerance: diff.Tolerance{Absolute: 0.5}}
	d, err = loose.Compare(refPath, candPath)
	require.NoError(t, err)
	assert.Equal(t, diff.VerdictIdentical, d.Verdict)

	relative := diff.Comparator{Tolerance: diff.Tolerance{Relative: 0.01}}
	d, err = relative.Compare(refPath, candPath)
	require.NoError(t, err)
	assert.Equal(t, diff.VerdictIdentical, d.Verdict)
}

func TestCompare_NaNRules(t *testing.T) {
	nan := math.NaN()
	refPath, candPath := writePair(t,
		testutil.UnitSpec{Shape: []int{3}, Data: []float64{nan, 1, nan}},
		testutil.UnitSpec{Shape: []int{3}, Data: []float64{nan, nan, 2}},
	)

	var cmp diff.Comparator
	d, err := cmp.Compare(refPath, candPath)
	require.NoError(t, err)
	require.Equal(t, diff.VerdictDiffering, d.Verdict)

	data := d.Units[0].Data
	// Position 0 agrees (NaN both sides); positions 1 and 2 are
	// one-sided NaNs.
	assert.Equal(t, 2, data.Differing)
	assert.Equal(t, 2, data.NaNMismatch)
	assert.Zero(t, data.MaxAbs)
}

func TestCompare_WrongKindIsIncompatible(t *testing.T) {
	dir := t.TempDir()
	refPath := filepath.Join(dir, "ref_flt.fits")
	candPath := filepath.Join(dir, "cand_flt.fits")
	testutil.WriteArtifact(t, refPath, testutil.UnitSpec{})
	require.NoError(t, os.WriteFile(candPath, []byte("an opaque log line\n"), 0o644))

	var cmp diff.Comparator
	d, err := cmp.Compare(refPath, candPath)
	require.NoError(t, err)
	assert.Equal(t, diff.VerdictIncompatible, d.Verdict)
	assert.NotEmpty(t, d.Reason)
}

func TestCompare_MissingFileIsError(t *testing.T) {
	dir := t.TempDir()
	refPath := filepath.Join(dir, "ref_flt.fits")
	testutil.WriteArtifact(t, refPath, testutil.UnitSpec{})

	var cmp diff.Comparator
	_, err := cmp.Compare(refPath, filepath.Join(dir, "missing_flt.fits"))
	require.Error(t, err)
	assert.True(t, artifact.IsUnreadable(err))
}
