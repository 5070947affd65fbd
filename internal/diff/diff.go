// Package diff compares two artifact files structurally.
//
// Comparison is unit-by-unit: units are matched across files by name,
// metadata fields are compared as typed values with add/remove/changed
// classification, and data arrays are compared shape-first, then
// element-by-element against a configurable tolerance. Byte equality is
// deliberately not the criterion - two files that re-serialize the same
// content must compare identical.
package diff

import (
	"math"
	"slices"
	"strings"

	"github.com/caldrift/caldrift/internal/artifact"
)

// Comparator compares artifacts under a fixed tolerance and ignore list.
// The zero value compares exactly and ignores nothing. Safe for
// concurrent use; both input files are opened read-only.
type Comparator struct {
	// Tolerance applies to every element comparison.
	Tolerance Tolerance

	// IgnoreKeys lists metadata fields excluded from comparison,
	// case-insensitive. Pipelines stamp run dates into headers; those
	// fields differ on every run without meaning anything.
	IgnoreKeys []string
}

// Compare produces the structured diff of candidate against reference.
//
// I/O failures on either path return *artifact.UnreadableError so the
// caller can record a case-level error. A readable file of the wrong
// kind yields VerdictIncompatible instead of an error.
func (c *Comparator) Compare(refPath, candPath string) (ArtifactDiff, error) {
	d := ArtifactDiff{RefPath: refPath, CandPath: candPath}

	ref, err := artifact.Open(refPath)
	if incompatible := asFormatReason(err); incompatible != "" {
		d.Verdict = VerdictIncompatible
		d.Reason = incompatible
		return d, nil
	} else if err != nil {
		return d, err
	}
	cand, err := artifact.Open(candPath)
	if incompatible := asFormatReason(err); incompatible != "" {
		d.Verdict = VerdictIncompatible
		d.Reason = incompatible
		return d, nil
	} else if err != nil {
		return d, err
	}

	for i := range ref.Units {
		ru := &ref.Units[i]
		cu, ok := cand.Unit(ru.Name)
		if !ok {
			d.Units = append(d.Units, UnitDiff{Name: ru.Name, Presence: PresenceRefOnly})
			continue
		}
		d.Units = append(d.Units, c.compareUnit(ru, cu))
	}
	for i := range cand.Units {
		cu := &cand.Units[i]
		if _, ok := ref.Unit(cu.Name); !ok {
			d.Units = append(d.Units, UnitDiff{Name: cu.Name, Presence: PresenceCandOnly})
		}
	}

	d.Verdict = VerdictIdentical
	for i := range d.Units {
		if !d.Units[i].Empty() {
			d.Verdict = VerdictDiffering
			break
		}
	}
	return d, nil
}

func (c *Comparator) compareUnit(ref, cand *artifact.Unit) UnitDiff {
	u := UnitDiff{Name: ref.Name, Presence: PresenceBoth}
	u.Fields = c.compareFields(ref, cand)
	u.Data = c.compareData(ref, cand)
	return u
}

// compareFields diffs metadata by key union: reference card order first,
// candidate-only keys appended in their own card order.
func (c *Comparator) compareFields(ref, cand *artifact.Unit) []FieldChange {
	var changes []FieldChange
	for _, key := range ref.Keys() {
		if c.ignored(key) {
			continue
		}
		old, _ := ref.Lookup(key)
		now, ok := cand.Lookup(key)
		if !ok {
			changes = append(changes, FieldChange{Key: key, Kind: FieldRemoved, Old: old})
			continue
		}
		if !artifact.Equal(old, now) {
			changes = append(changes, FieldChange{Key: key, Kind: FieldChanged, Old: old, New: now})
		}
	}
	for _, key := range cand.Keys() {
		if c.ignored(key) {
			continue
		}
		if _, ok := ref.Lookup(key); !ok {
			now, _ := cand.Lookup(key)
			changes = append(changes, FieldChange{Key: key, Kind: FieldAdded, New: now})
		}
	}
	return changes
}

// compareData diffs the data sections. Shape is checked first: on
// mismatch no element comparison is attempted. A data section present on
// only one side is a shape mismatch, not a crash.
func (c *Comparator) compareData(ref, cand *artifact.Unit) *DataDiff {
	if ref.Data == nil && cand.Data == nil {
		return nil
	}
	d := &DataDiff{}
	if ref.Data != nil {
		d.RefShape = ref.Data.Shape
	}
	if cand.Data != nil {
		d.CandShape = cand.Data.Shape
	}
	if ref.Data == nil || cand.Data == nil || !slices.Equal(d.RefShape, d.CandShape) {
		d.ShapeMismatch = true
		return d
	}

	for i, rv := range ref.Data.Elems {
		cv := cand.Data.Elems[i]
		if math.IsNaN(rv) || math.IsNaN(cv) {
			// NaN in the same position on both sides is agreement;
			// any other NaN pairing is a difference with no finite
			// magnitude to report.
			if math.IsNaN(rv) && math.IsNaN(cv) {
				continue
			}
			d.Differing++
			d.NaNMismatch++
			continue
		}
		delta := math.Abs(rv - cv)
		if delta <= c.Tolerance.Absolute+c.Tolerance.Relative*math.Abs(rv) {
			continue
		}
		d.Differing++
		d.MaxAbs = math.Max(d.MaxAbs, delta)
		if rv != 0 {
			d.MaxRel = math.Max(d.MaxRel, delta/math.Abs(rv))
		}
	}
	return d
}

func (c *Comparator) ignored(key string) bool {
	for _, k := range c.IgnoreKeys {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func asFormatReason(err error) string {
	if err == nil {
		return ""
	}
	if artifact.IsFormatError(err) {
		return err.Error()
	}
	return ""
}
