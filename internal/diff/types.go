package diff

import (
	"encoding/json"
	"fmt"

	"github.com/caldrift/caldrift/internal/artifact"
)

// Verdict classifies the outcome of comparing two artifacts.
type Verdict string

const (
	// VerdictIdentical means every shared unit matched and neither side
	// has units the other lacks.
	VerdictIdentical Verdict = "identical"

	// VerdictDiffering means the files are the same kind but differ in
	// unit presence, metadata, or data content.
	VerdictDiffering Verdict = "differing"

	// VerdictIncompatible means the files cannot be opened as the same
	// artifact kind; no unit-level comparison is possible.
	VerdictIncompatible Verdict = "structurally-incompatible"
)

// Presence records which sides of the comparison a unit appears on.
type Presence string

const (
	// PresenceBoth - unit exists in reference and candidate.
	PresenceBoth Presence = "both"
	// PresenceRefOnly - unit exists only in the reference.
	PresenceRefOnly Presence = "reference-only"
	// PresenceCandOnly - unit exists only in the candidate.
	PresenceCandOnly Presence = "candidate-only"
)

// FieldChangeKind classifies a metadata field difference.
type FieldChangeKind string

const (
	// FieldChanged - present on both sides with different values.
	FieldChanged FieldChangeKind = "changed"
	// FieldAdded - present only in the candidate.
	FieldAdded FieldChangeKind = "added"
	// FieldRemoved - present only in the reference.
	FieldRemoved FieldChangeKind = "removed"
)

// FieldChange records one metadata difference within a unit.
// Old is nil for FieldAdded; New is nil for FieldRemoved.
type FieldChange struct {
	Key  string          `json:"key"`
	Kind FieldChangeKind `json:"kind"`
	Old  artifact.Value  `json:"old,omitempty"`
	New  artifact.Value  `json:"new,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler for FieldChange. Old and New
// are interface-typed, so stored reports need explicit decoding back
// into concrete header value types.
func (f *FieldChange) UnmarshalJSON(data []byte) error {
	var raw struct {
		Key  string          `json:"key"`
		Kind FieldChangeKind `json:"kind"`
		Old  json.RawMessage `json:"old"`
		New  json.RawMessage `json:"new"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Key = raw.Key
	f.Kind = raw.Kind
	f.Old = nil
	f.New = nil
	if len(raw.Old) > 0 {
		v, err := artifact.UnmarshalValue(raw.Old)
		if err != nil {
			return fmt.Errorf("field %q old value: %w", raw.Key, err)
		}
		f.Old = v
	}
	if len(raw.New) > 0 {
		v, err := artifact.UnmarshalValue(raw.New)
		if err != nil {
			return fmt.Errorf("field %q new value: %w", raw.Key, err)
		}
		f.New = v
	}
	return nil
}

// DataDiff summarizes the data comparison for one unit.
//
// When ShapeMismatch is set no element comparison was attempted and the
// element fields are zero. MaxRel is measured against the reference
// element and omits positions where the reference is zero.
type DataDiff struct {
	ShapeMismatch bool  `json:"shape_mismatch,omitempty"`
	RefShape      []int `json:"ref_shape,omitempty"`
	CandShape     []int `json:"cand_shape,omitempty"`

	Differing   int     `json:"differing"`              // elements outside tolerance
	NaNMismatch int     `json:"nan_mismatch,omitempty"` // NaN on exactly one side
	MaxAbs      float64 `json:"max_abs"`                // largest absolute deviation
	MaxRel      float64 `json:"max_rel"`                // largest relative deviation
}

// Empty reports whether the data sections matched.
func (d *DataDiff) Empty() bool {
	return d == nil || (!d.ShapeMismatch && d.Differing == 0)
}

// UnitDiff records all differences found for one structural unit.
type UnitDiff struct {
	Name     string        `json:"name"`
	Presence Presence      `json:"presence"`
	Fields   []FieldChange `json:"fields,omitempty"`
	Data     *DataDiff     `json:"data,omitempty"`
}

// Empty reports whether the unit matched on both sides.
func (u *UnitDiff) Empty() bool {
	return u.Presence == PresenceBoth && len(u.Fields) == 0 && u.Data.Empty()
}

// ArtifactDiff is the full structured comparison of two artifact files.
// Units lists one entry per unit present in either file, in reference
// order with candidate-only units appended. Immutable after creation.
type ArtifactDiff struct {
	RefPath  string     `json:"ref_path"`
	CandPath string     `json:"cand_path"`
	Verdict  Verdict    `json:"verdict"`
	Units    []UnitDiff `json:"units,omitempty"`

	// Reason explains a structurally-incompatible verdict.
	Reason string `json:"reason,omitempty"`
}

// Tolerance bounds how far a candidate element may drift from its
// reference before counting as a difference.
//
// An element matches when |ref-cand| <= Absolute + Relative*|ref|.
// The zero value demands exact equality.
type Tolerance struct {
	Absolute float64
	Relative float64
}
