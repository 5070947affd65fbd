// Package artifact reads calibration pipeline output files.
//
// An artifact is a FITS-layout container: a sequence of units (HDUs), each
// holding 80-column header cards followed by an optional data array, all
// aligned to 2880-byte blocks. The package exposes exactly what the
// comparator needs - enumerable units, typed header values, and numeric
// data arrays - and nothing else.
//
// The reader is deliberately tolerant of things a comparison does not care
// about (unknown extension types, blank and commentary cards) and strict
// about things it does (block alignment, value syntax). Files it cannot
// open at all surface as *UnreadableError so callers can fold the failure
// into a case-level error rather than a diff verdict.
//
// Artifacts are opened read-only and fully decoded up front; a File is
// immutable after Open returns and safe for concurrent readers.
package artifact
