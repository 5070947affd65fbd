package artifact

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

const (
	// BlockSize is the allocation unit of the on-disk format. Headers and
	// data sections are both padded to a whole number of blocks.
	BlockSize = 2880

	cardSize      = 80
	cardsPerBlock = BlockSize / cardSize
)

// UnreadableError reports a file that could not be read at all: missing,
// permission denied, or truncated mid-structure. It is distinct from
// FormatError so callers can treat I/O failures as case errors while a
// recognizably different file kind becomes a diff verdict.
type UnreadableError struct {
	Path   string
	Reason string
	Err    error
}

func (e *UnreadableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unreadable artifact %q: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("unreadable artifact %q: %s", e.Path, e.Reason)
}

func (e *UnreadableError) Unwrap() error { return e.Err }

// IsUnreadable returns true if err is an UnreadableError.
// Uses errors.As to handle wrapped errors.
func IsUnreadable(err error) bool {
	var ue *UnreadableError
	return errors.As(err, &ue)
}

// FormatError reports a readable file that is not an artifact of the
// expected kind (no SIMPLE card at byte zero).
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("not an artifact %q: %s", e.Path, e.Reason)
}

// IsFormatError returns true if err is a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// Array is the decoded data section of a unit.
//
// Shape lists axis lengths in on-disk order (fastest-varying first).
// Elems holds every element converted to float64 regardless of the
// stored pixel type, with scaling cards already applied.
type Array struct {
	Shape []int
	Elems []float64
}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.Elems) }

// Unit is one named subdivision of an artifact: ordered header fields
// plus an optional data array.
type Unit struct {
	// Name identifies the unit across both sides of a comparison.
	// The first unit is "PRIMARY"; extensions use their EXTNAME card,
	// falling back to "HDU<index>" when the card is absent.
	Name string

	// Index is the zero-based position within the file.
	Index int

	// Data is nil when the unit has no data section or the section's
	// layout is not element-comparable (table extensions).
	Data *Array

	keys   []string
	fields map[string]Value
}

// Keys returns header field names in card order.
func (u *Unit) Keys() []string { return u.keys }

// Lookup returns the value of a header field.
func (u *Unit) Lookup(key string) (Value, bool) {
	v, ok := u.fields[key]
	return v, ok
}

// File is a fully decoded, immutable artifact.
type File struct {
	Path  string
	Units []Unit
}

// Unit returns the unit with the given name.
func (f *File) Unit(name string) (*Unit, bool) {
	for i := range f.Units {
		if f.Units[i].Name == name {
			return &f.Units[i], true
		}
	}
	return nil, false
}

// Open reads and decodes an artifact.
//
// Returns *UnreadableError when the file cannot be read or is truncated,
// and *FormatError when it reads fine but is not an artifact. The file is
// never written to.
func Open(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &UnreadableError{Path: path, Reason: "open failed", Err: err}
	}
	if len(raw) < BlockSize {
		return nil, &FormatError{Path: path, Reason: "shorter than one block"}
	}
	if !strings.HasPrefix(string(raw[:8]), "SIMPLE") {
		return nil, &FormatError{Path: path, Reason: "missing SIMPLE card"}
	}

	f := &File{Path: path}
	pos := 0
	for pos < len(raw) {
		unit, next, err := readUnit(path, raw, pos, len(f.Units))
		if err != nil {
			return nil, err
		}
		f.Units = append(f.Units, unit)
		pos = next
	}
	return f, nil
}

// readUnit decodes one header-plus-data section starting at pos.
// Returns the unit and the offset of the next block-aligned section.
func readUnit(path string, raw []byte, pos, index int) (Unit, int, error) {
	unit := Unit{Index: index, fields: make(map[string]Value)}

	ended := false
	for !ended {
		if pos+BlockSize > len(raw) {
			return unit, 0, &UnreadableError{Path: path, Reason: fmt.Sprintf("truncated header in unit %d", index)}
		}
		for c := 0; c < cardsPerBlock; c++ {
			card := string(raw[pos+c*cardSize : pos+(c+1)*cardSize])
			key := strings.TrimRight(card[:8], " ")
			if key == "END" {
				ended = true
				break
			}
			// Commentary and blank cards carry no comparable value.
			if key == "" || key == "COMMENT" || key == "HISTORY" {
				continue
			}
			if card[8:10] != "= " {
				continue
			}
			if _, dup := unit.fields[key]; dup {
				continue
			}
			unit.fields[key] = parseValue(stripComment(card[10:]))
			unit.keys = append(unit.keys, key)
		}
		pos += BlockSize
	}

	unit.Name = unitName(&unit, index)

	dataBytes, decodable := dataLayout(&unit)
	if dataBytes == 0 {
		return unit, pos, nil
	}
	padded := ((dataBytes + BlockSize - 1) / BlockSize) * BlockSize
	if pos+dataBytes > len(raw) {
		return unit, 0, &UnreadableError{Path: path, Reason: fmt.Sprintf("truncated data in unit %q", unit.Name)}
	}
	if decodable {
		arr, err := decodeArray(&unit, raw[pos:pos+dataBytes])
		if err != nil {
			return unit, 0, &UnreadableError{Path: path, Reason: fmt.Sprintf("unit %q", unit.Name), Err: err}
		}
		unit.Data = arr
	}
	next := pos + padded
	if next > len(raw) {
		next = len(raw) // Final data section may omit trailing padding.
	}
	return unit, next, nil
}

func unitName(u *Unit, index int) string {
	if v, ok := u.fields["EXTNAME"]; ok {
		if s, ok := v.(String); ok && s != "" {
			return string(s)
		}
	}
	if index == 0 {
		return "PRIMARY"
	}
	return fmt.Sprintf("HDU%d", index)
}

// dataLayout computes the byte length of the unit's data section and
// whether it decodes to a flat numeric array. Table extensions (non-zero
// PCOUNT or a non-image XTENSION) are sized so the reader can skip them,
// but are not element-comparable.
func dataLayout(u *Unit) (size int, decodable bool) {
	naxis := intField(u, "NAXIS", 0)
	if naxis <= 0 {
		return 0, false
	}
	elems := 1
	for i := 1; i <= naxis; i++ {
		n := intField(u, fmt.Sprintf("NAXIS%d", i), 0)
		if n <= 0 {
			return 0, false
		}
		elems *= n
	}
	bitpix := intField(u, "BITPIX", 0)
	width := abs(bitpix) / 8
	if width == 0 {
		return 0, false
	}
	pcount := intField(u, "PCOUNT", 0)
	gcount := intField(u, "GCOUNT", 1)
	size = width * gcount * (pcount + elems)

	decodable = pcount == 0 && gcount == 1
	if xt, ok := u.fields["XTENSION"]; ok {
		s, _ := xt.(String)
		if string(s) != "IMAGE" {
			decodable = false
		}
	}
	return size, decodable
}

func decodeArray(u *Unit, data []byte) (*Array, error) {
	naxis := intField(u, "NAXIS", 0)
	shape := make([]int, naxis)
	elems := 1
	for i := range shape {
		shape[i] = intField(u, fmt.Sprintf("NAXIS%d", i+1), 0)
		elems *= shape[i]
	}

	bscale := floatField(u, "BSCALE", 1)
	bzero := floatField(u, "BZERO", 0)

	out := make([]float64, elems)
	bitpix := intField(u, "BITPIX", 0)
	for i := 0; i < elems; i++ {
		var v float64
		switch bitpix {
		case 8:
			v = float64(data[i])
		case 16:
			v = float64(int16(binary.BigEndian.Uint16(data[i*2:])))
		case 32:
			v = float64(int32(binary.BigEndian.Uint32(data[i*4:])))
		case 64:
			v = float64(int64(binary.BigEndian.Uint64(data[i*8:])))
		case -32:
			v = float64(math.Float32frombits(binary.BigEndian.Uint32(data[i*4:])))
		case -64:
			v = math.Float64frombits(binary.BigEndian.Uint64(data[i*8:]))
		default:
			return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
		}
		out[i] = v*bscale + bzero
	}
	return &Array{Shape: shape, Elems: out}, nil
}

// stripComment removes an inline comment, honoring quoted strings.
func stripComment(s string) string {
	inStr := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inStr = !inStr
		case '/':
			if !inStr {
				return s[:i]
			}
		}
	}
	return s
}

func intField(u *Unit, key string, def int) int {
	v, ok := u.fields[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case Int:
		return int(n)
	case Float:
		return int(n)
	}
	return def
}

func floatField(u *Unit, key string, def float64) float64 {
	v, ok := u.fields[key]
	if !ok {
		return def
	}
	n, ok := asNumber(v)
	if !ok {
		return def
	}
	return n
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
