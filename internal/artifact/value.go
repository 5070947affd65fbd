package artifact

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is a sealed interface over the types a header field can hold.
// Only String, Int, Float, Bool, and Undefined implement it.
type Value interface {
	headerValue() // Sealed - only these types implement it
}

// String is a quoted header value with trailing blanks stripped.
type String string

func (String) headerValue() {}

// Int is an integer header value. Always int64.
type Int int64

func (Int) headerValue() {}

// Float is a floating-point header value.
type Float float64

func (Float) headerValue() {}

// Bool is a logical header value (written as T or F).
type Bool bool

func (Bool) headerValue() {}

// Undefined is a card with a key but no value.
type Undefined struct{}

func (Undefined) headerValue() {}

// MarshalJSON implements json.Marshaler for Undefined.
func (Undefined) MarshalJSON() ([]byte, error) {
	return json.Marshal(nil)
}

// Equal reports whether two header values compare equal.
//
// Int and Float cross-compare numerically: the on-disk form does not
// reliably distinguish 1 from 1.0, and a rewrite of the same header must
// not register as a difference.
func Equal(a, b Value) bool {
	if an, aok := asNumber(a); aok {
		bn, bok := asNumber(b)
		return bok && an == bn
	}
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Undefined:
		_, ok := b.(Undefined)
		return ok
	}
	return false
}

func asNumber(v Value) (float64, bool) {
	switch n := v.(type) {
	case Int:
		return float64(n), true
	case Float:
		return float64(n), true
	}
	return 0, false
}

// Format renders a value the way it appears in diff output.
func Format(v Value) string {
	switch val := v.(type) {
	case String:
		return strconv.Quote(string(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		if val {
			return "T"
		}
		return "F"
	case Undefined:
		return "<undefined>"
	default:
		return fmt.Sprintf("<%T>", v)
	}
}

// UnmarshalValue decodes a JSON value back into a Value. Used when
// loading stored diff reports: JSON strings become String, booleans
// Bool, integral numbers Int, other numbers Float, and null Undefined.
func UnmarshalValue(data []byte) (Value, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case 'n':
		return Undefined{}, nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		return Float(f), nil
	}
}

// parseValue decodes the value field of a header card.
//
// Syntax follows the card grammar: 'text' (with '' escaping), T/F
// logicals, then integer, then float. Anything unparseable is kept as a
// String so a malformed card still participates in comparison instead of
// aborting the open.
func parseValue(raw string) Value {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Undefined{}
	}
	if raw[0] == '\'' {
		body := raw[1:]
		if i := strings.LastIndexByte(body, '\''); i >= 0 {
			body = body[:i]
		}
		body = strings.ReplaceAll(body, "''", "'")
		return String(strings.TrimRight(body, " "))
	}
	switch raw {
	case "T":
		return Bool(true)
	case "F":
		return Bool(false)
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Int(i)
	}
	// FITS floats may use D exponents (Fortran heritage).
	if f, err := strconv.ParseFloat(strings.Map(dToE, raw), 64); err == nil {
		return Float(f)
	}
	return String(raw)
}

func dToE(r rune) rune {
	if r == 'D' || r == 'd' {
		return 'E'
	}
	return r
}
