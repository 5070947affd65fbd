// Package testutil provides shared fixtures for harness tests.
package testutil

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

const blockSize = 2880

// Card is one header field to write.
// Value may be string, bool, int, or float64.
type Card struct {
	Key   string
	Value any
}

// UnitSpec describes one unit of a fixture artifact.
//
// A nil Data produces a header-only unit. BitPix defaults to -64 so test
// values round-trip exactly.
type UnitSpec struct {
	Name   string // EXTNAME for extensions; ignored for the primary unit
	Cards  []Card
	BitPix int
	Shape  []int
	Data   []float64
}

// WriteArtifact writes a fixture artifact file for tests.
//
// The output is block-aligned and readable by the artifact package. Fails
// the test on any I/O or encoding problem.
func WriteArtifact(t testing.TB, path string, units ...UnitSpec) {
	t.Helper()

	var buf []byte
	for i, u := range units {
		buf = append(buf, encodeUnit(t, u, i == 0)...)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for fixture: %v", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write fixture artifact: %v", err)
	}
}

func encodeUnit(t testing.TB, u UnitSpec, primary bool) []byte {
	t.Helper()

	bitpix := u.BitPix
	if bitpix == 0 {
		bitpix = -64
	}
	if u.Data != nil && lenOf(u.Shape) != len(u.Data) {
		t.Fatalf("fixture unit %q: shape %v does not hold %d elements", u.Name, u.Shape, len(u.Data))
	}

	var cards []string
	if primary {
		cards = append(cards, card("SIMPLE", "T"))
	} else {
		cards = append(cards, card("XTENSION", "'IMAGE   '"))
	}
	cards = append(cards, card("BITPIX", strconv.Itoa(bitpix)))
	cards = append(cards, card("NAXIS", strconv.Itoa(len(u.Shape))))
	for i, n := range u.Shape {
		cards = append(cards, card(fmt.Sprintf("NAXIS%d", i+1), strconv.Itoa(n)))
	}
	if !primary {
		cards = append(cards, card("PCOUNT", "0"))
		cards = append(cards, card("GCOUNT", "1"))
		if u.Name != "" {
			cards = append(cards, card("EXTNAME", quoted(u.Name)))
		}
	}
	for _, c := range u.Cards {
		cards = append(cards, card(c.Key, renderValue(t, c.Value)))
	}
	cards = append(cards, padRight("END", 80))

	header := strings.Join(cards, "")
	out := []byte(padRight(header, aligned(len(header))))

	if u.Data != nil {
		data := encodeData(t, bitpix, u.Data)
		out = append(out, data...)
		out = append(out, make([]byte, aligned(len(data))-len(data))...)
	}
	return out
}

func encodeData(t testing.TB, bitpix int, vals []float64) []byte {
	t.Helper()

	out := make([]byte, 0, len(vals)*8)
	for _, v := range vals {
		switch bitpix {
		case 8:
			out = append(out, byte(int(v)))
		case 16:
			out = binary.BigEndian.AppendUint16(out, uint16(int16(v)))
		case 32:
			out = binary.BigEndian.AppendUint32(out, uint32(int32(v)))
		case 64:
			out = binary.BigEndian.AppendUint64(out, uint64(int64(v)))
		case -32:
			out = binary.BigEndian.AppendUint32(out, math.Float32bits(float32(v)))
		case -64:
			out = binary.BigEndian.AppendUint64(out, math.Float64bits(v))
		default:
			t.Fatalf("fixture: unsupported BITPIX %d", bitpix)
		}
	}
	return out
}

func renderValue(t testing.TB, v any) string {
	t.Helper()

	switch val := v.(type) {
	case string:
		return quoted(val)
	case bool:
		if val {
			return "T"
		}
		return "F"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		s := strconv.FormatFloat(val, 'G', -1, 64)
		if !strings.ContainsAny(s, ".E") {
			s += "." // Keep the float kind on round-trip.
		}
		return s
	default:
		t.Fatalf("fixture: unsupported card value type %T", v)
		return ""
	}
}

func quoted(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func card(key, value string) string {
	return padRight(fmt.Sprintf("%-8s= %20s", key, value), 80)
}

func padRight(s string, n int) string {
	return s + strings.Repeat(" ", n-len(s))
}

func aligned(n int) int {
	return ((n + blockSize - 1) / blockSize) * blockSize
}

func lenOf(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
