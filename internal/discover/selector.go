package discover

import (
	"fmt"
	"strings"

	"github.com/caldrift/caldrift/internal/artifact"
)

// Selector restricts discovery to inputs whose primary header declares a
// keyword with a given value, e.g. a processing switch set to PERFORM.
type Selector struct {
	Keyword string
	Value   string
}

// ParseSelector parses a KEY=VALUE selector expression.
func ParseSelector(expr string) (*Selector, error) {
	key, value, ok := strings.Cut(expr, "=")
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if !ok || key == "" || value == "" {
		return nil, fmt.Errorf("invalid selector %q: want KEY=VALUE", expr)
	}
	return &Selector{Keyword: strings.ToUpper(key), Value: value}, nil
}

// MatchFile opens the input and evaluates the selector against the
// primary unit's header. The matched value is returned for tagging.
func (s *Selector) MatchFile(path string) (matched bool, value string, err error) {
	f, err := artifact.Open(path)
	if err != nil {
		return false, "", err
	}
	if len(f.Units) == 0 {
		return false, "", nil
	}
	v, ok := f.Units[0].Lookup(s.Keyword)
	if !ok {
		return false, "", nil
	}
	if !MatchValue(v, s.Value) {
		return false, "", nil
	}
	return true, artifact.Format(v), nil
}

// MatchValue compares a header value against a user-supplied string.
//
// "t"/"true" and "f"/"false" coerce to logicals, numbers compare
// numerically, and strings compare case-insensitively - header text is
// uppercase by convention but user input rarely is.
func MatchValue(v artifact.Value, want string) bool {
	switch val := v.(type) {
	case artifact.Bool:
		switch strings.ToLower(want) {
		case "t", "true":
			return bool(val)
		case "f", "false":
			return !bool(val)
		}
		return false
	case artifact.String:
		return strings.EqualFold(strings.TrimSpace(string(val)), want)
	case artifact.Int:
		return strings.TrimSpace(want) == fmt.Sprintf("%d", int64(val))
	case artifact.Float:
		return strings.TrimSpace(want) == artifact.Format(val)
	default:
		return false
	}
}
