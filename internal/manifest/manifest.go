// Package manifest defines the suite manifest: the declarative input
// that tells the harness how to recognize primary inputs, which
// executable processes which kind of input, and how strictly to compare
// output. A built-in default covers the standard calibration suite so a
// manifest file is only needed to deviate from it.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caldrift/caldrift/internal/artifact"
	"github.com/caldrift/caldrift/internal/diff"
	"github.com/caldrift/caldrift/internal/discover"
)

// Rule maps one dispatch keyword value to the executable that processes
// such inputs.
type Rule struct {
	// Value is matched case-insensitively against the input's dispatch
	// keyword (e.g. an instrument name).
	Value string `yaml:"value"`

	// Exe is the executable name, resolved under the run's exec path.
	Exe string `yaml:"exe"`

	// Args are inserted between the executable and the input path.
	Args []string `yaml:"args,omitempty"`
}

// Tolerance mirrors diff.Tolerance for manifest decoding.
type Tolerance struct {
	Absolute float64 `yaml:"absolute"`
	Relative float64 `yaml:"relative"`
}

// Manifest is the decoded suite manifest.
type Manifest struct {
	// PrimarySuffix recognizes primary input files by name.
	PrimarySuffix string `yaml:"primary_suffix"`

	// ArtifactSuffix recognizes files that get structured comparison;
	// anything else is compared byte-for-byte in diff-only mode and
	// skipped during live comparison (logs differ on every run).
	ArtifactSuffix string `yaml:"artifact_suffix"`

	// DispatchKeyword is the header field whose value selects a Rule.
	DispatchKeyword string `yaml:"dispatch_keyword"`

	Rules []Rule `yaml:"rules"`

	// Tolerance bounds acceptable numeric drift during comparison.
	Tolerance Tolerance `yaml:"tolerance"`

	// IgnoreKeys lists header fields excluded from comparison.
	IgnoreKeys []string `yaml:"ignore_keys"`
}

// Default returns the built-in manifest for the standard calibration
// suite: uncalibrated inputs end in raw.fits, the instrument header
// picks the calibration stage, and run-date stamps are ignored.
func Default() *Manifest {
	return &Manifest{
		PrimarySuffix:   discover.DefaultPrimarySuffix,
		ArtifactSuffix:  ".fits",
		DispatchKeyword: "INSTRUME",
		Rules: []Rule{
			{Value: "ACS", Exe: "calacs.e", Args: []string{"-v", "-1"}},
			{Value: "STIS", Exe: "calstis.e", Args: []string{"-v", "-1"}},
			{Value: "WFC3", Exe: "calwf3.e", Args: []string{"-v", "-1"}},
		},
		IgnoreKeys: []string{"DATE"},
	}
}

// Load reads and validates a manifest file. Unknown fields are rejected:
// a typoed key silently falling back to a default is exactly the kind of
// drift this tool exists to catch.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	m := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse manifest %q: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("manifest %q: %w", path, err)
	}
	return m, nil
}

func (m *Manifest) validate() error {
	if m.PrimarySuffix == "" {
		return fmt.Errorf("primary_suffix must not be empty")
	}
	if m.ArtifactSuffix == "" {
		return fmt.Errorf("artifact_suffix must not be empty")
	}
	if m.DispatchKeyword == "" {
		return fmt.Errorf("dispatch_keyword must not be empty")
	}
	if len(m.Rules) == 0 {
		return fmt.Errorf("at least one rule is required")
	}
	for i, r := range m.Rules {
		if r.Value == "" || r.Exe == "" {
			return fmt.Errorf("rule %d: value and exe are required", i)
		}
	}
	if m.Tolerance.Absolute < 0 || m.Tolerance.Relative < 0 {
		return fmt.Errorf("tolerance must not be negative")
	}
	return nil
}

// IsPrimary reports whether a file name is a primary input.
func (m *Manifest) IsPrimary(name string) bool {
	return strings.HasSuffix(name, m.PrimarySuffix)
}

// IsArtifact reports whether a file name gets structured comparison.
func (m *Manifest) IsArtifact(name string) bool {
	return strings.HasSuffix(name, m.ArtifactSuffix)
}

// Command resolves the argv for an input: the matching rule's executable
// under execPath, its args, then the input path. Errors when the input's
// header lacks the dispatch keyword or no rule covers its value; the
// discoverer logs and skips such inputs.
func (m *Manifest) Command(execPath, input string) ([]string, error) {
	f, err := artifact.Open(input)
	if err != nil {
		return nil, err
	}
	if len(f.Units) == 0 {
		return nil, fmt.Errorf("%q has no primary unit", input)
	}
	v, ok := f.Units[0].Lookup(m.DispatchKeyword)
	if !ok {
		return nil, fmt.Errorf("%q lacks dispatch keyword %s", input, m.DispatchKeyword)
	}
	name, ok := v.(artifact.String)
	if !ok {
		return nil, fmt.Errorf("%q: dispatch keyword %s is not a string", input, m.DispatchKeyword)
	}
	for _, r := range m.Rules {
		if strings.EqualFold(r.Value, strings.TrimSpace(string(name))) {
			argv := []string{filepath.Join(execPath, r.Exe)}
			argv = append(argv, r.Args...)
			argv = append(argv, input)
			return argv, nil
		}
	}
	return nil, fmt.Errorf("no rule for %s=%q", m.DispatchKeyword, string(name))
}

// Comparator builds the artifact comparator the manifest prescribes.
func (m *Manifest) Comparator() *diff.Comparator {
	return &diff.Comparator{
		Tolerance:  diff.Tolerance{Absolute: m.Tolerance.Absolute, Relative: m.Tolerance.Relative},
		IgnoreKeys: m.IgnoreKeys,
	}
}
