// Package discover walks a data tree and yields test cases.
//
// A test case is one primary input file plus the command that processes
// it. Discovery is lazy and restartable: every range over the returned
// sequence re-walks the tree, so the same discoverer can feed execution
// and then a later comparison pass without caching.
package discover

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultPrimarySuffix recognizes uncalibrated pipeline inputs.
const DefaultPrimarySuffix = "raw.fits"

// TestCase is the unit of work. Immutable once discovered.
type TestCase struct {
	// ID is the primary input's path relative to the discovery root.
	ID string

	// Dir is the directory containing the primary input.
	Dir string

	// Input is the absolute path of the primary input file.
	Input string

	// Command is the resolved argv to execute. Empty in diff-only mode.
	Command []string

	// Tag carries the selector keyword value the case matched on, when
	// a selector was in effect. Informational only.
	Tag string
}

// DiscoveryError reports an unusable discovery root. It is fatal to the
// run: nothing was dispatched yet, so there is nothing to contain.
type DiscoveryError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery root %q: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("discovery root %q: %s", e.Path, e.Reason)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// IsDiscoveryError returns true if err is a DiscoveryError.
// Uses errors.As to handle wrapped errors.
func IsDiscoveryError(err error) bool {
	var de *DiscoveryError
	return errors.As(err, &de)
}

// Discoverer finds test cases under a root directory.
type Discoverer struct {
	// Root is the directory tree to walk.
	Root string

	// IsPrimary decides whether a file name is a primary input.
	// Nil means DefaultPrimarySuffix matching.
	IsPrimary func(name string) bool

	// Selector, when non-nil, restricts discovery to inputs whose
	// header matches. Non-matching inputs are skipped, not yielded.
	Selector *Selector

	// Command resolves the argv for a discovered input. Nil leaves
	// cases without a command (diff-only mode). Returning an error
	// skips the input with a log line - an input no rule covers must
	// not abort the walk.
	Command func(input string) ([]string, error)

	// Logger receives skip diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Discover validates the root eagerly, then returns the lazy case
// sequence. The walk happens once per range, not at call time.
//
// Unreadable subdirectories are logged and skipped so one bad directory
// cannot abort a multi-hundred-case run; only a missing or non-directory
// root is fatal.
func (d *Discoverer) Discover(ctx context.Context) (iter.Seq[TestCase], error) {
	info, err := os.Stat(d.Root)
	if err != nil {
		return nil, &DiscoveryError{Path: d.Root, Reason: "cannot stat", Err: err}
	}
	if !info.IsDir() {
		return nil, &DiscoveryError{Path: d.Root, Reason: "not a directory"}
	}

	return func(yield func(TestCase) bool) {
		d.walk(ctx, yield)
	}, nil
}

func (d *Discoverer) walk(ctx context.Context, yield func(TestCase) bool) {
	log := d.logger()
	isPrimary := d.IsPrimary
	if isPrimary == nil {
		isPrimary = func(name string) bool {
			return strings.HasSuffix(name, DefaultPrimarySuffix)
		}
	}

	stop := errors.New("stop walk")
	err := filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return stop
		}
		if err != nil {
			log.Warn("skipping unreadable entry", "path", path, "error", err)
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !isPrimary(entry.Name()) {
			return nil
		}

		tc, ok := d.makeCase(path)
		if !ok {
			return nil
		}
		if !yield(tc) {
			return stop
		}
		return nil
	})
	if err != nil && !errors.Is(err, stop) {
		// WalkDir errors on entries are handled above; anything else
		// is a race with the filesystem. Log rather than drop silently.
		log.Warn("tree walk ended early", "root", d.Root, "error", err)
	}
}

// makeCase builds a TestCase for a primary input, applying the selector
// and resolving the command. Returns ok=false when the input is skipped.
func (d *Discoverer) makeCase(input string) (TestCase, bool) {
	log := d.logger()

	tag := ""
	if d.Selector != nil {
		matched, value, err := d.Selector.MatchFile(input)
		if err != nil {
			log.Warn("skipping input: selector could not read header", "input", input, "error", err)
			return TestCase{}, false
		}
		if !matched {
			return TestCase{}, false
		}
		tag = value
	}

	var command []string
	if d.Command != nil {
		argv, err := d.Command(input)
		if err != nil {
			log.Warn("skipping input: no command", "input", input, "error", err)
			return TestCase{}, false
		}
		command = argv
	}

	id, err := filepath.Rel(d.Root, input)
	if err != nil {
		id = input
	}
	return TestCase{
		ID:      filepath.ToSlash(id),
		Dir:     filepath.Dir(input),
		Input:   input,
		Command: command,
		Tag:     tag,
	}, true
}

func (d *Discoverer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
