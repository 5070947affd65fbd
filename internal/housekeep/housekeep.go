// Package housekeep holds the tree maintenance utilities that surround a
// regression run: pruning a data tree back to its primary inputs,
// relocating generated output, and searching trees by header keyword.
// These are orthogonal to the core scheduler and comparator and never
// touch their contracts.
package housekeep

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/caldrift/caldrift/internal/artifact"
	"github.com/caldrift/caldrift/internal/discover"
)

// Clean removes every regular file under root that keep does not claim.
// Directories are left in place. Individual removal failures are
// collected and the sweep continues; the joined error reports them all.
func Clean(root string, keep func(name string) bool) error {
	var errs []error
	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() || keep(entry.Name()) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
		}
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return errors.Join(errs...)
}

// Move relocates every regular file under src that keep does not claim
// to the same relative path under dst, creating directories as needed.
// Rename is tried first; a cross-device move falls back to copy+remove.
func Move(src, dst string, keep func(name string) bool) error {
	var errs []error
	walkErr := filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() || keep(entry.Name()) {
			return nil
		}
		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			errs = append(errs, relErr)
			return nil
		}
		if err := moveFile(path, filepath.Join(dst, rel)); err != nil {
			errs = append(errs, err)
		}
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return errors.Join(errs...)
}

func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %q to %q: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// Clause is one keyword condition of a Find query. Op is "and" or "or";
// the first clause's Op is ignored.
type Clause struct {
	Op      string
	Keyword string
	Value   string
}

// Find returns files under root whose name carries suffix and whose
// primary header satisfies the clause chain, evaluated left to right:
// "and" intersects with the matches so far, "or" unions. Unreadable
// files are skipped. Results are sorted.
func Find(root, suffix string, clauses []Clause) ([]string, error) {
	if len(clauses) == 0 {
		return nil, fmt.Errorf("find: at least one keyword clause required")
	}

	var candidates []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !entry.IsDir() && strings.Contains(entry.Name(), suffix) {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := matchSet(candidates, clauses[0])
	for _, clause := range clauses[1:] {
		matches := matchSet(candidates, clause)
		switch strings.ToLower(clause.Op) {
		case "or":
			for p := range matches {
				result[p] = struct{}{}
			}
		default: // "and"
			for p := range result {
				if _, ok := matches[p]; !ok {
					delete(result, p)
				}
			}
		}
	}

	out := make([]string, 0, len(result))
	for p := range result {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func matchSet(paths []string, clause Clause) map[string]struct{} {
	keyword := strings.ToUpper(clause.Keyword)
	found := make(map[string]struct{})
	for _, p := range paths {
		f, err := artifact.Open(p)
		if err != nil || len(f.Units) == 0 {
			continue
		}
		v, ok := f.Units[0].Lookup(keyword)
		if !ok {
			continue
		}
		if discover.MatchValue(v, clause.Value) {
			found[p] = struct{}{}
		}
	}
	return found
}
