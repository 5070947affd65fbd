package run

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/caldrift/caldrift/internal/diff"
	"github.com/caldrift/caldrift/internal/manifest"
	"github.com/caldrift/caldrift/internal/report"
)

// DiffOnly compares two existing output trees without running anything.
//
// Files are matched by relative path. Artifact files get the structured
// comparison; everything else is compared byte-for-byte. A file present
// in only one tree fails its case - a missing product is drift too.
func DiffOnly(ctx context.Context, refRoot, candRoot string, m *manifest.Manifest, log *slog.Logger) (*report.RunReport, error) {
	if m == nil {
		m = manifest.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	for _, root := range []string{refRoot, candRoot} {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("diff root %q: %w", root, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("diff root %q is not a directory", root)
		}
	}

	paths, err := unionRelPaths(refRoot, candRoot)
	if err != nil {
		return nil, err
	}

	agg := report.NewAggregator(newRunID())
	cmp := m.Comparator()
	differingByExt := map[string]int{}

	for _, rel := range paths {
		if ctx.Err() != nil {
			break // Partial report on cancellation.
		}
		agg.Expect(rel)
		res := diffCase(cmp, m, refRoot, candRoot, rel)
		if res.Verdict == report.VerdictFail {
			differingByExt[filepath.Ext(rel)]++
		}
		agg.Add(res)
	}

	for ext, n := range differingByExt {
		log.Info("differing files", "suffix", ext, "count", n)
	}
	return agg.Report(), nil
}

func diffCase(cmp *diff.Comparator, m *manifest.Manifest, refRoot, candRoot, rel string) report.CaseResult {
	res := report.CaseResult{CaseID: rel}
	refPath := filepath.Join(refRoot, filepath.FromSlash(rel))
	candPath := filepath.Join(candRoot, filepath.FromSlash(rel))

	refExists := fileExists(refPath)
	candExists := fileExists(candPath)
	switch {
	case refExists && !candExists:
		res.Verdict = report.VerdictFail
		res.Detail = "only in reference tree"
		return res
	case candExists && !refExists:
		res.Verdict = report.VerdictFail
		res.Detail = "only in candidate tree"
		return res
	}

	if m.IsArtifact(rel) {
		d, err := cmp.Compare(refPath, candPath)
		if err != nil {
			res.Detail = err.Error()
		} else {
			res.Diffs = []diff.ArtifactDiff{d}
		}
	} else {
		d, err := byteCompare(refPath, candPath)
		if err != nil {
			res.Detail = err.Error()
		} else {
			res.Diffs = []diff.ArtifactDiff{d}
		}
	}
	res.Verdict = report.Derive(nil, res.Diffs, res.Detail)
	return res
}

// byteCompare handles non-artifact files (logs, trailers) where byte
// equality is the only sensible criterion.
func byteCompare(refPath, candPath string) (diff.ArtifactDiff, error) {
	d := diff.ArtifactDiff{RefPath: refPath, CandPath: candPath, Reason: "byte comparison"}
	ref, err := os.ReadFile(refPath)
	if err != nil {
		return d, err
	}
	cand, err := os.ReadFile(candPath)
	if err != nil {
		return d, err
	}
	if bytes.Equal(ref, cand) {
		d.Verdict = diff.VerdictIdentical
		d.Reason = ""
	} else {
		d.Verdict = diff.VerdictDiffering
	}
	return d, nil
}

// unionRelPaths lists every regular file under either root, as sorted
// slash-relative paths.
func unionRelPaths(roots ...string) ([]string, error) {
	seen := map[string]struct{}{}
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil || entry.IsDir() {
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil
			}
			seen[filepath.ToSlash(rel)] = struct{}{}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	out := make([]string, 0, len(seen))
	for rel := range seen {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
