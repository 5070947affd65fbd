package run

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/caldrift/caldrift/internal/artifact"
	"github.com/caldrift/caldrift/internal/diff"
	"github.com/caldrift/caldrift/internal/dispatch"
)

// liveComparator compares a case's output against the reference tree the
// moment the case completes, so a multi-hour batch surfaces failures
// while it is still running instead of at the end.
type liveComparator struct {
	comparator    *diff.Comparator
	isArtifact    func(name string) bool
	outputRoot    string
	referenceRoot string
	logger        *slog.Logger
}

// compare pairs each produced artifact with the same relative path under
// the reference root. A missing reference counterpart or an unreadable
// artifact becomes the case's error detail; non-artifact files (logs,
// trailers) are skipped - they differ on every run.
func (l *liveComparator) compare(out *dispatch.Outcome) (diffs []diff.ArtifactDiff, errDetail string) {
	for _, rel := range out.Artifacts {
		if !l.isArtifact(rel) {
			continue
		}
		refPath := filepath.Join(l.referenceRoot, filepath.FromSlash(rel))
		candPath := filepath.Join(l.outputRoot, filepath.FromSlash(rel))

		d, err := l.comparator.Compare(refPath, candPath)
		if err != nil {
			if isMissing(err, refPath) {
				return diffs, fmt.Sprintf("reference artifact missing: %s", rel)
			}
			return diffs, err.Error()
		}
		diffs = append(diffs, d)

		if d.Verdict != diff.VerdictIdentical {
			l.logger.Warn("live comparison differs", "case", out.CaseID, "artifact", rel, "verdict", d.Verdict)
		} else {
			l.logger.Debug("live comparison identical", "case", out.CaseID, "artifact", rel)
		}
	}
	return diffs, ""
}

func isMissing(err error, path string) bool {
	var ue *artifact.UnreadableError
	if !errors.As(err, &ue) {
		return false
	}
	return ue.Path == path && errors.Is(err, fs.ErrNotExist)
}
