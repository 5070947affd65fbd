package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/caldrift/caldrift/internal/artifact"
	"github.com/caldrift/caldrift/internal/diff"
)

// WriteText renders the report for terminals. The layout is stable so it
// can be golden-tested; durations and run IDs vary per run and are
// therefore confined to the header lines.
func (r *RunReport) WriteText(w io.Writer) error {
	var err error
	p := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	for i := range r.Cases {
		c := &r.Cases[i]
		p("%-5s %s\n", c.Verdict, c.CaseID)
		if c.Detail != "" {
			p("      %s\n", c.Detail)
		}
		if c.Outcome != nil && c.Outcome.Status != "ok" {
			p("      status=%s exit=%d\n", c.Outcome.Status, c.Outcome.ExitCode)
			if c.Outcome.Err != "" {
				p("      %s\n", c.Outcome.Err)
			}
		}
		for j := range c.Diffs {
			writeDiff(p, &c.Diffs[j])
		}
	}

	p("\n%d case(s): %d passed, %d failed, %d errored\n",
		r.Total(), r.Passed, r.Failed, r.Errored)
	return err
}

func writeDiff(p func(string, ...any), d *diff.ArtifactDiff) {
	if d.Verdict == diff.VerdictIdentical {
		return
	}
	p("      %s: %q vs %q\n", d.Verdict, d.RefPath, d.CandPath)
	if d.Reason != "" {
		p("        %s\n", d.Reason)
	}
	for i := range d.Units {
		u := &d.Units[i]
		if u.Empty() {
			continue
		}
		switch u.Presence {
		case diff.PresenceRefOnly:
			p("        unit %s: only in reference\n", u.Name)
			continue
		case diff.PresenceCandOnly:
			p("        unit %s: only in candidate\n", u.Name)
			continue
		}
		for _, f := range u.Fields {
			switch f.Kind {
			case diff.FieldAdded:
				p("        unit %s: field %s added = %s\n", u.Name, f.Key, artifact.Format(f.New))
			case diff.FieldRemoved:
				p("        unit %s: field %s removed (was %s)\n", u.Name, f.Key, artifact.Format(f.Old))
			default:
				p("        unit %s: field %s: %s -> %s\n", u.Name, f.Key, artifact.Format(f.Old), artifact.Format(f.New))
			}
		}
		if u.Data != nil && !u.Data.Empty() {
			if u.Data.ShapeMismatch {
				p("        unit %s: shape mismatch %v vs %v\n", u.Name, u.Data.RefShape, u.Data.CandShape)
			} else {
				p("        unit %s: %d element(s) differ, max abs %g, max rel %g\n",
					u.Name, u.Data.Differing, u.Data.MaxAbs, u.Data.MaxRel)
				if u.Data.NaNMismatch > 0 {
					p("        unit %s: %d NaN mismatch(es)\n", u.Name, u.Data.NaNMismatch)
				}
			}
		}
	}
}

// WriteJSON renders the report as indented JSON.
func (r *RunReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
