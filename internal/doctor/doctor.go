package doctor

import (
	"fmt"
	"io"
	"strings"
)

// Report counts results by outcome. A fixed check counts as passed.
type Report struct {
	Passed int
	Warned int
	Failed int
	Fixed  int
}

// Healthy reports whether no check ended in StatusError.
func (r *Report) Healthy() bool { return r.Failed == 0 }

// Doctor runs registered checks in order.
type Doctor struct {
	checks []Check
}

// Register appends c to the run order.
func (d *Doctor) Register(c Check) {
	d.checks = append(d.checks, c)
}

// Run executes every check and writes one line per result to w as it
// completes. With fix set, a failing check that can fix itself is fixed
// and run again; it counts as fixed only if the second run is OK.
func (d *Doctor) Run(ctx *CheckContext, w io.Writer, fix bool) *Report {
	rep := &Report{}
	for _, c := range d.checks {
		res := c.Run(ctx)
		if fix && res.Status != StatusOK && c.CanFix() {
			if err := c.Fix(ctx); err != nil {
				res.Details = append(res.Details, "fix failed: "+err.Error())
			} else if again := c.Run(ctx); again.Status == StatusOK {
				res = again
				res.Fixed = true
			}
		}
		writeResult(w, res, ctx.Verbose)

		switch {
		case res.Fixed:
			rep.Fixed++
			rep.Passed++
		case res.Status == StatusOK:
			rep.Passed++
		case res.Status == StatusWarning:
			rep.Warned++
		default:
			rep.Failed++
		}
	}
	return rep
}

func writeResult(w io.Writer, r *CheckResult, verbose bool) {
	icon := "✓"
	switch {
	case r.Fixed:
	case r.Status == StatusWarning:
		icon = "⚠"
	case r.Status == StatusError:
		icon = "✗"
	}
	line := fmt.Sprintf("  %s %s: %s", icon, r.Name, r.Message)
	if r.Fixed {
		line += " (fixed)"
	}
	fmt.Fprintln(w, line) //nolint:errcheck // best-effort output
	if verbose {
		for _, d := range r.Details {
			fmt.Fprintf(w, "      %s\n", d) //nolint:errcheck // best-effort output
		}
	}
	if r.FixHint != "" && r.Status != StatusOK && !r.Fixed {
		fmt.Fprintf(w, "      hint: %s\n", r.FixHint) //nolint:errcheck // best-effort output
	}
}

// PrintSummary writes a blank line and the non-zero counts of r.
func PrintSummary(w io.Writer, r *Report) {
	var parts []string
	for _, p := range []struct {
		n    int
		what string
	}{
		{r.Passed, "passed"},
		{r.Warned, "warnings"},
		{r.Failed, "failed"},
		{r.Fixed, "fixed"},
	} {
		if p.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", p.n, p.what))
		}
	}
	if len(parts) == 0 {
		fmt.Fprintln(w, "\nNo checks ran.") //nolint:errcheck // best-effort output
		return
	}
	fmt.Fprintf(w, "\n%s\n", strings.Join(parts, ", ")) //nolint:errcheck // best-effort output
}
