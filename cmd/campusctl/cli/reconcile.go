package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/odyssey-erp/odyssey-campus/internal/elections"
)

// Reconciler recounts votes for one or many elections.
type Reconciler interface {
	Reconcile(ctx context.Context, electionID string, repair bool) (elections.ReconcileReport, error)
	ReconcileAll(ctx context.Context, status elections.Status, repair bool) ([]elections.ReconcileReport, error)
}

// ReconcileOptions defines available flags for the reconcile command.
type ReconcileOptions struct {
	ElectionID string
	Status     string
	Repair     bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReconcileSummary describes the JSON response for reconcile.
type ReconcileSummary struct {
	OK      bool                        `json:"ok"`
	Reports []elections.ReconcileReport `json:"reports"`
}

// ReconcileCommand recounts synchronously and prints the outcome. It exits
// 10 when drift was found and left unrepaired.
func ReconcileCommand(ctx context.Context, r Reconciler, opts ReconcileOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	var reports []elections.ReconcileReport
	if id := strings.TrimSpace(opts.ElectionID); id != "" {
		report, err := r.Reconcile(ctx, id, opts.Repair)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile: %v\n", err)
			return 1
		}
		reports = append(reports, report)
	} else {
		status, ok := elections.ParseStatus(opts.Status)
		if !ok {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile: invalid status %q\n", opts.Status)
			return 1
		}
		batch, err := r.ReconcileAll(ctx, status, opts.Repair)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile: %v\n", err)
			return 1
		}
		reports = batch
	}

	unrepaired := 0
	for _, rep := range reports {
		if len(rep.Drifts) > 0 && !rep.Repaired {
			unrepaired++
		}
	}
	if opts.JSONOutput {
		if reports == nil {
			reports = []elections.ReconcileReport{}
		}
		if err := json.NewEncoder(opts.Stdout).Encode(ReconcileSummary{OK: unrepaired == 0, Reports: reports}); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile: encode json: %v\n", err)
			return 1
		}
	} else {
		renderReconcileHuman(opts.Stdout, reports)
	}
	if unrepaired > 0 {
		return 10
	}
	return 0
}

func renderReconcileHuman(out io.Writer, reports []elections.ReconcileReport) {
	if len(reports) == 0 {
		_, _ = fmt.Fprintln(out, "No elections matched.")
		return
	}
	for _, rep := range reports {
		if len(rep.Drifts) == 0 {
			_, _ = fmt.Fprintf(out, "%s: counters match\n", rep.ElectionID)
			continue
		}
		state := "drift"
		if rep.Repaired {
			state = "repaired"
		}
		_, _ = fmt.Fprintf(out, "%s: %s (%d counter(s))\n", rep.ElectionID, state, len(rep.Drifts))
		for _, d := range rep.Drifts {
			target := d.CandidateID
			if target == "" {
				target = "election total"
			}
			_, _ = fmt.Fprintf(out, " - %s stored=%d counted=%d\n", target, d.Stored, d.Counted)
		}
	}
}
