package main

import (
	"context"
	"time"

	"github.com/desertthunder/qbx/internal/formatter"
	"github.com/urfave/cli/v3"
)

// runView is the JSON shape of a recorded query run.
type runView struct {
	QueryID    int        `json:"query_id"`
	Kind       string     `json:"kind"`
	SearchText string     `json:"search_text,omitempty"`
	Songs      int        `json:"songs"`
	NoResults  bool       `json:"no_results"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Runs lists recorded queries, newest first.
func (r *Runner) Runs(ctx context.Context, cmd *cli.Command) error {
	if err := r.database(); err != nil {
		return err
	}

	runs, err := r.runs.List(map[string]any{
		"kind":  cmd.String("kind"),
		"limit": cmd.Int("limit"),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]runView, len(runs))
		for i, run := range runs {
			views[i] = runView{
				QueryID:    run.QueryID(),
				Kind:       run.Kind(),
				SearchText: run.SearchText(),
				Songs:      run.Songs(),
				NoResults:  run.NoResults(),
				Error:      run.ErrorText(),
				StartedAt:  run.StartedAt(),
				FinishedAt: run.FinishedAt(),
			}
		}
		return r.writeJSON(views, true)
	}

	if len(runs) == 0 {
		return r.writePlain("No queries recorded yet.\n")
	}
	return r.writeBytes(formatter.RunsToText(runs))
}
