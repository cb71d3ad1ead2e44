package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/desertthunder/qbx/internal/formatter"
	"github.com/desertthunder/qbx/internal/shared"
	"github.com/desertthunder/qbx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Favorites returns the action collecting the favorites listing of kind.
func (r *Runner) Favorites(kind tasks.QueryKind) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		format, err := formatter.ParseFormat(cmd.String("format"))
		if err != nil {
			return err
		}

		r.logger.Info("collecting favorites", "kind", kind)

		engine, done := r.queryEngine(cmd.Bool("progress"))
		res, err := engine.Favorites(ctx, kind)
		done()

		return r.report(format, cmd.String("output"), res, err)
	}
}

// Search returns the action collecting songs for a search of kind.
func (r *Runner) Search(kind tasks.QueryKind) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		text := strings.TrimSpace(cmd.StringArg("text"))
		if text == "" {
			return fmt.Errorf("%w: search text", shared.ErrMissingArgument)
		}

		format, err := formatter.ParseFormat(cmd.String("format"))
		if err != nil {
			return err
		}

		r.logger.Info("searching", "kind", kind, "text", text)

		engine, done := r.queryEngine(cmd.Bool("progress"))
		res, err := engine.Search(ctx, kind, text)
		done()

		return r.report(format, cmd.String("output"), res, err)
	}
}

// FavoritesAll collects all three favorites listings concurrently.
//
// With --output the results are written into that directory under their default names.
func (r *Runner) FavoritesAll(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	engine, done := r.queryEngine(cmd.Bool("progress"))
	all, err := engine.FavoritesAll(ctx)
	done()
	if err != nil {
		return err
	}

	kinds := []tasks.QueryKind{tasks.QueryArtists, tasks.QueryAlbums, tasks.QuerySongs}

	if dir := cmd.String("output"); dir != "" {
		for _, kind := range kinds {
			res := all[kind]
			path, err := formatter.WriteExport(format, res, filepath.Join(dir, formatter.DefaultFilename(format, res)))
			if err != nil {
				return err
			}
			r.logSummary(res)
			r.writePlain("✓ Saved %s\n", path)
		}
		return nil
	}

	if format == formatter.FormatJSON {
		docs := make(map[string]json.RawMessage, len(kinds))
		for _, kind := range kinds {
			data, err := formatter.ToJSON(all[kind])
			if err != nil {
				return fmt.Errorf("failed to render %s: %w", kind, err)
			}
			docs[kind.String()] = data
			r.logSummary(all[kind])
		}
		return r.writeJSON(docs, true)
	}

	for _, kind := range kinds {
		res := all[kind]
		data, err := formatter.Render(format, res)
		if err != nil {
			return err
		}
		if format == formatter.FormatText {
			r.writePlainHeader(formatter.Title(res))
		}
		if err := r.writeBytes(data); err != nil {
			return err
		}
		r.logSummary(res)
	}
	return nil
}

// queryEngine creates an engine for one command. With progress set, status and progress events are
// logged as they arrive. done must be called once the query has returned.
func (r *Runner) queryEngine(progress bool) (*tasks.Engine, func()) {
	if !progress {
		return r.newEngine(nil), func() {}
	}

	updates := make(chan tasks.ProgressUpdate, 64)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for update := range updates {
			if update.Done() {
				continue
			}
			if update.Total > 0 {
				r.logger.Info(update.Message, "query", update.QueryID, "phase", update.Phase, "progress", fmt.Sprintf("%d%%", update.Step))
			} else {
				r.logger.Info(update.Message, "query", update.QueryID, "phase", update.Phase)
			}
		}
	}()

	engine := r.newEngine(tasks.NewChannelListener(updates))
	return engine, func() {
		close(updates)
		<-drained
	}
}

// report writes the results of a finished query. A rejected query returns its error.
func (r *Runner) report(format formatter.Format, output string, res *tasks.Results, queryErr error) error {
	if res == nil {
		return queryErr
	}
	if res.Outcome == tasks.OutcomeRejected {
		return fmt.Errorf("query rejected: %w", queryErr)
	}
	if queryErr != nil {
		return queryErr
	}

	if output != "" {
		path, err := formatter.WriteExport(format, res, output)
		if err != nil {
			return err
		}
		r.logSummary(res)
		return r.writePlain("✓ Saved %s\n", path)
	}

	data, err := formatter.Render(format, res)
	if err != nil {
		return err
	}
	if err := r.writeBytes(data); err != nil {
		return err
	}
	r.logSummary(res)
	return nil
}

func (r *Runner) logSummary(res *tasks.Results) {
	summary := formatter.Summary(res)
	switch res.Outcome {
	case tasks.OutcomeSongs:
		if len(res.Errors) > 0 {
			r.logger.Warn(summary, "query", res.QueryID, "kind", res.Kind)
			return
		}
		r.logger.Info(summary, "query", res.QueryID, "kind", res.Kind)
	case tasks.OutcomeNoMatch:
		r.logger.Info(summary, "query", res.QueryID, "kind", res.Kind)
	default:
		r.logger.Error(summary, "query", res.QueryID, "kind", res.Kind)
	}
}
