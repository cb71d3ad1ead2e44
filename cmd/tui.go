package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/qbx/internal/shared"
	"github.com/desertthunder/qbx/internal/tasks"
	"github.com/desertthunder/qbx/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for running queries.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if r.api.AppID() == "" {
		return fmt.Errorf("%w: set credentials.qobuz.app_id in config.toml", shared.ErrMissingAppID)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/qbx-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	updates := make(chan tasks.ProgressUpdate, 64)
	engine := r.newEngine(tasks.NewChannelListener(updates))
	defer engine.CancelAll()

	model := ui.NewModel(ctx, engine, updates)
	p := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
