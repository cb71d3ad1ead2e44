package main

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/qbx/internal/covers"
	"github.com/desertthunder/qbx/internal/repositories"
	"github.com/desertthunder/qbx/internal/services"
	"github.com/desertthunder/qbx/internal/shared"
	"github.com/desertthunder/qbx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	api    *services.APIService
	logger *log.Logger
	output io.Writer
	db     *sql.DB
	songs  *repositories.SongRepository
	runs   *repositories.QueryRunRepository
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil API is built from the configured credentials. A nil DB is opened from the configured path on first use.
type RunnerOpts struct {
	Config     *shared.Config
	API        *services.APIService
	HTTPClient *http.Client
	DB         *sql.DB
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.API == nil {
		opts.API = newAPIService(opts.Config.Credentials.Qobuz, opts.HTTPClient)
	}

	r := &Runner{
		config: opts.Config,
		api:    opts.API,
		logger: opts.Logger,
		output: opts.Output,
	}
	if opts.DB != nil {
		r.attach(opts.DB)
	}
	return r
}

func newAPIService(creds shared.QobuzConfig, client *http.Client) *services.APIService {
	return services.NewAPIService(creds.BaseURL, client,
		services.WithAppID(creds.AppID),
		services.WithUserAuthToken(creds.UserAuthToken),
		services.WithRateLimit(creds.RateLimit),
	)
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, favoritesCommand, searchCommand, cacheCommand, runsCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger used by commands and new engines.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) attach(db *sql.DB) {
	r.db = db
	r.songs = repositories.NewSongRepository(db)
	r.runs = repositories.NewQueryRunRepository(db)
}

// database opens and migrates the configured database unless one is already attached.
func (r *Runner) database() error {
	if r.db != nil {
		return nil
	}
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	r.attach(db)
	return nil
}

// Close releases the database, if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// newEngine wires an engine to the catalog, the cover cache and, when the database is
// reachable, the song cache and run history.
func (r *Runner) newEngine(listener tasks.Listener) *tasks.Engine {
	opts := tasks.EngineOpts{
		Config:   r.config.Engine,
		Catalog:  r.api,
		Session:  r.api,
		Listener: listener,
		Logger:   r.logger,
	}
	if r.config.Engine.DownloadAlbumCovers && r.config.Covers.Dir != "" {
		opts.Images = covers.NewCache(r.config.Covers.Dir, shared.WithLogger(r.logger, "component", "covers"))
	}

	if err := r.database(); err != nil {
		r.logger.Warn("song cache disabled", "error", err)
	} else {
		opts.Cache = repositories.NewSongCacheAdapter(r.songs)
		opts.Recorder = repositories.NewRunRecorderAdapter(r.runs)
	}

	return tasks.NewEngine(opts)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
