package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/qbx/internal/models"
	"github.com/desertthunder/qbx/internal/shared"
	"github.com/desertthunder/qbx/internal/tasks"
)

const queryRunColumns = `id, sequence, query_id, kind, search_text, songs, no_results, error,
	started_at, finished_at, created_at, updated_at, deleted_at`

// QueryRunRepository implements models.Repository[*models.QueryRun] for query history.
type QueryRunRepository struct {
	db *sql.DB
}

// NewQueryRunRepository creates a new QueryRunRepository with the given database connection
func NewQueryRunRepository(db *sql.DB) *QueryRunRepository {
	return &QueryRunRepository{db: db}
}

// Create inserts a new query run with generated ID and sequence
func (r *QueryRunRepository) Create(run *models.QueryRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "query_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	run.SetSequence(sequence)
	run.SetID(shared.GenerateID())

	query := `
		INSERT INTO query_runs (id, sequence, query_id, kind, search_text, songs, no_results, error,
			started_at, finished_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		run.ID(), sequence, run.QueryID(), run.Kind(), run.SearchText(), run.Songs(), run.NoResults(), run.ErrorText(),
		run.StartedAt(), nullTime(run.FinishedAt()), run.CreatedAt(), run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query run: %w", err)
	}

	return nil
}

// Get retrieves a query run by ID, excluding soft-deleted runs
func (r *QueryRunRepository) Get(id string) (*models.QueryRun, error) {
	query := `SELECT ` + queryRunColumns + ` FROM query_runs WHERE id = ? AND deleted_at IS NULL`
	return scanQueryRun(r.db.QueryRow(query, id))
}

// Update stores the outcome fields of an existing run
func (r *QueryRunRepository) Update(run *models.QueryRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	query := `
		UPDATE query_runs
		SET songs = ?, no_results = ?, error = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, run.Songs(), run.NoResults(), run.ErrorText(), nullTime(run.FinishedAt()), now, run.ID())
	if err != nil {
		return fmt.Errorf("failed to update query run: %w", err)
	}

	return affected(result, fmt.Errorf("%w: %s", shared.ErrRunNotFound, run.ID()))
}

// Delete soft-deletes a query run by ID
func (r *QueryRunRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE query_runs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete query run: %w", err)
	}

	return affected(result, fmt.Errorf("%w: %s", shared.ErrRunNotFound, id))
}

// List retrieves runs newest first. Supported criteria: "kind" (string) and "limit" (int).
func (r *QueryRunRepository) List(criteria map[string]any) ([]*models.QueryRun, error) {
	query := `SELECT ` + queryRunColumns + ` FROM query_runs WHERE deleted_at IS NULL`
	args := []any{}

	if kind, ok := criteria["kind"].(string); ok && kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.QueryRun
	for rows.Next() {
		run, err := scanQueryRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

func scanQueryRun(row scanner) (*models.QueryRun, error) {
	var (
		id, kind, searchText, errorText string
		sequence, queryID, songs        int
		noResults                       bool
		startedAt, createdAt, updatedAt time.Time
		finishedAt, deletedAt           sql.NullTime
	)

	err := row.Scan(&id, &sequence, &queryID, &kind, &searchText, &songs, &noResults, &errorText,
		&startedAt, &finishedAt, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan query run: %w", err)
	}

	run := models.NewQueryRun(sequence, queryID, kind, searchText)
	run.SetID(id)
	run.SetSongs(songs)
	run.SetNoResults(noResults)
	run.SetErrorText(errorText)
	run.SetStartedAt(startedAt)
	run.SetFinishedAt(timePtr(finishedAt))
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)
	run.SetDeletedAt(timePtr(deletedAt))

	return run, nil
}

// RunRecorderAdapter implements tasks.RunRecorder using QueryRunRepository.
type RunRecorderAdapter struct {
	repo *QueryRunRepository
}

// NewRunRecorderAdapter creates a new RunRecorderAdapter with the given repository
func NewRunRecorderAdapter(repo *QueryRunRepository) *RunRecorderAdapter {
	return &RunRecorderAdapter{repo: repo}
}

// RecordRun stores a finished or rejected query. The error column holds the summary of any
// outcome other than songs without errors or a legitimate empty result.
func (a *RunRecorderAdapter) RecordRun(run tasks.RunRecord) error {
	record := models.NewQueryRun(0, run.QueryID, run.Kind.String(), run.SearchText)
	record.SetSongs(run.Songs)
	record.SetNoResults(run.Outcome == tasks.OutcomeNoMatch)
	if run.Outcome != tasks.OutcomeNoMatch {
		record.SetErrorText(run.Summary)
	}
	record.SetStartedAt(run.StartedAt)
	finished := run.FinishedAt
	record.SetFinishedAt(&finished)

	if err := a.repo.Create(record); err != nil {
		return fmt.Errorf("failed to record query run: %w", err)
	}
	return nil
}
