package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/qbx/internal/models"
)

var (
	_ models.Repository[*models.PersistedSong] = (*SongRepository)(nil)
	_ models.Repository[*models.QueryRun]      = (*QueryRunRepository)(nil)
)

// NextSequence returns the next sequence number for the given table.
//
// Every call inserts a row into the table's AUTOINCREMENT sequence table, so numbers are
// never reused even when the row that took one is deleted.
func NextSequence(db *sql.DB, table string) (int, error) {
	result, err := db.Exec(fmt.Sprintf("INSERT INTO %s_sequence DEFAULT VALUES", table))
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	sequence, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}

	return int(sequence), nil
}

// scanner is satisfied by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// affected turns a zero-row update into notFound.
func affected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
