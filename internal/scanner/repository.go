package scanner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository persists scanner states.
type Repository interface {
	List(ctx context.Context) ([]State, error)
	Get(ctx context.Context, deviceID string) (State, error)
	// Upsert stores st unless a row with an equal or newer version exists.
	Upsert(ctx context.Context, st State) error
	Delete(ctx context.Context, deviceID string) error
}

// SQLiteRepository implements Repository on the scanner_states table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectStateColumns = `SELECT device_id, mode, current_location_id, associated_ui_id, last_scan_at, version FROM scanner_states`

// List returns every persisted state ordered by device id.
func (r *SQLiteRepository) List(ctx context.Context) ([]State, error) {
	rows, err := r.db.QueryContext(ctx, selectStateColumns+" ORDER BY device_id")
	if err != nil {
		return nil, fmt.Errorf("querying scanner states: %w", err)
	}
	defer rows.Close()

	var states []State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scanner states: %w", err)
	}
	return states, nil
}

// Get returns one persisted state or ErrNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, deviceID string) (State, error) {
	row := r.db.QueryRowContext(ctx, selectStateColumns+" WHERE device_id = ?", deviceID)
	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, ErrNotFound
	}
	return st, err
}

// Upsert writes st. The version guard keeps out-of-order write-through
// from regressing a row to an older state.
func (r *SQLiteRepository) Upsert(ctx context.Context, st State) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scanner_states (device_id, mode, current_location_id, associated_ui_id, last_scan_at, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			mode                = excluded.mode,
			current_location_id = excluded.current_location_id,
			associated_ui_id    = excluded.associated_ui_id,
			last_scan_at        = excluded.last_scan_at,
			version             = excluded.version,
			updated_at          = excluded.updated_at
		WHERE excluded.version > scanner_states.version`,
		st.DeviceID,
		string(st.Mode),
		st.CurrentLocationID,
		st.AssociatedUIID,
		st.LastScanAt.UTC().Format(time.RFC3339Nano),
		int64(st.Version), //nolint:gosec // versions stay far below 2^63
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting scanner state: %w", err)
	}
	return nil
}

// Delete removes a persisted state. Deleting an absent row is not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM scanner_states WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("deleting scanner state: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (State, error) {
	var (
		st         State
		mode       string
		location   sql.NullString
		ui         sql.NullString
		lastScanAt string
		version    int64
	)
	if err := row.Scan(&st.DeviceID, &mode, &location, &ui, &lastScanAt, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return State{}, err
		}
		return State{}, fmt.Errorf("scanning scanner state: %w", err)
	}

	m, err := ParseMode(mode)
	if err != nil {
		return State{}, fmt.Errorf("scanner state %s: %w", st.DeviceID, err)
	}
	st.Mode = m

	if location.Valid {
		st.CurrentLocationID = &location.String
	}
	if ui.Valid {
		st.AssociatedUIID = &ui.String
	}

	st.LastScanAt, err = time.Parse(time.RFC3339Nano, lastScanAt)
	if err != nil {
		return State{}, fmt.Errorf("parsing last_scan_at %q: %w", lastScanAt, err)
	}
	st.Version = uint64(version) //nolint:gosec // stored from a uint64
	return st, nil
}
