// Package runstore provides SQLite-backed persistence of monitored
// execution runs. The append-only history journal stays the source of
// truth for catch-up decisions; the run store exists for richer
// querying (per-tool, per-outcome) from the CLI and web API.
package runstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shoma-dev/toolsched/internal/domain"
	_ "modernc.org/sqlite"
)

// Origin of a run
const (
	OriginScheduled = "scheduled"
	OriginManual    = "manual"
	OriginCatchup   = "catchup"
)

// Run is one monitored execution of a tool
type Run struct {
	ID             string
	ScheduleID     string
	Tool           domain.Tool
	Origin         string
	Phase          string
	StartedAt      time.Time
	FinishedAt     time.Time
	ElapsedSeconds int
	Message        string
}

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new run record
func (s *Store) Create(run *Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, schedule_id, tool, origin, phase, started_at, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.ScheduleID,
		string(run.Tool),
		run.Origin,
		run.Phase,
		run.StartedAt,
		run.Message,
	)
	return err
}

// Finish records a run's terminal phase and elapsed time
func (s *Store) Finish(id, phase string, finishedAt time.Time, elapsed time.Duration, message string) error {
	_, err := s.db.Exec(`
		UPDATE runs SET phase = ?, finished_at = ?, elapsed_seconds = ?, message = ?
		WHERE id = ?
	`, phase, finishedAt, int(elapsed.Seconds()), message, id)
	return err
}

// Get retrieves a run by ID
func (s *Store) Get(id string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, schedule_id, tool, origin, phase, started_at, finished_at, elapsed_seconds, message
		FROM runs WHERE id = ?
	`, id)
	return scanRun(row.Scan)
}

// ListOptions specifies filters for listing runs
type ListOptions struct {
	ScheduleID string
	Tool       domain.Tool
	Phase      string
	Limit      int
}

// List returns runs matching the given options, newest first
func (s *Store) List(opts ListOptions) ([]*Run, error) {
	query := `SELECT id, schedule_id, tool, origin, phase, started_at, finished_at, elapsed_seconds, message FROM runs WHERE 1=1`
	var args []interface{}

	if opts.ScheduleID != "" {
		query += " AND schedule_id = ?"
		args = append(args, opts.ScheduleID)
	}
	if opts.Tool != "" {
		query += " AND tool = ?"
		args = append(args, string(opts.Tool))
	}
	if opts.Phase != "" {
		query += " AND phase = ?"
		args = append(args, opts.Phase)
	}

	query += " ORDER BY started_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func scanRun(scan func(...interface{}) error) (*Run, error) {
	var run Run
	var tool string
	var startedAt, finishedAt sql.NullTime
	var elapsed sql.NullInt64
	var message sql.NullString

	err := scan(&run.ID, &run.ScheduleID, &tool, &run.Origin, &run.Phase, &startedAt, &finishedAt, &elapsed, &message)
	if err != nil {
		return nil, err
	}

	run.Tool = domain.Tool(tool)
	if startedAt.Valid {
		run.StartedAt = startedAt.Time
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	if elapsed.Valid {
		run.ElapsedSeconds = int(elapsed.Int64)
	}
	if message.Valid {
		run.Message = message.String
	}

	return &run, nil
}
