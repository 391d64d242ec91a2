package remote

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lifetrack/lifetrack/internal/models"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		started_at_ns INTEGER NOT NULL,
		ended_at_ns INTEGER
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_running
		ON sessions(kind) WHERE ended_at_ns IS NULL;`,
	`CREATE TABLE IF NOT EXISTS lifts (
		id TEXT PRIMARY KEY,
		workout_id TEXT NOT NULL REFERENCES sessions(id),
		exercise TEXT NOT NULL,
		reps INTEGER NOT NULL,
		weight REAL NOT NULL,
		logged_at_ns INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_lifts_workout
		ON lifts(workout_id, logged_at_ns);`,
}

// SQLite is a Service stored in a SQLite database.
type SQLite struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*SQLite, error) {
	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return nil, errOpen.Wrap(err)
	}

	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errOpen.Wrap(err)
	}

	// writes are serialised by sqlite anyway
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		_, err = db.Exec(stmt)
		if err != nil {
			_ = db.Close()
			return nil, errOpen.Wrap(err)
		}
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) GetActiveWorkout(
	ctx context.Context,
) (*models.RemoteRecord, error) {
	return s.active(ctx, models.Workout)
}

func (s *SQLite) GetActiveStudySession(
	ctx context.Context,
) (*models.RemoteRecord, error) {
	return s.active(ctx, models.Study)
}

func (s *SQLite) StartWorkout(
	ctx context.Context,
	label string,
	startedAt time.Time,
) (string, error) {
	return s.start(ctx, models.Workout, label, startedAt)
}

func (s *SQLite) StartStudySession(
	ctx context.Context,
	bucketID string,
	startedAt time.Time,
) (string, error) {
	return s.start(ctx, models.Study, bucketID, startedAt)
}

func (s *SQLite) EndWorkout(
	ctx context.Context,
	id string,
	endedAt time.Time,
) error {
	return s.end(ctx, models.Workout, id, "", endedAt)
}

func (s *SQLite) EndStudySession(
	ctx context.Context,
	id, notes string,
	endedAt time.Time,
) error {
	return s.end(ctx, models.Study, id, notes, endedAt)
}

func (s *SQLite) LogLift(
	ctx context.Context,
	workoutID string,
	lift models.Lift,
) (string, error) {
	rec, err := s.active(ctx, models.Workout)
	if err != nil {
		return "", err
	}

	if rec == nil || rec.ID != workoutID {
		return "", ErrRecordNotFound.Fmt(models.Workout, workoutID)
	}

	id := uuid.NewString()

	loggedAt := lift.LoggedAt
	if loggedAt.IsZero() {
		loggedAt = time.Now()
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO lifts (id, workout_id, exercise, reps, weight, logged_at_ns)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		workoutID,
		lift.Exercise,
		lift.Reps,
		lift.Weight,
		loggedAt.UnixNano(),
	)
	if err != nil {
		return "", err
	}

	return id, nil
}

func (s *SQLite) ListLifts(
	ctx context.Context,
	workoutID string,
) ([]models.Lift, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, exercise, reps, weight, logged_at_ns FROM lifts
		WHERE workout_id = ? ORDER BY logged_at_ns, id`,
		workoutID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lifts []models.Lift

	for rows.Next() {
		var (
			lift models.Lift
			ns   int64
		)

		err = rows.Scan(&lift.ID, &lift.Exercise, &lift.Reps, &lift.Weight, &ns)
		if err != nil {
			return nil, err
		}

		lift.LoggedAt = time.Unix(0, ns).UTC()
		lifts = append(lifts, lift)
	}

	return lifts, rows.Err()
}

func (s *SQLite) active(
	ctx context.Context,
	kind models.Kind,
) (*models.RemoteRecord, error) {
	var (
		rec models.RemoteRecord
		ns  int64
	)

	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, label, started_at_ns FROM sessions
		WHERE kind = ? AND ended_at_ns IS NULL`,
		string(kind),
	).Scan(&rec.ID, &rec.Label, &ns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	rec.Kind = kind
	rec.StartedAt = time.Unix(0, ns).UTC()

	return &rec, nil
}

func (s *SQLite) start(
	ctx context.Context,
	kind models.Kind,
	label string,
	startedAt time.Time,
) (string, error) {
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	id := uuid.NewString()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sessions (id, kind, label, started_at_ns) VALUES (?, ?, ?, ?)`,
		id,
		string(kind),
		label,
		startedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", ErrSessionActive.Fmt(kind)
		}

		return "", err
	}

	return id, nil
}

func (s *SQLite) end(
	ctx context.Context,
	kind models.Kind,
	id, notes string,
	endedAt time.Time,
) error {
	if endedAt.IsZero() {
		endedAt = time.Now()
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions SET ended_at_ns = ?, notes = ?
		WHERE id = ? AND kind = ? AND ended_at_ns IS NULL`,
		endedAt.UnixNano(),
		notes,
		id,
		string(kind),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return ErrRecordNotFound.Fmt(kind, id)
	}

	return nil
}
