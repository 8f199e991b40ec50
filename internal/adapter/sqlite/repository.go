package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/openmorph/metamorph/internal/domain"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Repository implements domain.TokenRepository and
// domain.StateRepository using SQLite.
type Repository struct {
	db *sql.DB
}

// Compile-time checks.
var (
	_ domain.TokenRepository = (*Repository)(nil)
	_ domain.StateRepository = (*Repository)(nil)
)

// New opens a SQLite database, runs migrations, and returns a ready repository.
func New(dataSourceName string) (*Repository, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready repository.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*Repository, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (r *Repository) DB() *sql.DB {
	return r.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

const timeFormat = "2006-01-02T15:04:05Z"

// --- TokenRepository ---

func (r *Repository) Create(ctx context.Context, t domain.Token) (domain.Token, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO tokens (owner, stage, created_at, updated_at)
		 VALUES (?, ?, ?, ?)`,
		t.Owner, t.Stage.Name(),
		t.CreatedAt.Format(timeFormat),
		t.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return domain.Token{}, fmt.Errorf("inserting token: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Token{}, fmt.Errorf("reading assigned token id: %w", err)
	}
	t.ID = id
	return t, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (domain.Token, error) {
	return r.scanToken(r.db.QueryRowContext(ctx,
		`SELECT id, owner, stage, created_at, updated_at
		 FROM tokens WHERE id = ?`, id,
	))
}

func (r *Repository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Token, error) {
	query := `SELECT id, owner, stage, created_at, updated_at FROM tokens`
	var args []any

	if filter.Stage != nil {
		query += ` WHERE stage = ?`
		args = append(args, filter.Stage.Name())
	}

	query += ` ORDER BY id`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	defer rows.Close()

	var tokens []domain.Token
	for rows.Next() {
		t, err := r.scanTokenFromRows(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}

	return tokens, rows.Err()
}

// --- StateRepository ---

func (r *Repository) State(ctx context.Context) (domain.CollectionState, error) {
	var st domain.CollectionState
	var lastTriggerAt string
	var intervalSeconds int64

	err := r.db.QueryRowContext(ctx,
		`SELECT last_trigger_at, interval_seconds, update_count, max_updates, latest_request_id
		 FROM collection_state WHERE id = 1`,
	).Scan(&lastTriggerAt, &intervalSeconds, &st.UpdateCount, &st.MaxUpdates, &st.LatestRequestID)
	if err != nil {
		return domain.CollectionState{}, fmt.Errorf("reading collection state: %w", err)
	}

	st.LastTriggerAt, _ = time.Parse(timeFormat, lastTriggerAt)
	st.Interval = time.Duration(intervalSeconds) * time.Second
	return st, nil
}

// EnsureState seeds the singleton row on first startup, setting the
// clock baseline to now, then applies the configured interval and
// budget cap. Counters and the latest request id survive restarts.
func (r *Repository) EnsureState(ctx context.Context, interval time.Duration, maxUpdates int) error {
	seconds := int64(interval / time.Second)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collection_state (id, last_trigger_at, interval_seconds, update_count, max_updates, latest_request_id)
		 VALUES (1, ?, ?, 0, ?, '')
		 ON CONFLICT (id) DO UPDATE SET interval_seconds = ?, max_updates = ?`,
		time.Now().UTC().Format(timeFormat), seconds, maxUpdates,
		seconds, maxUpdates,
	)
	if err != nil {
		return fmt.Errorf("ensuring collection state: %w", err)
	}
	return nil
}

// CommitAdvance applies one advance as a single transaction. Partial
// application (clock moved but stage unchanged, or vice versa) must
// never be observable.
func (r *Repository) CommitAdvance(ctx context.Context, commit domain.AdvanceCommit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning advance transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE tokens SET stage = ?, updated_at = ? WHERE id = ?`,
		commit.NewStage.Name(), commit.TriggeredAt.UTC().Format(timeFormat), commit.TokenID,
	)
	if err != nil {
		return fmt.Errorf("updating token stage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrTokenNotFound
	}

	if commit.RequestID != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE collection_state
			 SET last_trigger_at = ?, update_count = update_count + 1, latest_request_id = ?
			 WHERE id = 1`,
			commit.TriggeredAt.UTC().Format(timeFormat), commit.RequestID,
		); err != nil {
			return fmt.Errorf("updating collection state: %w", err)
		}

		if commit.Reading != nil {
			if err := upsertReading(ctx, tx, commit.RequestID, *commit.Reading); err != nil {
				return err
			}
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			`UPDATE collection_state SET last_trigger_at = ? WHERE id = 1`,
			commit.TriggeredAt.UTC().Format(timeFormat),
		); err != nil {
			return fmt.Errorf("updating collection state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing advance: %w", err)
	}
	return nil
}

func (r *Repository) ResetBudget(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE collection_state SET update_count = 0 WHERE id = 1`,
	); err != nil {
		return fmt.Errorf("resetting update budget: %w", err)
	}
	return nil
}

func (r *Repository) StoreReading(ctx context.Context, requestID string, reading domain.WeatherReading) error {
	return upsertReading(ctx, r.db, requestID, reading)
}

func (r *Repository) Reading(ctx context.Context, requestID string) (domain.WeatherReading, error) {
	var reading domain.WeatherReading

	err := r.db.QueryRowContext(ctx,
		`SELECT observed_at, precipitation_type, precipitation_1h, precipitation_24h,
		        pressure_hpa, temperature_c, wind_kph, humidity_pct, uv_index, icon
		 FROM readings WHERE request_id = ?`, requestID,
	).Scan(
		&reading.Timestamp, &reading.PrecipitationType,
		&reading.Precipitation1H, &reading.Precipitation24H,
		&reading.PressureHPa, &reading.TemperatureC, &reading.WindKPH,
		&reading.HumidityPct, &reading.UVIndex, &reading.Icon,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.WeatherReading{}, domain.ErrNoReading
		}
		return domain.WeatherReading{}, fmt.Errorf("reading %q: %w", requestID, err)
	}

	return reading, nil
}

// execer covers *sql.DB and *sql.Tx so the upsert can run standalone
// or inside the advance transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertReading(ctx context.Context, db execer, requestID string, reading domain.WeatherReading) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO readings (request_id, observed_at, precipitation_type, precipitation_1h,
		                       precipitation_24h, pressure_hpa, temperature_c, wind_kph,
		                       humidity_pct, uv_index, icon, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (request_id) DO UPDATE SET
		   observed_at = excluded.observed_at,
		   precipitation_type = excluded.precipitation_type,
		   precipitation_1h = excluded.precipitation_1h,
		   precipitation_24h = excluded.precipitation_24h,
		   pressure_hpa = excluded.pressure_hpa,
		   temperature_c = excluded.temperature_c,
		   wind_kph = excluded.wind_kph,
		   humidity_pct = excluded.humidity_pct,
		   uv_index = excluded.uv_index,
		   icon = excluded.icon,
		   stored_at = excluded.stored_at`,
		requestID, reading.Timestamp, reading.PrecipitationType,
		reading.Precipitation1H, reading.Precipitation24H,
		reading.PressureHPa, reading.TemperatureC, reading.WindKPH,
		reading.HumidityPct, reading.UVIndex, reading.Icon,
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("upserting reading %q: %w", requestID, err)
	}
	return nil
}

// scanToken scans a single row from QueryRow into a domain.Token.
func (r *Repository) scanToken(row *sql.Row) (domain.Token, error) {
	var t domain.Token
	var stage, createdAt, updatedAt string

	err := row.Scan(&t.ID, &t.Owner, &stage, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Token{}, domain.ErrTokenNotFound
		}
		return domain.Token{}, fmt.Errorf("scanning token: %w", err)
	}

	return r.hydrateToken(t, stage, createdAt, updatedAt)
}

// scanTokenFromRows scans a single row from Rows (used in List).
func (r *Repository) scanTokenFromRows(rows *sql.Rows) (domain.Token, error) {
	var t domain.Token
	var stage, createdAt, updatedAt string

	err := rows.Scan(&t.ID, &t.Owner, &stage, &createdAt, &updatedAt)
	if err != nil {
		return domain.Token{}, fmt.Errorf("scanning token row: %w", err)
	}

	return r.hydrateToken(t, stage, createdAt, updatedAt)
}

func (r *Repository) hydrateToken(t domain.Token, stage, createdAt, updatedAt string) (domain.Token, error) {
	s, ok := domain.StageFromName(stage)
	if !ok {
		return domain.Token{}, fmt.Errorf("token %d has unknown stage %q", t.ID, stage)
	}
	t.Stage = s
	t.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	t.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	return t, nil
}
