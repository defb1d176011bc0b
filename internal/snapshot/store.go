// Package snapshot persists the engine's working state in SQLite so a restart
// resumes with the same synaptic levels, ring contents, and filter posture.
// Payloads are JSON, optionally sealed at rest with NaCl secretbox.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sentraotel "github.com/sentra-io/sentra/internal/otel"
	"github.com/sentra-io/sentra/internal/moral"
	"github.com/sentra-io/sentra/internal/pelm"
)

var tracer = sentraotel.Tracer("github.com/sentra-io/sentra/internal/snapshot")

// ErrNoSnapshot is returned when the store holds no snapshots yet.
var ErrNoSnapshot = errors.New("no snapshot found")

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    sealed INTEGER NOT NULL DEFAULT 0,
    payload BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at);
`

// State is the full persisted engine state.
type State struct {
	CreatedAt time.Time `json:"created_at"`

	SynapticL1     []float32 `json:"synaptic_l1"`
	SynapticL2     []float32 `json:"synaptic_l2"`
	SynapticL3     []float32 `json:"synaptic_l3"`
	SynapticEvents uint64    `json:"synaptic_events"`

	Ring pelm.RingState `json:"ring"`

	Filter     moral.ThresholdState `json:"filter"`
	DriftState string               `json:"drift_state"`
}

// Info is a lightweight snapshot listing row.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Sealed    bool      `json:"sealed"`
	Bytes     int       `json:"bytes"`
}

// Store persists snapshots in SQLite. A nil sealer stores payloads in plain
// JSON; with a sealer every payload is encrypted at rest.
type Store struct {
	db     *sql.DB
	sealer *Sealer
}

// NewStore opens the snapshot database, initializing the schema. Pass an empty
// sealKey to store snapshots unsealed.
func NewStore(dbPath, sealKey string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening snapshot database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating snapshot schema: %w", err)
	}

	var sealer *Sealer
	if sealKey != "" {
		sealer, err = NewSealer(sealKey)
		if err != nil {
			return nil, fmt.Errorf("snapshot sealer: %w", err)
		}
	}
	return &Store{db: db, sealer: sealer}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sealed reports whether payloads are encrypted at rest.
func (s *Store) Sealed() bool { return s.sealer != nil }

// Save persists a snapshot and returns its assigned ID.
func (s *Store) Save(ctx context.Context, state *State) (string, error) {
	ctx, span := tracer.Start(ctx, "snapshot.save",
		trace.WithAttributes(attribute.Bool("snapshot.sealed", s.sealer != nil)))
	defer span.End()

	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	sealed := 0
	if s.sealer != nil {
		payload, err = s.sealer.Seal(payload)
		if err != nil {
			return "", fmt.Errorf("sealing snapshot: %w", err)
		}
		sealed = 1
	}

	id := "snap_" + uuid.New().String()[:12]
	if err := s.insertWithRetry(ctx, id, state.CreatedAt, sealed, payload); err != nil {
		return "", err
	}

	savesTotal.Add(ctx, 1)
	span.SetAttributes(
		attribute.String("snapshot.id", id),
		attribute.Int("snapshot.bytes", len(payload)),
	)
	return id, nil
}

// insertWithRetry inserts a snapshot row with retries on SQLite busy/locked.
func (s *Store) insertWithRetry(ctx context.Context, id string, createdAt time.Time, sealed int, payload []byte) error {
	const maxRetries = 15
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepRetry(ctx, attempt); err != nil {
				return err
			}
		}
		_, lastErr = s.db.ExecContext(ctx,
			`INSERT INTO snapshots (id, created_at, sealed, payload) VALUES (?, ?, ?, ?)`,
			id, createdAt, sealed, payload)
		if lastErr == nil {
			return nil
		}
		if !isSQLiteLocked(lastErr) {
			return fmt.Errorf("writing snapshot: %w", lastErr)
		}
	}
	return fmt.Errorf("writing snapshot: %w", lastErr)
}

func sleepRetry(ctx context.Context, attempt int) error {
	backoff := time.Duration(attempt*attempt) * 20 * time.Millisecond
	if backoff > 250*time.Millisecond {
		backoff = 250 * time.Millisecond
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-time.After(backoff):
		return nil
	}
}

// isSQLiteLocked reports whether the error is SQLite busy/locked (retryable).
func isSQLiteLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "locked")
}

// Latest returns the most recent snapshot.
func (s *Store) Latest(ctx context.Context) (*State, error) {
	ctx, span := tracer.Start(ctx, "snapshot.latest")
	defer span.End()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, sealed, payload FROM snapshots ORDER BY created_at DESC, id DESC LIMIT 1`)
	state, id, err := s.scanState(row)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("snapshot.id", id))
	return state, nil
}

// Get returns the snapshot with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*State, error) {
	ctx, span := tracer.Start(ctx, "snapshot.get",
		trace.WithAttributes(attribute.String("snapshot.id", id)))
	defer span.End()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, sealed, payload FROM snapshots WHERE id = ?`, id)
	state, _, err := s.scanState(row)
	return state, err
}

// scanState decodes one snapshot row, unsealing if needed.
func (s *Store) scanState(row *sql.Row) (*State, string, error) {
	var id string
	var sealed int
	var payload []byte
	err := row.Scan(&id, &sealed, &payload)
	if err == sql.ErrNoRows {
		return nil, "", ErrNoSnapshot
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading snapshot: %w", err)
	}

	if sealed == 1 {
		if s.sealer == nil {
			return nil, "", fmt.Errorf("snapshot %s is sealed but no seal key is configured: %w", id, ErrSealOpen)
		}
		payload, err = s.sealer.Open(payload)
		if err != nil {
			return nil, "", fmt.Errorf("snapshot %s: %w", id, err)
		}
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, "", fmt.Errorf("decoding snapshot %s: %w", id, err)
	}
	return &state, id, nil
}

// List returns snapshot metadata ordered newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Info, error) {
	ctx, span := tracer.Start(ctx, "snapshot.list")
	defer span.End()

	query := `SELECT id, created_at, sealed, length(payload) FROM snapshots ORDER BY created_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		var sealed int
		if err := rows.Scan(&info.ID, &info.CreatedAt, &sealed, &info.Bytes); err != nil {
			continue
		}
		info.Sealed = sealed == 1
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Prune deletes all but the newest keep snapshots. Returns the number deleted.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	ctx, span := tracer.Start(ctx, "snapshot.prune",
		trace.WithAttributes(attribute.Int("snapshot.keep", keep)))
	defer span.End()

	if keep < 0 {
		keep = 0
	}
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY created_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	affected, _ := result.RowsAffected()
	span.SetAttributes(attribute.Int64("snapshot.pruned", affected))
	return affected, nil
}
