// Package sqlite persists recorded vendor interactions. One row per logical
// request, plus optional per-event rows for streamed responses.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/polywire/polywire/internal/domain"
)

// Interaction is one recorded request/response exchange.
type Interaction struct {
	ID        string
	Provider  string
	Model     string
	Streaming bool
	Request   *domain.CanonicalRequest
	Response  *domain.CanonicalResponse
	Error     *domain.APIError
	Duration  time.Duration
	CreatedAt time.Time
}

// StreamEvent is one recorded canonical event of a streamed interaction.
type StreamEvent struct {
	InteractionID string
	Seq           int
	Event         domain.StreamEvent
	CreatedAt     time.Time
}

// Store is a SQLite-backed interaction store.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			streaming INTEGER NOT NULL,
			request TEXT,
			response TEXT,
			error TEXT,
			duration_ns INTEGER,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stream_events (
			interaction_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			event TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (interaction_id, seq),
			FOREIGN KEY (interaction_id) REFERENCES interactions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_provider ON interactions(provider, created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveInteraction persists one exchange.
func (s *Store) SaveInteraction(ctx context.Context, in *Interaction) error {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}

	var request, response, errJSON sql.NullString
	if in.Request != nil {
		b, err := json.Marshal(in.Request)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		request = sql.NullString{String: string(b), Valid: true}
	}
	if in.Response != nil {
		b, err := json.Marshal(in.Response)
		if err != nil {
			return fmt.Errorf("marshal response: %w", err)
		}
		response = sql.NullString{String: string(b), Valid: true}
	}
	if in.Error != nil {
		b, err := json.Marshal(in.Error)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		errJSON = sql.NullString{String: string(b), Valid: true}
	}

	streaming := 0
	if in.Streaming {
		streaming = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, provider, model, streaming, request, response, error, duration_ns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Provider, in.Model, streaming,
		request, response, errJSON, int64(in.Duration), in.CreatedAt)
	if err != nil {
		return fmt.Errorf("save interaction: %w", err)
	}
	return nil
}

// SaveStreamEvents persists the canonical events of one streamed interaction.
func (s *Store) SaveStreamEvents(ctx context.Context, events []StreamEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stream_events (interaction_id, seq, event, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		b, err := json.Marshal(ev.Event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, ev.InteractionID, ev.Seq, string(b), ev.CreatedAt); err != nil {
			return fmt.Errorf("save stream event: %w", err)
		}
	}
	return tx.Commit()
}

// GetInteraction retrieves one exchange by id.
func (s *Store) GetInteraction(ctx context.Context, id string) (*Interaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, provider, model, streaming, request, response, error, duration_ns, created_at
		 FROM interactions WHERE id = ?`, id)

	var in Interaction
	var streaming int
	var request, response, errJSON sql.NullString
	var duration int64
	if err := row.Scan(&in.ID, &in.Provider, &in.Model, &streaming,
		&request, &response, &errJSON, &duration, &in.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get interaction: %w", err)
	}
	in.Streaming = streaming != 0
	in.Duration = time.Duration(duration)

	if request.Valid {
		if err := json.Unmarshal([]byte(request.String), &in.Request); err != nil {
			return nil, fmt.Errorf("unmarshal request: %w", err)
		}
	}
	if response.Valid {
		if err := json.Unmarshal([]byte(response.String), &in.Response); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	if errJSON.Valid {
		if err := json.Unmarshal([]byte(errJSON.String), &in.Error); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
	}
	return &in, nil
}

// ListStreamEvents retrieves the recorded events of one interaction in order.
func (s *Store) ListStreamEvents(ctx context.Context, interactionID string) ([]StreamEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT interaction_id, seq, event, created_at FROM stream_events
		 WHERE interaction_id = ? ORDER BY seq`, interactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StreamEvent
	for rows.Next() {
		var ev StreamEvent
		var payload string
		if err := rows.Scan(&ev.InteractionID, &ev.Seq, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &ev.Event); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListInteractionIDs returns all interaction ids, oldest first.
func (s *Store) ListInteractionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM interactions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
