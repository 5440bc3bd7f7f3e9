package wizard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/intake"
)

// ErrDraftNotFound is returned by a DraftStore when no snapshot exists.
var ErrDraftNotFound = errors.New("draft not found")

// Draft is the persisted snapshot of one session. State is the wizard's
// MarshalState output and never contains credentials.
type Draft struct {
	SessionID string
	OwnerID   string
	Kind      intake.Kind
	State     []byte
	UpdatedAt time.Time
}

// DraftStore persists wizard snapshots so a session survives a restart.
type DraftStore interface {
	Save(ctx context.Context, d Draft) error
	Load(ctx context.Context, sessionID string) (*Draft, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	CountOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// NopDraftStore keeps nothing; sessions live only in memory.
type NopDraftStore struct{}

func (NopDraftStore) Save(ctx context.Context, d Draft) error { return nil }

func (NopDraftStore) Load(ctx context.Context, sessionID string) (*Draft, error) {
	return nil, ErrDraftNotFound
}

func (NopDraftStore) Delete(ctx context.Context, sessionID string) error { return nil }

func (NopDraftStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (NopDraftStore) CountOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

// PostgresDraftStore keeps snapshots in the intake_drafts table.
type PostgresDraftStore struct {
	db *sql.DB
}

func NewPostgresDraftStore(db *sql.DB) *PostgresDraftStore {
	return &PostgresDraftStore{db: db}
}

// EnsureSchema creates the drafts table when it does not exist yet.
func (s *PostgresDraftStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS intake_drafts (
			session_id TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL,
			kind       TEXT NOT NULL,
			state      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS intake_drafts_updated_at_idx ON intake_drafts (updated_at);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create intake_drafts table: %w", err)
	}
	return nil
}

func (s *PostgresDraftStore) Save(ctx context.Context, d Draft) error {
	query := `
		INSERT INTO intake_drafts (session_id, owner_id, kind, state, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE
		SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, d.SessionID, d.OwnerID, string(d.Kind), d.State, d.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save draft %s: %w", d.SessionID, err)
	}
	return nil
}

func (s *PostgresDraftStore) Load(ctx context.Context, sessionID string) (*Draft, error) {
	query := `
		SELECT session_id, owner_id, kind, state, updated_at
		FROM intake_drafts
		WHERE session_id = $1
	`
	var d Draft
	var kind string
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&d.SessionID, &d.OwnerID, &kind, &d.State, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft %s: %w", sessionID, err)
	}
	d.Kind = intake.Kind(kind)
	return &d, nil
}

func (s *PostgresDraftStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM intake_drafts WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete draft %s: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresDraftStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM intake_drafts WHERE updated_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired drafts: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

func (s *PostgresDraftStore) CountOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM intake_drafts WHERE updated_at < $1`, cutoff.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired drafts: %w", err)
	}
	return count, nil
}

var (
	_ DraftStore = NopDraftStore{}
	_ DraftStore = (*PostgresDraftStore)(nil)
)
