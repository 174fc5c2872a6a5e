package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetSummary returns the latest rolling summary recorded for the user. A user
// with no recorded turns gets the empty string; absence and empty history are
// not distinguished.
func (s *Store) GetSummary(ctx context.Context, userID int64) (string, error) {
	var summary string
	err := s.db.QueryRow(ctx,
		`SELECT summary FROM conversations WHERE user_id = $1`, userID,
	).Scan(&summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get summary %d: %w", userID, err)
	}
	return summary, nil
}

// UpsertSummary inserts or overwrites the rolling summary for the user.
// There is exactly one conversations row per user once any turn has occurred.
func (s *Store) UpsertSummary(ctx context.Context, userID int64, summary string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO conversations (user_id, summary)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET summary = excluded.summary
	`, userID, summary)
	if err != nil {
		return fmt.Errorf("store: upsert summary %d: %w", userID, err)
	}
	return nil
}
