package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/introspect-ai/sophia/internal/persona"
)

// User is a single row of the users table.
type User struct {
	// ID is the system-assigned unique identifier.
	ID int64

	// Name is the unique, human-chosen login name.
	Name string

	// Prompt is the user's persona prompt. May be overwritten at any time;
	// an empty value means the fixed default persona applies.
	Prompt string
}

// GetUserID returns the id of the user with the given name.
// Returns [ErrNotFound] when no such user exists.
func (s *Store) GetUserID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`SELECT id FROM users WHERE name = $1`, name,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("store: get user id %q: %w", name, err)
	}
	return id, nil
}

// GetUser returns the user with the given id.
// Returns [ErrNotFound] when no such user exists.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx,
		`SELECT id, name, prompt FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Prompt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user %d: %w", id, err)
	}
	return &u, nil
}

// CreateUser inserts a new user seeded with the default persona prompt and
// returns its id. Returns [ErrConflict] when the name is already taken.
func (s *Store) CreateUser(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (name, prompt) VALUES ($1, $2) RETURNING id`,
		name, persona.Default,
	).Scan(&id)
	if isDuplicateKeyError(err) {
		return 0, fmt.Errorf("store: create user %q: %w", name, ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("store: create user %q: %w", name, err)
	}
	return id, nil
}

// GetOrCreateUser looks the name up and creates the user when absent.
//
// The lookup+insert pair is not atomic: two concurrent calls with the same
// unseen name can both miss the lookup and race on the insert. The loser hits
// the uniqueness violation and is retried as a lookup, so both callers end up
// with the same id.
func (s *Store) GetOrCreateUser(ctx context.Context, name string) (int64, error) {
	id, err := s.GetUserID(ctx, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	id, err = s.CreateUser(ctx, name)
	if errors.Is(err, ErrConflict) {
		// Lost the insert race; the row exists now.
		return s.GetUserID(ctx, name)
	}
	return id, err
}

// GetPrompt returns the stored persona prompt for the user.
// Returns [ErrNotFound] when the user does not exist.
func (s *Store) GetPrompt(ctx context.Context, id int64) (string, error) {
	var prompt string
	err := s.db.QueryRow(ctx,
		`SELECT prompt FROM users WHERE id = $1`, id,
	).Scan(&prompt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get prompt %d: %w", id, err)
	}
	return prompt, nil
}

// SetPrompt overwrites the stored persona prompt for the user.
// Returns [ErrNotFound] when the user does not exist. The new prompt only
// affects conversation handles created after this call.
func (s *Store) SetPrompt(ctx context.Context, id int64, prompt string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET prompt = $2 WHERE id = $1`, id, prompt,
	)
	if err != nil {
		return fmt.Errorf("store: set prompt %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
