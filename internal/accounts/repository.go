// Package accounts reads the relational user store.
package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return NewRepositoryFromDB(db), nil
}

func NewRepositoryFromDB(db *sql.DB) *Repository { return &Repository{db: db} }

func (r *Repository) Close() error {
	if r == nil || r.db == nil { return nil }
	return r.db.Close()
}

// UserExists reports whether a users row with the given id exists.
// Ids that are not UUIDs never match.
func (r *Repository) UserExists(ctx context.Context, userID string) (bool, error) {
	if r == nil || r.db == nil { return false, fmt.Errorf("accounts repository not initialized") }
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil { return false, nil }
	var exists bool
	const q = `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`
	if err := r.db.QueryRowContext(ctx, q, id.String()).Scan(&exists); err != nil {
		return false, fmt.Errorf("query user %s: %w", id, err)
	}
	return exists, nil
}
