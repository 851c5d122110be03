// Package repository implements the local user, password and MFA method
// stores on top of sqlx.
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	goRecover "github.com/MrEthical07/goRecover"
)

// ErrNotFound matches goRecover.ErrNotFound.
var ErrNotFound = fmt.Errorf("repository: %w", goRecover.ErrNotFound)

// Repository wraps the database handle shared by the stores.
type Repository struct {
	db  *sqlx.DB
	now func() time.Time
}

// New creates a Repository.
func New(db *sqlx.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// DB returns the underlying handle for direct access.
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

// WithClock replaces the time source used for timestamps.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	if now != nil {
		r.now = now
	}
	return r
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
