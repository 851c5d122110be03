package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/password"
)

// ErrPasswordReused is returned by Assess and Set when the candidate matches
// one of the remembered hashes. It matches goRecover.ErrPolicyViolation.
var ErrPasswordReused = fmt.Errorf("%w: password was used recently", goRecover.ErrPolicyViolation)

// PasswordOptions tunes the password store.
type PasswordOptions struct {
	// HistorySize is how many previous hashes are kept for reuse checks.
	// Zero disables reuse checks.
	HistorySize int
	// MaxAge sets ExpiresAt relative to the change time. Zero means the
	// credential never expires.
	MaxAge time.Duration
}

// PasswordStore implements goRecover.PasswordStore with Argon2id hashes.
type PasswordStore struct {
	*Repository
	hasher *password.Argon2
	opts   PasswordOptions
}

// NewPasswordStore creates a PasswordStore.
func NewPasswordStore(repo *Repository, hasher *password.Argon2, opts PasswordOptions) *PasswordStore {
	if opts.HistorySize < 0 {
		opts.HistorySize = 0
	}
	return &PasswordStore{Repository: repo, hasher: hasher, opts: opts}
}

type passwordRow struct {
	EmployeeID  string `db:"employee_id"`
	Hash        string `db:"hash"`
	Locked      bool   `db:"locked"`
	LastChanged int64  `db:"last_changed"`
	ExpiresAt   int64  `db:"expires_at"`
}

func (r passwordRow) meta() goRecover.PasswordMeta {
	return goRecover.PasswordMeta{
		LastChanged: unixOrZero(r.LastChanged),
		ExpiresAt:   unixOrZero(r.ExpiresAt),
	}
}

// IsLocked reports the administrative lock flag. Users without a stored
// credential are not locked.
func (s *PasswordStore) IsLocked(ctx context.Context, employeeID string) (bool, error) {
	var locked bool
	err := s.db.GetContext(ctx, &locked, s.db.Rebind(`SELECT locked FROM passwords WHERE employee_id = ?`), employeeID)
	if err != nil {
		if errors.Is(wrapError(err), ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return locked, nil
}

// SetLocked sets the administrative lock flag.
func (s *PasswordStore) SetLocked(ctx context.Context, employeeID string, locked bool) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE passwords SET locked = ? WHERE employee_id = ?`), locked, employeeID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMeta returns the change and expiry times of the stored credential.
func (s *PasswordStore) GetMeta(ctx context.Context, employeeID string) (goRecover.PasswordMeta, error) {
	var row passwordRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT employee_id, hash, locked, last_changed, expires_at
		FROM passwords WHERE employee_id = ?`), employeeID)
	if err != nil {
		return goRecover.PasswordMeta{}, wrapError(err)
	}
	return row.meta(), nil
}

// Assess rejects candidates found in the password history.
func (s *PasswordStore) Assess(ctx context.Context, employeeID, candidate string) error {
	return s.checkReuse(ctx, s.db, employeeID, candidate)
}

// Verify checks candidate against the stored credential.
func (s *PasswordStore) Verify(ctx context.Context, employeeID, candidate string) (bool, error) {
	var hash string
	err := s.db.GetContext(ctx, &hash, s.db.Rebind(`SELECT hash FROM passwords WHERE employee_id = ?`), employeeID)
	if err != nil {
		return false, wrapError(err)
	}
	return s.hasher.Verify(candidate, hash)
}

// Set stores a new credential, remembers its hash and trims the history.
func (s *PasswordStore) Set(ctx context.Context, employeeID, newPassword string) (goRecover.PasswordMeta, error) {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return goRecover.PasswordMeta{}, err
	}

	now := s.now().UTC()
	row := passwordRow{
		EmployeeID:  employeeID,
		Hash:        hash,
		LastChanged: now.Unix(),
	}
	if s.opts.MaxAge > 0 {
		row.ExpiresAt = now.Add(s.opts.MaxAge).Unix()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return goRecover.PasswordMeta{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.checkReuse(ctx, tx, employeeID, newPassword); err != nil {
		return goRecover.PasswordMeta{}, err
	}

	_, err = tx.NamedExecContext(ctx, `INSERT INTO passwords (employee_id, hash, locked, last_changed, expires_at)
		VALUES (:employee_id, :hash, :locked, :last_changed, :expires_at)
		ON CONFLICT (employee_id) DO UPDATE SET
			hash = excluded.hash, last_changed = excluded.last_changed, expires_at = excluded.expires_at`, row)
	if err != nil {
		return goRecover.PasswordMeta{}, err
	}

	if s.opts.HistorySize > 0 {
		_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO password_history (employee_id, hash, changed_at) VALUES (?, ?, ?)`),
			employeeID, hash, row.LastChanged)
		if err != nil {
			return goRecover.PasswordMeta{}, err
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM password_history WHERE employee_id = ? AND changed_at < (
			SELECT min(changed_at) FROM (
				SELECT changed_at FROM password_history WHERE employee_id = ?
				ORDER BY changed_at DESC LIMIT ?
			) recent)`), employeeID, employeeID, s.opts.HistorySize)
		if err != nil {
			return goRecover.PasswordMeta{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return goRecover.PasswordMeta{}, err
	}
	return row.meta(), nil
}

func (s *PasswordStore) checkReuse(ctx context.Context, q sqlx.ExtContext, employeeID, candidate string) error {
	if s.opts.HistorySize == 0 {
		return nil
	}

	var hashes []string
	err := sqlx.SelectContext(ctx, q, &hashes, q.Rebind(`SELECT hash FROM password_history
		WHERE employee_id = ? ORDER BY changed_at DESC LIMIT ?`), employeeID, s.opts.HistorySize)
	if err != nil {
		return err
	}

	reused, err := s.hasher.MatchesAny(candidate, hashes)
	if err != nil {
		return err
	}
	if reused {
		return ErrPasswordReused
	}
	return nil
}
