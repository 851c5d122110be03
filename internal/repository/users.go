package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	goRecover "github.com/MrEthical07/goRecover"
)

type userRow struct {
	ID              string `db:"id"`
	UUID            string `db:"uuid"`
	EmployeeID      string `db:"employee_id"`
	Username        string `db:"username"`
	Email           string `db:"email"`
	FirstName       string `db:"first_name"`
	LastName        string `db:"last_name"`
	DisplayName     string `db:"display_name"`
	SupervisorEmail string `db:"supervisor_email"`
	Hidden          bool   `db:"hidden"`
	CreatedAt       int64  `db:"created_at"`
	UpdatedAt       int64  `db:"updated_at"`
}

func (r userRow) user() goRecover.User {
	return goRecover.User{
		ID:              r.ID,
		UUID:            r.UUID,
		EmployeeID:      r.EmployeeID,
		Username:        r.Username,
		Email:           r.Email,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		DisplayName:     r.DisplayName,
		SupervisorEmail: r.SupervisorEmail,
		Hidden:          r.Hidden,
	}
}

const userColumns = `id, uuid, employee_id, username, email, first_name, last_name,
	display_name, supervisor_email, hidden, created_at, updated_at`

// UserStore implements goRecover.UserStore.
type UserStore struct {
	*Repository
}

// NewUserStore creates a UserStore.
func NewUserStore(repo *Repository) *UserStore {
	return &UserStore{Repository: repo}
}

// FindByEmployeeID retrieves a user by employee id.
func (s *UserStore) FindByEmployeeID(ctx context.Context, employeeID string) (goRecover.User, error) {
	return s.findOne(ctx, "employee_id", employeeID)
}

// FindByUUID retrieves a user by public uuid.
func (s *UserStore) FindByUUID(ctx context.Context, id string) (goRecover.User, error) {
	return s.findOne(ctx, "uuid", id)
}

func (s *UserStore) findOne(ctx context.Context, column, value string) (goRecover.User, error) {
	var row userRow
	query := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`)
	if err := s.db.GetContext(ctx, &row, query, value); err != nil {
		return goRecover.User{}, wrapError(err)
	}
	return row.user(), nil
}

// Save inserts the user when no row with its employee id exists and updates
// the profile otherwise. Missing ID and UUID are generated on insert.
func (s *UserStore) Save(ctx context.Context, user goRecover.User) (goRecover.User, error) {
	now := s.now().Unix()

	existing, err := s.FindByEmployeeID(ctx, user.EmployeeID)
	switch {
	case errors.Is(err, ErrNotFound):
		if user.ID == "" {
			user.ID = uuid.NewString()
		}
		if user.UUID == "" {
			user.UUID = uuid.NewString()
		}
		row := toUserRow(user)
		row.CreatedAt = now
		row.UpdatedAt = now
		_, err = s.db.NamedExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (
			:id, :uuid, :employee_id, :username, :email, :first_name, :last_name,
			:display_name, :supervisor_email, :hidden, :created_at, :updated_at)`, row)
		if err != nil {
			return goRecover.User{}, err
		}
		return user, nil
	case err != nil:
		return goRecover.User{}, err
	}

	user.ID = existing.ID
	user.UUID = existing.UUID
	row := toUserRow(user)
	row.UpdatedAt = now
	_, err = s.db.NamedExecContext(ctx, `UPDATE users SET
		username = :username, email = :email, first_name = :first_name,
		last_name = :last_name, display_name = :display_name,
		supervisor_email = :supervisor_email, hidden = :hidden, updated_at = :updated_at
		WHERE employee_id = :employee_id`, row)
	if err != nil {
		return goRecover.User{}, err
	}
	return user, nil
}

// CountUsers returns the number of provisioned users.
func (s *UserStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT count(*) FROM users`); err != nil {
		return 0, err
	}
	return count, nil
}

func toUserRow(u goRecover.User) userRow {
	return userRow{
		ID:              u.ID,
		UUID:            u.UUID,
		EmployeeID:      u.EmployeeID,
		Username:        u.Username,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		DisplayName:     u.DisplayName,
		SupervisorEmail: u.SupervisorEmail,
		Hidden:          u.Hidden,
	}
}
