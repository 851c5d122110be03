package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	goRecover "github.com/MrEthical07/goRecover"
)

// ErrNoDeviceSender is returned by Deliver when no sender handles the
// method's type.
var ErrNoDeviceSender = errors.New("repository: no sender for mfa method type")

// DeviceSender delivers a code to a non-email MFA method.
type DeviceSender interface {
	Send(ctx context.Context, method goRecover.MfaMethod, code string) error
}

// MethodStore implements goRecover.MfaGateway over the mfa_methods table.
// Email methods are delivered by the engine's mailer. Other types are only
// listed when a sender is registered for them.
type MethodStore struct {
	*Repository
	senders map[string]DeviceSender
}

// NewMethodStore creates a MethodStore.
func NewMethodStore(repo *Repository) *MethodStore {
	return &MethodStore{Repository: repo, senders: map[string]DeviceSender{}}
}

// WithSender registers sender for methods of the given type.
func (s *MethodStore) WithSender(methodType string, sender DeviceSender) *MethodStore {
	if sender != nil {
		s.senders[strings.ToLower(methodType)] = sender
	}
	return s
}

type methodRow struct {
	ID         string `db:"id"`
	EmployeeID string `db:"employee_id"`
	Type       string `db:"type"`
	Value      string `db:"value"`
	Verified   bool   `db:"verified"`
	CreatedAt  int64  `db:"created_at"`
}

// Add registers a method and returns it with its generated id.
func (s *MethodStore) Add(ctx context.Context, employeeID string, method goRecover.MfaMethod) (goRecover.MfaMethod, error) {
	if method.ID == "" {
		method.ID = uuid.NewString()
	}
	row := methodRow{
		ID:         method.ID,
		EmployeeID: employeeID,
		Type:       strings.ToLower(method.Type),
		Value:      method.Value,
		Verified:   method.Verified,
		CreatedAt:  s.now().Unix(),
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO mfa_methods (id, employee_id, type, value, verified, created_at)
		VALUES (:id, :employee_id, :type, :value, :verified, :created_at)`, row)
	if err != nil {
		return goRecover.MfaMethod{}, err
	}
	method.Type = row.Type
	return method, nil
}

// MarkVerified flags a method as verified.
func (s *MethodStore) MarkVerified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE mfa_methods SET verified = ? WHERE id = ?`), true, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListVerified returns the user's verified, deliverable methods in
// registration order.
func (s *MethodStore) ListVerified(ctx context.Context, employeeID string) ([]goRecover.MfaMethod, error) {
	var rows []methodRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT id, employee_id, type, value, verified, created_at
		FROM mfa_methods WHERE employee_id = ? AND verified = ? ORDER BY created_at, id`), employeeID, true)
	if err != nil {
		return nil, err
	}

	out := make([]goRecover.MfaMethod, 0, len(rows))
	for _, row := range rows {
		if row.Type != "email" && s.senders[row.Type] == nil {
			continue
		}
		out = append(out, goRecover.MfaMethod{
			ID:       row.ID,
			Type:     row.Type,
			Value:    row.Value,
			Verified: row.Verified,
		})
	}
	return out, nil
}

// Deliver hands code to the sender registered for the method's type.
func (s *MethodStore) Deliver(ctx context.Context, method goRecover.MfaMethod, code string) error {
	sender := s.senders[strings.ToLower(method.Type)]
	if sender == nil {
		return ErrNoDeviceSender
	}
	return sender.Send(ctx, method, code)
}
