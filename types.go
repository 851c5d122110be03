package goRecover

import (
	"context"
	"fmt"
	"time"
)

// RecoveryType is the delivery channel of a recovery.
type RecoveryType uint8

const (
	// RecoveryTypeNone means no channel has been chosen.
	RecoveryTypeNone RecoveryType = iota
	// RecoveryEmail delivers to the user's primary address.
	RecoveryEmail
	// RecoverySupervisor delivers to the supervisor and copies the primary address.
	RecoverySupervisor
	// RecoveryMFA delivers to a verified MFA method selected by id.
	RecoveryMFA
)

var recoveryTypeNames = [...]string{
	RecoveryTypeNone:   "",
	RecoveryEmail:      "primary",
	RecoverySupervisor: "supervisor",
	RecoveryMFA:        "method",
}

func (t RecoveryType) String() string {
	if int(t) < len(recoveryTypeNames) {
		return recoveryTypeNames[t]
	}
	return fmt.Sprintf("RecoveryType(%d)", uint8(t))
}

func (t RecoveryType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *RecoveryType) UnmarshalText(text []byte) error {
	parsed, err := ParseRecoveryType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseRecoveryType maps the wire names "primary", "supervisor" and "method".
// Unknown names fail with ErrMethodUnavailable.
func ParseRecoveryType(s string) (RecoveryType, error) {
	for i, name := range recoveryTypeNames {
		if i > 0 && name == s {
			return RecoveryType(i), nil
		}
	}
	if s == "" {
		return RecoveryTypeNone, nil
	}
	return RecoveryTypeNone, ErrMethodUnavailable
}

// User is the locally provisioned copy of a directory account.
type User struct {
	ID              string
	UUID            string
	EmployeeID      string
	Username        string
	Email           string
	FirstName       string
	LastName        string
	DisplayName     string
	SupervisorEmail string
	Hidden          bool
}

// DirectoryUser is a personnel record as returned by the directory.
type DirectoryUser struct {
	EmployeeID      string
	Username        string
	Email           string
	FirstName       string
	LastName        string
	DisplayName     string
	SupervisorEmail string
	Hidden          bool
}

// DirectoryLookup resolves personnel records. Implementations return an
// error matching ErrNotFound when no record exists.
type DirectoryLookup interface {
	FindUser(ctx context.Context, username, email string) (DirectoryUser, error)
}

// UserStore persists local users keyed by employee id.
type UserStore interface {
	FindByEmployeeID(ctx context.Context, employeeID string) (User, error)
	FindByUUID(ctx context.Context, uuid string) (User, error)
	Save(ctx context.Context, user User) (User, error)
}

// PasswordMeta describes the stored credential.
type PasswordMeta struct {
	LastChanged time.Time
	ExpiresAt   time.Time
}

// PasswordStore is the credential backend. Assess returns an error matching
// ErrPolicyViolation when the backend rejects a candidate (for example on
// reuse); any other error is treated as an outage.
type PasswordStore interface {
	IsLocked(ctx context.Context, employeeID string) (bool, error)
	Set(ctx context.Context, employeeID, password string) (PasswordMeta, error)
	GetMeta(ctx context.Context, employeeID string) (PasswordMeta, error)
	Assess(ctx context.Context, employeeID, password string) error
}

// Message is an outbound email.
type Message struct {
	To       string
	Cc       []string
	Subject  string
	TextBody string
	HTMLBody string
}

// Mailer sends email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MfaMethod is a registered second factor. Methods whose Type is "email" are
// delivered by the Mailer; every other type goes through MfaGateway.Deliver.
type MfaMethod struct {
	ID       string
	Type     string
	Value    string
	Verified bool
}

// MfaGateway lists a user's MFA methods and delivers codes to non-email ones.
type MfaGateway interface {
	ListVerified(ctx context.Context, employeeID string) ([]MfaMethod, error)
	Deliver(ctx context.Context, method MfaMethod, code string) error
}

// Credential is issued once after a successful validation.
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// CredentialIssuer mints the reset-scoped credential.
type CredentialIssuer interface {
	Issue(ctx context.Context, user User) (Credential, error)
}

// CreateRecoveryRequest names the account to recover. Exactly one of
// Username and Email must be set.
type CreateRecoveryRequest struct {
	Username string
	Email    string
}

// Method is one selectable channel as shown to the user.
type Method struct {
	Type   RecoveryType `json:"type"`
	ID     string       `json:"id,omitempty"`
	Masked string       `json:"name"`
}

// Recovery is the public view of a recovery. It never carries code material.
type Recovery struct {
	UID       string       `json:"uid"`
	Type      RecoveryType `json:"type"`
	MethodID  string       `json:"id,omitempty"`
	Masked    string       `json:"masked,omitempty"`
	Methods   []Method     `json:"methods"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// ValidationResult is returned by a successful ValidateRecovery.
type ValidationResult struct {
	User       User
	Credential Credential
}
