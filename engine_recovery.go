package goRecover

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goRecover/internal"
	internalaudit "github.com/MrEthical07/goRecover/internal/audit"
	internalflows "github.com/MrEthical07/goRecover/internal/flows"
	"github.com/MrEthical07/goRecover/internal/limiters"
	"github.com/MrEthical07/goRecover/internal/notify"
	"github.com/MrEthical07/goRecover/internal/selector"
	"github.com/MrEthical07/goRecover/internal/stores"
	"github.com/google/uuid"
)

// CreateRecovery starts or continues a recovery for the account named by req.
//
// A pending recovery is re-delivered with its outstanding code; an expired one
// is restarted with a new code. Hidden accounts always end in ErrNotFound,
// whether or not they exist, are locked, or received a code.
func (e *Engine) CreateRecovery(ctx context.Context, req CreateRecoveryRequest) (*Recovery, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	state, err := internalflows.RunCreateRecovery(ctx, req.Username, req.Email, e.flows.Recovery)
	if err != nil {
		return nil, err
	}
	return recoveryView(state), nil
}

// GetRecovery describes the getrecovery operation and its observable behavior.
//
// GetRecovery returns ErrNotFound for unknown or consumed recoveries.
// GetRecovery does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) GetRecovery(ctx context.Context, uid string) (*Recovery, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	state, err := internalflows.RunGetRecovery(ctx, uid, e.flows.Recovery)
	if err != nil {
		return nil, err
	}
	return recoveryView(state), nil
}

// SetRecoveryMethod switches the delivery channel and sends a new code to
// it. The attempt counter carries over.
func (e *Engine) SetRecoveryMethod(ctx context.Context, uid string, recoveryType RecoveryType, methodID string) (*Recovery, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if recoveryType > RecoveryMFA {
		return nil, ErrMethodUnavailable
	}
	state, err := internalflows.RunSetRecoveryMethod(ctx, uid, uint8(recoveryType), methodID, e.flows.Recovery)
	if err != nil {
		return nil, err
	}
	return recoveryView(state), nil
}

// ResendRecovery mints and delivers a new code on the current channel. Every
// earlier code stops working.
func (e *Engine) ResendRecovery(ctx context.Context, uid string) (*Recovery, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	state, err := internalflows.RunResendRecovery(ctx, uid, e.flows.Recovery)
	if err != nil {
		return nil, err
	}
	return recoveryView(state), nil
}

// ValidateRecovery checks a submitted code.
//
// On success the recovery is consumed, the verification event is recorded and
// only then is a credential issued. A correct code submitted after expiry
// restarts the recovery, delivers a new code and returns ErrExpired.
func (e *Engine) ValidateRecovery(ctx context.Context, uid, code string) (*ValidationResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	validated, err := internalflows.RunValidateRecovery(ctx, uid, code, e.flows.Recovery)
	if err != nil {
		return nil, err
	}
	return &ValidationResult{
		User: fromFlowUser(validated.User),
		Credential: Credential{
			AccessToken: validated.Grant,
			ExpiresAt:   validated.ExpiresAt,
		},
	}, nil
}

func recoveryView(state internalflows.RecoveryState) *Recovery {
	record := state.Record
	view := &Recovery{
		UID:       record.UID,
		Type:      RecoveryType(record.Type),
		MethodID:  record.MethodID,
		Masked:    record.Masked,
		Methods:   make([]Method, 0, len(state.Methods)),
		ExpiresAt: time.Unix(record.ExpiresAt, 0).UTC(),
	}
	if state.Current.Kind != selector.KindNone {
		view.Masked = state.Current.Masked
	}
	for _, m := range state.Methods {
		view.Methods = append(view.Methods, Method{
			Type:   RecoveryType(m.Kind),
			ID:     m.ID,
			Masked: m.Masked,
		})
	}
	return view
}

func (e *Engine) recoveryFlowDeps() internalflows.RecoveryDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.RecoveryDeps{
		CodeTTL:             cfg.Recovery.CodeTTL,
		Guard:               limiters.NewAttemptGuard(cfg.Recovery.MaxAttempts),
		Now:                 time.Now,
		NewUID:              uuid.NewString,
		ClientIPFromContext: clientIPFromContext,
		MapLimiterError:     mapRecoveryLimiterError,
		DigestCode:          internal.DigestCode,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		ObserveLatency: func(id int, d time.Duration) {
			e.metricObserve(MetricID(id), d)
		},
		Metrics: internalflows.RecoveryMetrics{
			Created:         int(MetricRecoveryCreated),
			Redelivered:     int(MetricRecoveryRedelivered),
			Restarted:       int(MetricRecoveryRestarted),
			NotFound:        int(MetricRecoveryNotFound),
			AccountLocked:   int(MetricRecoveryAccountLocked),
			MethodChanged:   int(MetricRecoveryMethodChanged),
			Resent:          int(MetricRecoveryResent),
			Delivered:       int(MetricRecoveryDelivered),
			DeliveryFailure: int(MetricRecoveryDeliveryFailure),
			ValidateSuccess: int(MetricRecoveryValidateSuccess),
			ValidateFailure: int(MetricRecoveryValidateFailure),
			Expired:         int(MetricRecoveryExpired),
			LockedOut:       int(MetricRecoveryLockedOut),
			RateLimitHit:    int(MetricRateLimitHit),
			UpstreamFailure: int(MetricUpstreamFailure),
			ValidateLatency: int(MetricValidateLatency),
		},
		Events: internalflows.RecoveryEvents{
			VerificationSuccessful: EventVerificationSuccessful,
			VerificationFailed:     EventVerificationFailed,
		},
		Errors: internalflows.RecoveryErrors{
			EngineNotReady:      ErrEngineNotReady,
			NotFound:            ErrNotFound,
			AccountLocked:       ErrAccountLocked,
			InvalidInput:        ErrInvalidInput,
			MethodUnavailable:   ErrMethodUnavailable,
			RateLimited:         ErrRateLimited,
			InvalidCode:         ErrInvalidCode,
			Expired:             ErrExpired,
			UpstreamUnavailable: ErrUpstreamUnavailable,
		},
	}

	if e == nil {
		return deps
	}

	deps.Logger = e.logger
	deps.Guard = e.guard
	if e.now != nil {
		deps.Now = e.now
	}
	deps.MapStoreError = func(err error) error {
		mapped := mapRecoveryStoreError(err)
		if errors.Is(mapped, ErrUpstreamUnavailable) {
			e.metricInc(MetricUpstreamFailure)
			e.logger.Error("recovery store", "error", err)
		}
		return mapped
	}

	if e.throttle != nil {
		deps.CheckCreateThrottle = e.throttle.CheckCreate
		deps.CheckResendThrottle = e.throttle.CheckResend
	}
	if e.store != nil {
		deps.OpenRecord = e.store.Open
		deps.GetRecord = e.store.Get
		deps.ReissueRecord = e.store.Reissue
		deps.VerifyRecord = e.store.Verify
	}
	if e.sealer != nil {
		deps.MintCode = e.mintRecoveryCode
		deps.OpenCode = e.sealer.Open
	}
	if e.directory != nil && e.users != nil {
		deps.ResolveUser = e.resolveRecoveryUser
	}
	if e.users != nil {
		deps.GetUser = func(ctx context.Context, userUUID string) (internalflows.RecoveryUser, error) {
			user, err := e.findUserByUUID(ctx, userUUID)
			if err != nil {
				return internalflows.RecoveryUser{}, err
			}
			return toFlowUser(user), nil
		}
	}
	if e.passwords != nil {
		deps.IsLocked = e.isPasswordLocked
	}
	if e.mfa != nil {
		deps.ListDevices = e.listRecoveryDevices
	}
	if e.mailer != nil && e.renderer != nil {
		deps.Deliver = e.deliverRecoveryCode
	}
	if e.events != nil {
		deps.RecordEvent = e.recordRecoveryEvent
	}
	if e.mirror != nil {
		deps.MirrorEvent = func(ctx context.Context, eventType string, record *stores.RecoveryRecord, ip string) {
			e.mirror.Emit(ctx, internalaudit.Event(e.recoveryEvent(eventType, record, ip)))
		}
	}
	if e.issuer != nil {
		deps.IssueGrant = func(ctx context.Context, u internalflows.RecoveryUser) (string, time.Time, error) {
			var cred Credential
			err := e.upstream(ctx, func(ctx context.Context) error {
				var err error
				cred, err = e.issuer.Issue(ctx, fromFlowUser(u))
				return err
			})
			return cred.AccessToken, cred.ExpiresAt, err
		}
	}

	return deps
}

func (e *Engine) mintRecoveryCode(uid string) (string, stores.RecoveryCode, error) {
	code, err := internal.NewOTP(e.config.Recovery.CodeDigits)
	if err != nil {
		return "", stores.RecoveryCode{}, err
	}
	salt, err := internal.NewCodeSalt()
	if err != nil {
		return "", stores.RecoveryCode{}, err
	}
	sealed, err := e.sealer.Seal(uid, code)
	if err != nil {
		return "", stores.RecoveryCode{}, err
	}
	return code, stores.RecoveryCode{
		Salt:   salt,
		Hash:   internal.DigestCode(salt, code),
		Sealed: sealed,
	}, nil
}

// resolveRecoveryUser looks the account up in the directory and provisions
// or refreshes the local copy.
func (e *Engine) resolveRecoveryUser(ctx context.Context, username, email string) (internalflows.RecoveryUser, error) {
	var found DirectoryUser
	err := e.upstream(ctx, func(ctx context.Context) error {
		var err error
		found, err = e.directory.FindUser(ctx, username, email)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return internalflows.RecoveryUser{}, ErrNotFound
		}
		return internalflows.RecoveryUser{}, e.upstreamFailure(ctx, "directory lookup", err, "username", username, "email", email)
	}

	var local User
	err = e.upstream(ctx, func(ctx context.Context) error {
		var err error
		local, err = e.users.FindByEmployeeID(ctx, found.EmployeeID)
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		local = User{UUID: uuid.NewString()}
	case err != nil:
		return internalflows.RecoveryUser{}, e.upstreamFailure(ctx, "find local user", err, "employee_id", found.EmployeeID)
	}

	refreshed := applyDirectoryProfile(local, found)
	if refreshed != local {
		err = e.upstream(ctx, func(ctx context.Context) error {
			var err error
			refreshed, err = e.users.Save(ctx, refreshed)
			return err
		})
		if err != nil {
			return internalflows.RecoveryUser{}, e.upstreamFailure(ctx, "save local user", err, "employee_id", found.EmployeeID)
		}
	}

	return toFlowUser(refreshed), nil
}

func applyDirectoryProfile(u User, d DirectoryUser) User {
	u.EmployeeID = d.EmployeeID
	u.Username = d.Username
	u.Email = d.Email
	u.FirstName = d.FirstName
	u.LastName = d.LastName
	u.DisplayName = d.DisplayName
	u.SupervisorEmail = d.SupervisorEmail
	u.Hidden = d.Hidden
	return u
}

func (e *Engine) isPasswordLocked(ctx context.Context, employeeID string) (bool, error) {
	var locked bool
	err := e.upstream(ctx, func(ctx context.Context) error {
		var err error
		locked, err = e.passwords.IsLocked(ctx, employeeID)
		return err
	})
	if err != nil {
		return false, e.upstreamFailure(ctx, "password store lock status", err, "employee_id", employeeID)
	}
	return locked, nil
}

func (e *Engine) listRecoveryDevices(ctx context.Context, u internalflows.RecoveryUser) ([]selector.Device, error) {
	var methods []MfaMethod
	err := e.upstream(ctx, func(ctx context.Context) error {
		var err error
		methods, err = e.mfa.ListVerified(ctx, u.EmployeeID)
		return err
	})
	if err != nil {
		return nil, e.upstreamFailure(ctx, "list mfa methods", err, "employee_id", u.EmployeeID)
	}

	devices := make([]selector.Device, 0, len(methods))
	for _, m := range methods {
		devices = append(devices, selector.Device{
			ID:       m.ID,
			Kind:     m.Type,
			Value:    m.Value,
			Verified: m.Verified,
		})
	}
	return devices, nil
}

// deliverRecoveryCode routes a code to its channel. Supervisor mail copies the
// user's primary address; email-type MFA methods go through the mailer.
func (e *Engine) deliverRecoveryCode(ctx context.Context, d internalflows.Delivery) error {
	data := notify.Data{
		Name: displayName(d.User),
		Code: d.Code,
		Link: strings.ReplaceAll(e.config.Recovery.ResetURL, "{uid}", d.Record.UID),
		TTL:  e.config.Recovery.CodeTTL,
	}
	locale := localeFromContext(ctx)

	var msg Message
	audience := notify.AudienceUser
	switch {
	case d.Method.Kind == selector.KindSupervisor:
		audience = notify.AudienceSupervisor
		if d.User.Email != "" {
			msg.Cc = []string{d.User.Email}
		}
	case d.Method.Kind == selector.KindMFA && d.Method.DeviceKind != "email":
		audience = notify.AudienceDevice
	}

	rendered, err := e.renderer.Render(locale, audience, data)
	if err != nil {
		return e.upstreamFailure(ctx, "render recovery message", err, "reset_id", d.Record.ID)
	}

	if audience == notify.AudienceDevice {
		if e.mfa == nil {
			return ErrMethodUnavailable
		}
		err = e.upstream(ctx, func(ctx context.Context) error {
			return e.mfa.Deliver(ctx, MfaMethod{
				ID:       d.Method.ID,
				Type:     d.Method.DeviceKind,
				Value:    d.Method.Destination,
				Verified: true,
			}, d.Code)
		})
		if err != nil {
			return e.upstreamFailure(ctx, "deliver mfa code", err, "reset_id", d.Record.ID, "method", d.Method.ID)
		}
		return nil
	}

	msg.To = d.Method.Destination
	msg.Subject = rendered.Subject
	msg.TextBody = rendered.Text
	msg.HTMLBody = rendered.HTML

	err = e.upstream(ctx, func(ctx context.Context) error {
		return e.mailer.Send(ctx, msg)
	})
	if err != nil {
		return e.upstreamFailure(ctx, "send recovery email", err, "reset_id", d.Record.ID, "method_value", d.Method.Masked)
	}
	return nil
}

func (e *Engine) recordRecoveryEvent(ctx context.Context, eventType string, record *stores.RecoveryRecord, ip string) error {
	event := e.recoveryEvent(eventType, record, ip)
	return e.upstream(ctx, func(ctx context.Context) error {
		return e.events.Record(ctx, event)
	})
}

func (e *Engine) recoveryEvent(eventType string, record *stores.RecoveryRecord, ip string) RecoveryEvent {
	now := time.Now
	if e.now != nil {
		now = e.now
	}
	return RecoveryEvent{
		Timestamp:   now().UTC(),
		EventType:   eventType,
		RecoveryUID: record.UID,
		RecoveryID:  record.ID,
		UserID:      record.UserID,
		Type:        RecoveryType(record.Type).String(),
		Attempts:    int(record.Attempts),
		Destination: record.Masked,
		IP:          ip,
	}
}

func displayName(u internalflows.RecoveryUser) string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.FirstName != "":
		return strings.TrimSpace(u.FirstName + " " + u.LastName)
	default:
		return u.Username
	}
}

func toFlowUser(u User) internalflows.RecoveryUser {
	return internalflows.RecoveryUser{
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

func fromFlowUser(u internalflows.RecoveryUser) User {
	return User(u)
}

func mapRecoveryStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrRecoveryNotFound):
		return ErrNotFound
	case errors.Is(err, stores.ErrRecoveryLocked), errors.Is(err, stores.ErrRecoveryConflict):
		return ErrRateLimited
	case errors.Is(err, stores.ErrRecoveryCodeMismatch):
		return ErrInvalidCode
	case errors.Is(err, stores.ErrRecoveryExpired):
		return ErrExpired
	default:
		return ErrUpstreamUnavailable
	}
}

func mapRecoveryLimiterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrRecoveryRateLimited):
		return ErrRateLimited
	default:
		return ErrUpstreamUnavailable
	}
}
