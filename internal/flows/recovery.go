package flows

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goRecover/internal/limiters"
	"github.com/MrEthical07/goRecover/internal/selector"
	"github.com/MrEthical07/goRecover/internal/stores"
)

// RecoveryUser is the local user as the workflow sees it. UUID is the owner
// key of the recovery record.
type RecoveryUser struct {
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

func (u RecoveryUser) contact() selector.Contact {
	return selector.Contact{Email: u.Email, SupervisorEmail: u.SupervisorEmail}
}

// RecoveryState is what the engine needs to render the public view.
type RecoveryState struct {
	Record  *stores.RecoveryRecord
	User    RecoveryUser
	Methods []selector.Method
	Current selector.Method
}

// Delivery is one outbound code.
type Delivery struct {
	Record *stores.RecoveryRecord
	User   RecoveryUser
	Method selector.Method
	Code   string
}

type RecoveryMetrics struct {
	Created         int
	Redelivered     int
	Restarted       int
	NotFound        int
	AccountLocked   int
	MethodChanged   int
	Resent          int
	Delivered       int
	DeliveryFailure int
	ValidateSuccess int
	ValidateFailure int
	Expired         int
	LockedOut       int
	RateLimitHit    int
	UpstreamFailure int
	ValidateLatency int
}

type RecoveryEvents struct {
	VerificationSuccessful string
	VerificationFailed     string
}

type RecoveryErrors struct {
	EngineNotReady      error
	NotFound            error
	AccountLocked       error
	InvalidInput        error
	MethodUnavailable   error
	RateLimited         error
	InvalidCode         error
	Expired             error
	UpstreamUnavailable error
}

type RecoveryDeps struct {
	CodeTTL time.Duration
	Guard   limiters.AttemptGuard
	Logger  *slog.Logger

	Now                 func() time.Time
	NewUID              func() string
	ClientIPFromContext func(context.Context) string

	CheckCreateThrottle func(context.Context, string, string) error
	CheckResendThrottle func(context.Context, string, string) error
	MapLimiterError     func(error) error
	MapStoreError       func(error) error

	ResolveUser    func(context.Context, string, string) (RecoveryUser, error)
	GetUser        func(context.Context, string) (RecoveryUser, error)
	IsLocked       func(context.Context, string) (bool, error)
	ListDevices    func(context.Context, RecoveryUser) ([]selector.Device, error)
	Deliver        func(context.Context, Delivery) error
	RecordEvent    func(context.Context, string, *stores.RecoveryRecord, string) error
	IssueGrant     func(context.Context, RecoveryUser) (string, time.Time, error)
	MirrorEvent    func(context.Context, string, *stores.RecoveryRecord, string)
	ObserveLatency func(int, time.Duration)

	OpenRecord    func(context.Context, stores.OpenRequest, limiters.AttemptGuard, stores.MintFunc) (*stores.RecoveryRecord, stores.OpenOutcome, error)
	GetRecord     func(context.Context, string) (*stores.RecoveryRecord, error)
	ReissueRecord func(context.Context, string, uint8, string, string, time.Time, time.Duration, limiters.AttemptGuard, stores.MintFunc) (*stores.RecoveryRecord, error)
	VerifyRecord  func(context.Context, string, func([16]byte) [32]byte, time.Time, time.Duration, limiters.AttemptGuard, stores.MintFunc) (*stores.RecoveryRecord, error)

	MintCode   func(string) (string, stores.RecoveryCode, error)
	OpenCode   func(string, []byte) (string, error)
	DigestCode func([16]byte, string) [32]byte

	MetricInc func(int)

	Metrics RecoveryMetrics
	Events  RecoveryEvents
	Errors  RecoveryErrors
}

// ValidatedRecovery is returned after the record has been consumed, the
// success event recorded and the grant issued.
type ValidatedRecovery struct {
	User      RecoveryUser
	Grant     string
	ExpiresAt time.Time
}

// codeMinter captures the plaintext of the most recently minted code. Store
// transactions may retry, so only the last value is the committed one.
type codeMinter struct {
	mint func(string) (string, stores.RecoveryCode, error)
	code string
}

func (m *codeMinter) Mint(uid string) (stores.RecoveryCode, error) {
	code, sealed, err := m.mint(uid)
	if err != nil {
		return stores.RecoveryCode{}, err
	}
	m.code = code
	return sealed, nil
}

func RunCreateRecovery(ctx context.Context, username, email string, deps RecoveryDeps) (RecoveryState, error) {
	normalizeRecoveryDeps(&deps)

	if !deps.ready() {
		return RecoveryState{}, deps.Errors.EngineNotReady
	}

	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if (username == "") == (email == "") {
		return RecoveryState{}, deps.Errors.InvalidInput
	}

	identifier := username
	if identifier == "" {
		identifier = email
	}
	ip := deps.ClientIPFromContext(ctx)

	if err := deps.CheckCreateThrottle(ctx, identifier, ip); err != nil {
		return RecoveryState{}, deps.limited(ctx, "create recovery", err, slog.String("identifier", identifier))
	}

	user, err := deps.ResolveUser(ctx, username, email)
	if err != nil {
		if errors.Is(err, deps.Errors.NotFound) {
			deps.MetricInc(deps.Metrics.NotFound)
			deps.Logger.WarnContext(ctx, "create recovery", "identifier", identifier, "status", "error", "error", "user not found")
		}
		return RecoveryState{}, err
	}

	state, err := createForUser(ctx, user, identifier, deps)
	if user.Hidden {
		// hidden accounts answer exactly like unknown identifiers, whatever
		// happened after the lookup
		if err != nil {
			deps.Logger.WarnContext(ctx, "create recovery", "identifier", identifier, "status", "error", "error", err, "hidden", true)
		}
		return RecoveryState{}, deps.Errors.NotFound
	}
	return state, err
}

func createForUser(ctx context.Context, user RecoveryUser, identifier string, deps RecoveryDeps) (RecoveryState, error) {
	locked, err := deps.IsLocked(ctx, user.EmployeeID)
	if err != nil {
		return RecoveryState{}, err
	}
	if locked {
		deps.MetricInc(deps.Metrics.AccountLocked)
		deps.Logger.WarnContext(ctx, "create recovery", "identifier", identifier, "status", "error", "error", "personnel account is locked")
		return RecoveryState{}, deps.Errors.AccountLocked
	}

	devices, err := deps.ListDevices(ctx, user)
	if err != nil {
		return RecoveryState{}, err
	}
	fallback, err := selector.Default(user.contact(), devices)
	if err != nil {
		return RecoveryState{}, deps.Errors.MethodUnavailable
	}
	methods := selector.Eligible(user.contact(), devices)

	minter := &codeMinter{mint: deps.MintCode}
	now := deps.Now()
	record, outcome, err := deps.OpenRecord(ctx, stores.OpenRequest{
		UserID:   user.UUID,
		UID:      deps.NewUID(),
		Type:     uint8(fallback.Kind),
		MethodID: fallback.ID,
		Masked:   fallback.Masked,
		Now:      now,
		TTL:      deps.CodeTTL,
	}, deps.Guard, minter.Mint)
	if err != nil {
		return RecoveryState{}, deps.mapRecordError(ctx, err)
	}

	current, chooseErr := selector.Choose(user.contact(), devices, selector.Kind(record.Type), record.MethodID)
	code := minter.code

	switch outcome {
	case stores.OpenCreated:
		deps.MetricInc(deps.Metrics.Created)
	case stores.OpenRestarted:
		deps.MetricInc(deps.Metrics.Restarted)
	case stores.OpenPending:
		if deps.Guard.IsLocked(record.Attempts) {
			deps.MetricInc(deps.Metrics.LockedOut)
			deps.Logger.WarnContext(ctx, "create recovery", "reset_id", record.ID, "status", "error", "error", "attempt limit reached")
			return RecoveryState{}, deps.Errors.RateLimited
		}

		if chooseErr == nil {
			code, err = deps.OpenCode(record.UID, record.SealedCode)
		}
		if chooseErr != nil || err != nil {
			// the outstanding code cannot be re-delivered as is; mint a new one
			// on a channel that is still eligible
			if chooseErr != nil {
				current, chooseErr = fallback, nil
			} else {
				deps.Logger.WarnContext(ctx, "create recovery", "reset_id", record.ID, "status", "error", "error", "sealed code unreadable")
			}
			record, err = deps.ReissueRecord(ctx, record.UID, uint8(current.Kind), current.ID, current.Masked, now, deps.CodeTTL, deps.Guard, minter.Mint)
			if err != nil {
				return RecoveryState{}, deps.mapRecordError(ctx, err)
			}
			code = minter.code
		}
		deps.MetricInc(deps.Metrics.Redelivered)
	}
	if chooseErr != nil {
		current = fallback
	}

	if err := deps.deliver(ctx, record, user, current, code); err != nil {
		return RecoveryState{}, err
	}

	return RecoveryState{Record: record, User: user, Methods: methods, Current: current}, nil
}

func RunGetRecovery(ctx context.Context, uid string, deps RecoveryDeps) (RecoveryState, error) {
	normalizeRecoveryDeps(&deps)

	if !deps.ready() {
		return RecoveryState{}, deps.Errors.EngineNotReady
	}

	record, user, devices, err := deps.load(ctx, uid)
	if err != nil {
		return RecoveryState{}, err
	}

	methods := selector.Eligible(user.contact(), devices)
	current, _ := selector.Choose(user.contact(), devices, selector.Kind(record.Type), record.MethodID)

	return RecoveryState{Record: record, User: user, Methods: methods, Current: current}, nil
}

func RunSetRecoveryMethod(ctx context.Context, uid string, kind uint8, methodID string, deps RecoveryDeps) (RecoveryState, error) {
	normalizeRecoveryDeps(&deps)

	if !deps.ready() {
		return RecoveryState{}, deps.Errors.EngineNotReady
	}
	if kind == uint8(selector.KindNone) {
		return RecoveryState{}, deps.Errors.InvalidInput
	}

	if err := deps.CheckResendThrottle(ctx, uid, deps.ClientIPFromContext(ctx)); err != nil {
		return RecoveryState{}, deps.limited(ctx, "update recovery", err, slog.String("reset_uid", uid))
	}

	record, user, devices, err := deps.load(ctx, uid)
	if err != nil {
		return RecoveryState{}, err
	}

	method, err := selector.Choose(user.contact(), devices, selector.Kind(kind), methodID)
	if err != nil {
		return RecoveryState{}, deps.Errors.MethodUnavailable
	}

	minter := &codeMinter{mint: deps.MintCode}
	record, err = deps.ReissueRecord(ctx, record.UID, uint8(method.Kind), method.ID, method.Masked, deps.Now(), deps.CodeTTL, deps.Guard, minter.Mint)
	if err != nil {
		return RecoveryState{}, deps.mapRecordError(ctx, err)
	}
	deps.MetricInc(deps.Metrics.MethodChanged)

	if err := deps.deliver(ctx, record, user, method, minter.code); err != nil {
		return RecoveryState{}, err
	}

	return RecoveryState{Record: record, User: user, Methods: selector.Eligible(user.contact(), devices), Current: method}, nil
}

func RunResendRecovery(ctx context.Context, uid string, deps RecoveryDeps) (RecoveryState, error) {
	normalizeRecoveryDeps(&deps)

	if !deps.ready() {
		return RecoveryState{}, deps.Errors.EngineNotReady
	}

	if err := deps.CheckResendThrottle(ctx, uid, deps.ClientIPFromContext(ctx)); err != nil {
		return RecoveryState{}, deps.limited(ctx, "resend recovery", err, slog.String("reset_uid", uid))
	}

	record, user, devices, err := deps.load(ctx, uid)
	if err != nil {
		return RecoveryState{}, err
	}

	method, err := selector.Choose(user.contact(), devices, selector.Kind(record.Type), record.MethodID)
	if err != nil {
		return RecoveryState{}, deps.Errors.MethodUnavailable
	}

	minter := &codeMinter{mint: deps.MintCode}
	record, err = deps.ReissueRecord(ctx, record.UID, 0, "", "", deps.Now(), deps.CodeTTL, deps.Guard, minter.Mint)
	if err != nil {
		return RecoveryState{}, deps.mapRecordError(ctx, err)
	}
	deps.MetricInc(deps.Metrics.Resent)

	if err := deps.deliver(ctx, record, user, method, minter.code); err != nil {
		return RecoveryState{}, err
	}

	return RecoveryState{Record: record, User: user, Methods: selector.Eligible(user.contact(), devices), Current: method}, nil
}

func RunValidateRecovery(ctx context.Context, uid, code string, deps RecoveryDeps) (ValidatedRecovery, error) {
	normalizeRecoveryDeps(&deps)

	if !deps.ready() || deps.IssueGrant == nil || deps.RecordEvent == nil {
		return ValidatedRecovery{}, deps.Errors.EngineNotReady
	}

	start := deps.Now()
	defer func() {
		deps.ObserveLatency(deps.Metrics.ValidateLatency, deps.Now().Sub(start))
	}()

	code = strings.TrimSpace(code)
	if code == "" {
		return ValidatedRecovery{}, deps.Errors.InvalidInput
	}

	current, err := deps.GetRecord(ctx, uid)
	if err != nil {
		return ValidatedRecovery{}, deps.MapStoreError(err)
	}
	user, err := deps.GetUser(ctx, current.UserID)
	if err != nil {
		return ValidatedRecovery{}, err
	}

	ip := deps.ClientIPFromContext(ctx)
	minter := &codeMinter{mint: deps.MintCode}
	digest := func(salt [16]byte) [32]byte {
		return deps.DigestCode(salt, code)
	}

	record, err := deps.VerifyRecord(ctx, uid, digest, deps.Now(), deps.CodeTTL, deps.Guard, minter.Mint)
	switch {
	case err == nil:
	case errors.Is(err, stores.ErrRecoveryLocked):
		deps.MetricInc(deps.Metrics.LockedOut)
		deps.MetricInc(deps.Metrics.ValidateFailure)
		deps.Logger.WarnContext(ctx, "validate recovery", "reset_id", record.ID, "user", user.Email, "status", "error", "error", "attempt limit reached")
		return ValidatedRecovery{}, deps.Errors.RateLimited
	case errors.Is(err, stores.ErrRecoveryCodeMismatch):
		deps.MetricInc(deps.Metrics.ValidateFailure)
		if logErr := deps.RecordEvent(ctx, deps.Events.VerificationFailed, record, ip); logErr != nil {
			deps.MetricInc(deps.Metrics.UpstreamFailure)
			deps.Logger.ErrorContext(ctx, "record verification event", "reset_id", record.ID, "event", deps.Events.VerificationFailed, "error", logErr)
		}
		deps.MirrorEvent(ctx, deps.Events.VerificationFailed, record, ip)
		deps.Logger.WarnContext(ctx, "validate recovery", "reset_id", record.ID, "user", user.Email, "attempts", record.Attempts, "status", "error", "error", "reset code verification failed")
		return ValidatedRecovery{}, deps.Errors.InvalidCode
	case errors.Is(err, stores.ErrRecoveryExpired):
		deps.MetricInc(deps.Metrics.Expired)
		deps.MetricInc(deps.Metrics.Restarted)
		deps.MetricInc(deps.Metrics.ValidateFailure)
		deps.Logger.WarnContext(ctx, "validate recovery", "reset_id", record.ID, "user", user.Email, "status", "error", "error", "code expired, restarted")

		devices, listErr := deps.ListDevices(ctx, user)
		if listErr != nil {
			return ValidatedRecovery{}, listErr
		}
		method, chooseErr := selector.Choose(user.contact(), devices, selector.Kind(record.Type), record.MethodID)
		if chooseErr != nil {
			return ValidatedRecovery{}, deps.Errors.Expired
		}
		if deliverErr := deps.deliver(ctx, record, user, method, minter.code); deliverErr != nil {
			return ValidatedRecovery{}, deliverErr
		}
		return ValidatedRecovery{}, deps.Errors.Expired
	default:
		return ValidatedRecovery{}, deps.mapRecordError(ctx, err)
	}

	if err := deps.RecordEvent(ctx, deps.Events.VerificationSuccessful, record, ip); err != nil {
		deps.MetricInc(deps.Metrics.UpstreamFailure)
		deps.Logger.ErrorContext(ctx, "record verification event", "reset_id", record.ID, "event", deps.Events.VerificationSuccessful, "error", err)
		return ValidatedRecovery{}, deps.Errors.UpstreamUnavailable
	}
	deps.MirrorEvent(ctx, deps.Events.VerificationSuccessful, record, ip)

	grant, expiresAt, err := deps.IssueGrant(ctx, user)
	if err != nil {
		deps.MetricInc(deps.Metrics.UpstreamFailure)
		deps.Logger.ErrorContext(ctx, "issue reset credential", "reset_id", record.ID, "user", user.Email, "error", err)
		return ValidatedRecovery{}, deps.Errors.UpstreamUnavailable
	}

	deps.MetricInc(deps.Metrics.ValidateSuccess)
	deps.Logger.WarnContext(ctx, "validate recovery", "reset_id", record.ID, "user", user.Email, "status", "success")

	return ValidatedRecovery{User: user, Grant: grant, ExpiresAt: expiresAt}, nil
}

func (deps *RecoveryDeps) ready() bool {
	return deps.OpenRecord != nil &&
		deps.GetRecord != nil &&
		deps.ReissueRecord != nil &&
		deps.VerifyRecord != nil &&
		deps.ResolveUser != nil &&
		deps.GetUser != nil &&
		deps.IsLocked != nil &&
		deps.Deliver != nil &&
		deps.MintCode != nil &&
		deps.OpenCode != nil &&
		deps.DigestCode != nil
}

func (deps *RecoveryDeps) load(ctx context.Context, uid string) (*stores.RecoveryRecord, RecoveryUser, []selector.Device, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, RecoveryUser{}, nil, deps.Errors.NotFound
	}

	record, err := deps.GetRecord(ctx, uid)
	if err != nil {
		return nil, RecoveryUser{}, nil, deps.MapStoreError(err)
	}
	user, err := deps.GetUser(ctx, record.UserID)
	if err != nil {
		return nil, RecoveryUser{}, nil, err
	}
	devices, err := deps.ListDevices(ctx, user)
	if err != nil {
		return nil, RecoveryUser{}, nil, err
	}
	return record, user, devices, nil
}

func (deps *RecoveryDeps) deliver(ctx context.Context, record *stores.RecoveryRecord, user RecoveryUser, method selector.Method, code string) error {
	if err := deps.Deliver(ctx, Delivery{Record: record, User: user, Method: method, Code: code}); err != nil {
		deps.MetricInc(deps.Metrics.DeliveryFailure)
		return err
	}
	deps.MetricInc(deps.Metrics.Delivered)
	return nil
}

func (deps *RecoveryDeps) mapRecordError(ctx context.Context, err error) error {
	if errors.Is(err, stores.ErrRecoveryLocked) {
		deps.MetricInc(deps.Metrics.LockedOut)
		deps.Logger.WarnContext(ctx, "recovery refused", "status", "error", "error", "attempt limit reached")
		return deps.Errors.RateLimited
	}
	if errors.Is(err, stores.ErrRecoveryConflict) {
		// nothing was written; the caller may retry
		deps.MetricInc(deps.Metrics.RateLimitHit)
		deps.Logger.WarnContext(ctx, "recovery refused", "status", "error", "error", "record busy")
		return deps.Errors.RateLimited
	}
	return deps.MapStoreError(err)
}

func (deps *RecoveryDeps) limited(ctx context.Context, action string, err error, attr slog.Attr) error {
	mapped := deps.MapLimiterError(err)
	if errors.Is(mapped, deps.Errors.RateLimited) {
		deps.MetricInc(deps.Metrics.RateLimitHit)
		deps.Logger.WarnContext(ctx, action, attr, slog.String("status", "error"), slog.String("error", "rate limited"))
	} else {
		deps.MetricInc(deps.Metrics.UpstreamFailure)
		deps.Logger.ErrorContext(ctx, action, attr, slog.Any("error", err))
	}
	return mapped
}

func normalizeRecoveryDeps(deps *RecoveryDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.CheckCreateThrottle == nil {
		deps.CheckCreateThrottle = func(context.Context, string, string) error { return nil }
	}
	if deps.CheckResendThrottle == nil {
		deps.CheckResendThrottle = func(context.Context, string, string) error { return nil }
	}
	if deps.ListDevices == nil {
		deps.ListDevices = func(context.Context, RecoveryUser) ([]selector.Device, error) { return nil, nil }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.ObserveLatency == nil {
		deps.ObserveLatency = func(int, time.Duration) {}
	}
	if deps.MirrorEvent == nil {
		deps.MirrorEvent = func(context.Context, string, *stores.RecoveryRecord, string) {}
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(error) error { return deps.Errors.UpstreamUnavailable }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(error) error { return deps.Errors.UpstreamUnavailable }
	}
}
