package goRecover_test

import (
	"context"
	"errors"
	"testing"
	"time"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/internal/testutil"
)

func createFor(t *testing.T, h *testutil.Harness, username string) *goRecover.Recovery {
	t.Helper()
	rec, err := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: username})
	if err != nil {
		t.Fatalf("CreateRecovery(%s) failed: %v", username, err)
	}
	return rec
}

func TestCreateRecoveryDeliversToPrimaryAddress(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")

	rec := createFor(t, h, "alice")

	if rec.UID == "" {
		t.Fatal("expected recovery uid")
	}
	if rec.Type != goRecover.RecoveryEmail {
		t.Fatalf("expected primary channel, got %s", rec.Type)
	}
	if len(rec.Methods) != 2 {
		t.Fatalf("expected primary and supervisor methods, got %+v", rec.Methods)
	}
	if rec.Masked == "" || rec.Masked == "alice@example.org" {
		t.Fatalf("expected masked destination, got %q", rec.Masked)
	}

	msg := h.Mailer.Last(t)
	if msg.To != "alice@example.org" {
		t.Fatalf("expected mail to alice, got %q", msg.To)
	}
	if len(msg.Cc) != 0 {
		t.Fatalf("expected no Cc on primary delivery, got %v", msg.Cc)
	}
	if h.Users.Saves != 1 {
		t.Fatalf("expected local user provisioned once, got %d saves", h.Users.Saves)
	}
}

func TestCreateRecoveryByEmail(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")

	rec, err := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Email: "ALICE@example.org"})
	if err != nil {
		t.Fatalf("CreateRecovery by email failed: %v", err)
	}
	if rec.Type != goRecover.RecoveryEmail {
		t.Fatalf("expected primary channel, got %s", rec.Type)
	}
}

func TestCreateRecoveryRequiresExactlyOneIdentifier(t *testing.T) {
	h := testutil.NewHarness(t)

	for _, req := range []goRecover.CreateRecoveryRequest{
		{},
		{Username: "alice", Email: "alice@example.org"},
		{Username: "   "},
	} {
		if _, err := h.Engine.CreateRecovery(context.Background(), req); !errors.Is(err, goRecover.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", req, err)
		}
	}
}

func TestCreateRecoveryIsIdempotentWhilePending(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")

	first := createFor(t, h, "alice")
	firstCode := h.LastCode(t)

	h.Clock.Advance(time.Minute)
	second := createFor(t, h, "alice")
	secondCode := h.LastCode(t)

	if first.UID != second.UID {
		t.Fatalf("expected same recovery, got %s and %s", first.UID, second.UID)
	}
	if firstCode != secondCode {
		t.Fatalf("expected the outstanding code to be re-delivered, got %s then %s", firstCode, secondCode)
	}
	if got := len(h.Mailer.Sent()); got != 2 {
		t.Fatalf("expected two deliveries, got %d", got)
	}
	if !second.ExpiresAt.Equal(first.ExpiresAt) {
		t.Fatal("expected re-delivery to keep the original expiry")
	}
}

func TestCreateRecoveryRestartsExpiredRecord(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")

	first := createFor(t, h, "alice")
	oldCode := h.LastCode(t)

	h.Clock.Advance(h.Config.Recovery.CodeTTL + time.Second)
	second := createFor(t, h, "alice")
	newCode := h.LastCode(t)

	if first.UID != second.UID {
		t.Fatal("expected the expired recovery to be restarted in place")
	}
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Fatal("expected a fresh expiry after restart")
	}
	if oldCode != newCode {
		if _, err := h.Engine.ValidateRecovery(context.Background(), second.UID, oldCode); !errors.Is(err, goRecover.ErrInvalidCode) {
			t.Fatalf("expected old code rejected, got %v", err)
		}
	}
	if _, err := h.Engine.ValidateRecovery(context.Background(), second.UID, newCode); err != nil {
		t.Fatalf("expected new code to validate, got %v", err)
	}
}

func TestCreateRecoveryUnknownUser(t *testing.T) {
	h := testutil.NewHarness(t)

	_, err := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: "nobody"})
	if !errors.Is(err, goRecover.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(h.Mailer.Sent()) != 0 {
		t.Fatal("expected no mail for unknown user")
	}
}

func TestCreateRecoveryLockedAccount(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")
	h.Passwords.Lock("E100")

	_, err := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: "alice"})
	if !errors.Is(err, goRecover.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if len(h.Mailer.Sent()) != 0 {
		t.Fatal("expected no mail for locked account")
	}
}

func TestCreateRecoveryHiddenAccountLooksUnknown(t *testing.T) {
	h := testutil.NewHarness(t)
	hidden := h.AddPerson("E200", "ghost")
	hidden.Hidden = true
	h.Directory.Update(hidden)

	_, errHidden := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: "ghost"})
	_, errUnknown := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: "nobody"})
	if !errors.Is(errHidden, goRecover.ErrNotFound) || errHidden != errUnknown {
		t.Fatalf("expected hidden and unknown to match, got %v and %v", errHidden, errUnknown)
	}

	h.Passwords.Lock("E200")
	_, errLocked := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: "ghost"})
	if errLocked != errUnknown {
		t.Fatalf("expected hidden locked account to look unknown, got %v", errLocked)
	}
}

func TestCreateRecoveryHiddenAccountLooksUnknownWhenLockedOut(t *testing.T) {
	h := testutil.NewHarness(t, func(c *goRecover.Config) { c.Recovery.MaxAttempts = 2 })
	ghost := h.AddPerson("E200", "ghost")
	rec := createFor(t, h, "ghost")
	code := h.LastCode(t)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < 2; i++ {
		if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, wrong); !errors.Is(err, goRecover.ErrInvalidCode) {
			t.Fatalf("attempt %d: expected ErrInvalidCode, got %v", i+1, err)
		}
	}

	ghost.Hidden = true
	h.Directory.Update(ghost)

	_, errHidden := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: "ghost"})
	_, errUnknown := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: "nobody"})
	if !errors.Is(errUnknown, goRecover.ErrNotFound) || errHidden != errUnknown {
		t.Fatalf("expected locked-out hidden account to look unknown, got %v and %v", errHidden, errUnknown)
	}
}

func TestCreateRecoveryHiddenAccountLooksUnknownWithoutChannels(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Directory.Add(goRecover.DirectoryUser{EmployeeID: "E200", Username: "ghost", Hidden: true})

	_, errHidden := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: "ghost"})
	_, errUnknown := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: "nobody"})
	if !errors.Is(errUnknown, goRecover.ErrNotFound) || errHidden != errUnknown {
		t.Fatalf("expected hidden account without channels to look unknown, got %v and %v", errHidden, errUnknown)
	}
}

func TestCreateRecoveryHiddenAccountLooksUnknownWhenMailFails(t *testing.T) {
	h := testutil.NewHarness(t)
	ghost := h.AddPerson("E200", "ghost")
	ghost.Hidden = true
	h.Directory.Update(ghost)
	h.Mailer.Err = errors.New("smtp: 421")

	_, err := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: "ghost"})
	if !errors.Is(err, goRecover.ErrNotFound) {
		t.Fatalf("expected hidden account to look unknown when delivery fails, got %v", err)
	}
}

func TestCreateRecoveryWithoutSupervisor(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Directory.Add(goRecover.DirectoryUser{EmployeeID: "E300", Username: "solo", Email: "solo@example.org"})

	rec := createFor(t, h, "solo")
	if len(rec.Methods) != 1 || rec.Methods[0].Type != goRecover.RecoveryEmail {
		t.Fatalf("expected only the primary method, got %+v", rec.Methods)
	}

	_, err := h.Engine.SetRecoveryMethod(context.Background(), rec.UID, goRecover.RecoverySupervisor, "")
	if !errors.Is(err, goRecover.ErrMethodUnavailable) {
		t.Fatalf("expected ErrMethodUnavailable, got %v", err)
	}
}

func TestCreateRecoveryRefreshesDirectoryProfile(t *testing.T) {
	h := testutil.NewHarness(t)
	person := h.AddPerson("E100", "alice")
	createFor(t, h, "alice")

	person.Email = "alice.new@example.org"
	h.Directory.Update(person)
	h.Clock.Advance(h.Config.Recovery.CodeTTL + time.Second)
	createFor(t, h, "alice")

	if h.Users.Saves != 2 {
		t.Fatalf("expected profile refresh to save again, got %d", h.Users.Saves)
	}
	if got := h.Mailer.Last(t).To; got != "alice.new@example.org" {
		t.Fatalf("expected delivery to refreshed address, got %q", got)
	}
}

func TestCreateRecoveryDirectoryFailure(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Directory.Err = errors.New("ldap: connection refused")

	_, err := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: "alice"})
	if !errors.Is(err, goRecover.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if got := h.Engine.MetricsSnapshot().Counters[goRecover.MetricUpstreamFailure]; got == 0 {
		t.Fatal("expected upstream failure to be counted")
	}
}

func TestCreateRecoveryMailFailure(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")
	h.Mailer.Err = errors.New("smtp: 421")

	_, err := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: "alice"})
	if !errors.Is(err, goRecover.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestCreateRecoveryThrottled(t *testing.T) {
	h := testutil.NewHarness(t, func(c *goRecover.Config) {
		c.Throttle.EnableIdentifierThrottle = true
		c.Throttle.Window = time.Minute
		c.Throttle.MaxRequests = 2
	})
	h.AddPerson("E100", "alice")

	createFor(t, h, "alice")
	createFor(t, h, "alice")
	_, err := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: "alice"})
	if !errors.Is(err, goRecover.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got := h.Engine.MetricsSnapshot().Counters[goRecover.MetricRateLimitHit]; got != 1 {
		t.Fatalf("expected one rate limit hit, got %d", got)
	}
}

func TestValidateRecoverySuccessConsumesRecord(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")
	rec := createFor(t, h, "alice")
	code := h.LastCode(t)

	h.Clock.Advance(time.Minute)
	ctx := goRecover.WithClientIP(context.Background(), "203.0.113.9")
	result, err := h.Engine.ValidateRecovery(ctx, rec.UID, code)
	if err != nil {
		t.Fatalf("ValidateRecovery failed: %v", err)
	}
	if result.User.EmployeeID != "E100" {
		t.Fatalf("expected user E100, got %+v", result.User)
	}
	if result.Credential.AccessToken == "" || result.Credential.ExpiresAt.IsZero() {
		t.Fatalf("expected credential, got %+v", result.Credential)
	}

	events := h.Events.All()
	if len(events) != 1 || events[0].EventType != goRecover.EventVerificationSuccessful {
		t.Fatalf("expected one success event, got %+v", events)
	}
	if events[0].RecoveryUID != rec.UID || events[0].IP != "203.0.113.9" || events[0].Type != "primary" {
		t.Fatalf("unexpected event fields %+v", events[0])
	}
	if !events[0].Timestamp.Equal(h.Clock.Now()) {
		t.Fatalf("expected event stamped with engine clock %v, got %v", h.Clock.Now(), events[0].Timestamp)
	}

	if _, err := h.Engine.GetRecovery(context.Background(), rec.UID); !errors.Is(err, goRecover.ErrNotFound) {
		t.Fatalf("expected consumed recovery to be gone, got %v", err)
	}
	if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, code); !errors.Is(err, goRecover.ErrNotFound) {
		t.Fatalf("expected second validation to fail with ErrNotFound, got %v", err)
	}

	next := createFor(t, h, "alice")
	if next.UID == rec.UID {
		t.Fatal("expected a new recovery after consumption")
	}
}

func TestValidateRecoveryWrongCode(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")
	rec := createFor(t, h, "alice")
	code := h.LastCode(t)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, wrong); !errors.Is(err, goRecover.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	events := h.Events.All()
	if len(events) != 1 || events[0].EventType != goRecover.EventVerificationFailed || events[0].Attempts != 1 {
		t.Fatalf("expected one failed event with one attempt, got %+v", events)
	}

	if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, "  "); !errors.Is(err, goRecover.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank code, got %v", err)
	}
	if _, err := h.Engine.ValidateRecovery(context.Background(), "missing", code); !errors.Is(err, goRecover.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown uid, got %v", err)
	}
}

func TestValidateRecoveryLocksAfterMaxAttempts(t *testing.T) {
	h := testutil.NewHarness(t, func(c *goRecover.Config) { c.Recovery.MaxAttempts = 3 })
	h.AddPerson("E100", "alice")
	rec := createFor(t, h, "alice")
	code := h.LastCode(t)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < 3; i++ {
		if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, wrong); !errors.Is(err, goRecover.ErrInvalidCode) {
			t.Fatalf("attempt %d: expected ErrInvalidCode, got %v", i+1, err)
		}
	}

	if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, code); !errors.Is(err, goRecover.ErrRateLimited) {
		t.Fatalf("expected correct code to be refused once locked, got %v", err)
	}
	if _, err := h.Engine.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: "alice"}); !errors.Is(err, goRecover.ErrRateLimited) {
		t.Fatalf("expected create on locked recovery to be refused, got %v", err)
	}
	if _, err := h.Engine.ResendRecovery(context.Background(), rec.UID); !errors.Is(err, goRecover.ErrRateLimited) {
		t.Fatalf("expected resend on locked recovery to be refused, got %v", err)
	}
}

func TestValidateRecoveryExpiredRestarts(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")
	rec := createFor(t, h, "alice")
	oldCode := h.LastCode(t)

	h.Clock.Advance(h.Config.Recovery.CodeTTL + time.Second)

	if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, oldCode); !errors.Is(err, goRecover.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if got := len(h.Mailer.Sent()); got != 2 {
		t.Fatalf("expected restart to deliver a new code, got %d messages", got)
	}
	newCode := h.LastCode(t)

	if newCode != oldCode {
		if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, oldCode); !errors.Is(err, goRecover.ErrInvalidCode) {
			t.Fatalf("expected the expired code to stay invalid, got %v", err)
		}
	}
	if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, newCode); err != nil {
		t.Fatalf("expected restarted code to validate, got %v", err)
	}
}

func TestValidateRecoveryEventLogFailureIssuesNothing(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")
	rec := createFor(t, h, "alice")
	code := h.LastCode(t)

	h.Events.Err = errors.New("event store down")
	result, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, code)
	if !errors.Is(err, goRecover.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if result != nil {
		t.Fatalf("expected no credential, got %+v", result)
	}
}

func TestSetRecoveryMethodSupervisor(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")
	rec := createFor(t, h, "alice")
	oldCode := h.LastCode(t)

	updated, err := h.Engine.SetRecoveryMethod(context.Background(), rec.UID, goRecover.RecoverySupervisor, "")
	if err != nil {
		t.Fatalf("SetRecoveryMethod failed: %v", err)
	}
	if updated.Type != goRecover.RecoverySupervisor || updated.UID != rec.UID {
		t.Fatalf("unexpected recovery after method change %+v", updated)
	}

	msg := h.Mailer.Last(t)
	if msg.To != "supervisor.alice@example.org" {
		t.Fatalf("expected supervisor delivery, got %q", msg.To)
	}
	if len(msg.Cc) != 1 || msg.Cc[0] != "alice@example.org" {
		t.Fatalf("expected primary address in Cc, got %v", msg.Cc)
	}

	newCode := h.LastCode(t)
	if newCode != oldCode {
		if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, oldCode); !errors.Is(err, goRecover.ErrInvalidCode) {
			t.Fatalf("expected previous code invalid after method change, got %v", err)
		}
	}
	if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, newCode); err != nil {
		t.Fatalf("expected supervisor code to validate, got %v", err)
	}

	events := h.Events.All()
	last := events[len(events)-1]
	if last.Type != "supervisor" {
		t.Fatalf("expected supervisor type on event, got %q", last.Type)
	}
}

func TestSetRecoveryMethodKeepsAttempts(t *testing.T) {
	h := testutil.NewHarness(t, func(c *goRecover.Config) { c.Recovery.MaxAttempts = 2 })
	h.AddPerson("E100", "alice")
	rec := createFor(t, h, "alice")
	code := h.LastCode(t)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, wrong); !errors.Is(err, goRecover.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if _, err := h.Engine.SetRecoveryMethod(context.Background(), rec.UID, goRecover.RecoverySupervisor, ""); err != nil {
		t.Fatalf("SetRecoveryMethod failed: %v", err)
	}
	newCode := h.LastCode(t)
	if newCode == wrong {
		wrong = "222222"
	}
	if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, wrong); !errors.Is(err, goRecover.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, newCode); !errors.Is(err, goRecover.ErrRateLimited) {
		t.Fatalf("expected the carried-over attempts to lock the recovery, got %v", err)
	}
}

func TestSetRecoveryMethodDevice(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")
	h.Mfa.Add("E100", goRecover.MfaMethod{ID: "m-1", Type: "sms", Value: "+15550100", Verified: true})
	h.Mfa.Add("E100", goRecover.MfaMethod{ID: "m-2", Type: "sms", Value: "+15550199", Verified: false})

	rec := createFor(t, h, "alice")
	if len(rec.Methods) != 3 {
		t.Fatalf("expected primary, supervisor and one device, got %+v", rec.Methods)
	}
	device := rec.Methods[2]
	if device.Type != goRecover.RecoveryMFA || device.ID != "m-1" || device.Masked == "+15550100" {
		t.Fatalf("unexpected device method %+v", device)
	}

	if _, err := h.Engine.SetRecoveryMethod(context.Background(), rec.UID, goRecover.RecoveryMFA, "m-2"); !errors.Is(err, goRecover.ErrMethodUnavailable) {
		t.Fatalf("expected unverified device to be unavailable, got %v", err)
	}

	updated, err := h.Engine.SetRecoveryMethod(context.Background(), rec.UID, goRecover.RecoveryMFA, "m-1")
	if err != nil {
		t.Fatalf("SetRecoveryMethod failed: %v", err)
	}
	if updated.MethodID != "m-1" {
		t.Fatalf("expected method id m-1, got %q", updated.MethodID)
	}

	deliveries := h.Mfa.Deliveries()
	if len(deliveries) != 1 || deliveries[0].Method.ID != "m-1" {
		t.Fatalf("expected one device delivery, got %+v", deliveries)
	}
	if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, deliveries[0].Code); err != nil {
		t.Fatalf("expected device code to validate, got %v", err)
	}
}

func TestCreateRecoveryFallsBackWhenDeviceRemoved(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")
	h.Mfa.Add("E100", goRecover.MfaMethod{ID: "m-1", Type: "sms", Value: "+15550100", Verified: true})

	rec := createFor(t, h, "alice")
	if _, err := h.Engine.SetRecoveryMethod(context.Background(), rec.UID, goRecover.RecoveryMFA, "m-1"); err != nil {
		t.Fatalf("SetRecoveryMethod failed: %v", err)
	}

	h.Mfa.Remove("E100")
	again := createFor(t, h, "alice")
	if again.Type != goRecover.RecoveryEmail {
		t.Fatalf("expected fallback to primary, got %s", again.Type)
	}
	if h.Mailer.Last(t).To != "alice@example.org" {
		t.Fatal("expected fallback delivery to the primary address")
	}
}

func TestResendRecoveryInvalidatesPreviousCode(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")
	rec := createFor(t, h, "alice")
	oldCode := h.LastCode(t)

	if _, err := h.Engine.ResendRecovery(context.Background(), rec.UID); err != nil {
		t.Fatalf("ResendRecovery failed: %v", err)
	}
	newCode := h.LastCode(t)
	if h.Mailer.Last(t).To != "alice@example.org" {
		t.Fatal("expected resend on the same channel")
	}

	if newCode != oldCode {
		if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, oldCode); !errors.Is(err, goRecover.ErrInvalidCode) {
			t.Fatalf("expected previous code invalid after resend, got %v", err)
		}
	}
	if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, newCode); err != nil {
		t.Fatalf("expected resent code to validate, got %v", err)
	}
	if _, err := h.Engine.ResendRecovery(context.Background(), "missing"); !errors.Is(err, goRecover.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown uid, got %v", err)
	}
}

func TestGetRecoveryView(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")
	rec := createFor(t, h, "alice")

	view, err := h.Engine.GetRecovery(context.Background(), rec.UID)
	if err != nil {
		t.Fatalf("GetRecovery failed: %v", err)
	}
	if view.UID != rec.UID || view.Type != rec.Type || view.Masked != rec.Masked {
		t.Fatalf("expected view to match created recovery, got %+v", view)
	}
	if _, err := h.Engine.GetRecovery(context.Background(), ""); !errors.Is(err, goRecover.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty uid, got %v", err)
	}
}

func TestAuditMirrorReceivesVerificationEvents(t *testing.T) {
	h := testutil.NewHarness(t, func(c *goRecover.Config) { c.Audit.MirrorEnabled = true })
	h.AddPerson("E100", "alice")
	rec := createFor(t, h, "alice")
	code := h.LastCode(t)

	if _, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, code); err != nil {
		t.Fatalf("ValidateRecovery failed: %v", err)
	}

	select {
	case event := <-h.Mirror.Events():
		if event.EventType != goRecover.EventVerificationSuccessful || event.RecoveryUID != rec.UID {
			t.Fatalf("unexpected mirrored event %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected mirrored event")
	}
}

func TestAuthenticateReset(t *testing.T) {
	h := testutil.NewHarness(t)
	h.AddPerson("E100", "alice")
	rec := createFor(t, h, "alice")
	result, err := h.Engine.ValidateRecovery(context.Background(), rec.UID, h.LastCode(t))
	if err != nil {
		t.Fatalf("ValidateRecovery failed: %v", err)
	}

	user, err := h.Engine.AuthenticateReset(context.Background(), result.Credential.AccessToken)
	if err != nil {
		t.Fatalf("AuthenticateReset failed: %v", err)
	}
	if user.EmployeeID != "E100" || user.Username != "alice" {
		t.Fatalf("unexpected user %+v", user)
	}

	if _, err := h.Engine.AuthenticateReset(context.Background(), "not-a-token"); !errors.Is(err, goRecover.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for garbage token, got %v", err)
	}

	other := testutil.NewHarness(t)
	if _, err := other.Engine.AuthenticateReset(context.Background(), result.Credential.AccessToken); !errors.Is(err, goRecover.ErrInvalidInput) {
		t.Fatalf("expected token from another key to be rejected, got %v", err)
	}
}

func TestPingReportsRedisOutage(t *testing.T) {
	h := testutil.NewHarness(t)
	if err := h.Engine.Ping(context.Background()); err != nil {
		t.Fatalf("expected ping to succeed, got %v", err)
	}
	h.Redis.Close()
	if err := h.Engine.Ping(context.Background()); !errors.Is(err, goRecover.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var e *goRecover.Engine
	if _, err := e.CreateRecovery(context.Background(), goRecover.CreateRecoveryRequest{Username: "a"}); !errors.Is(err, goRecover.ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.ValidateRecovery(context.Background(), "uid", "123456"); !errors.Is(err, goRecover.ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
