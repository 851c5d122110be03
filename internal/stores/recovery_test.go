package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goRecover/internal/limiters"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testDigest(salt [16]byte, code string) [32]byte {
	return sha256.Sum256(append(salt[:], code...))
}

func mintFixed(code string, salt byte) MintFunc {
	return func(string) (RecoveryCode, error) {
		var s [16]byte
		s[0] = salt
		return RecoveryCode{Salt: s, Hash: testDigest(s, code), Sealed: []byte("sealed:" + code)}, nil
	}
}

func digestFor(code string) func([16]byte) [32]byte {
	return func(salt [16]byte) [32]byte { return testDigest(salt, code) }
}

var testNow = time.Unix(1_700_000_000, 0)

func openTestRecord(t *testing.T, s *RecoveryStore, userID, uid, code string) *RecoveryRecord {
	t.Helper()

	rec, outcome, err := s.Open(context.Background(), OpenRequest{
		UserID: userID,
		UID:    uid,
		Type:   1,
		Now:    testNow,
		TTL:    10 * time.Minute,
	}, limiters.NewAttemptGuard(3), mintFixed(code, 1))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if outcome != OpenCreated {
		t.Fatalf("expected OpenCreated, got %d", outcome)
	}
	return rec
}

func TestRecoveryStoreOpenCreatesOnce(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	s := NewRecoveryStore(rdb, "rcv", time.Hour)
	first := openTestRecord(t, s, "u1", "uid-1", "111111")
	if first.ID != 1 || first.Attempts != 0 {
		t.Fatalf("unexpected record: %+v", first)
	}
	if first.ExpiresAt != testNow.Add(10*time.Minute).Unix() {
		t.Fatalf("unexpected expiry %d", first.ExpiresAt)
	}

	minted := 0
	again, outcome, err := s.Open(context.Background(), OpenRequest{
		UserID: "u1",
		UID:    "uid-2",
		Type:   2,
		Now:    testNow.Add(time.Minute),
		TTL:    10 * time.Minute,
	}, limiters.NewAttemptGuard(3), func(uid string) (RecoveryCode, error) {
		minted++
		return mintFixed("222222", 2)(uid)
	})
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	if outcome != OpenPending || again.UID != "uid-1" || again.Type != 1 {
		t.Fatalf("expected pending uid-1, got outcome=%d rec=%+v", outcome, again)
	}
	if minted != 0 {
		t.Fatal("pending record must not mint a new code")
	}
	if again.CodeHash != first.CodeHash {
		t.Fatal("pending record code changed")
	}
}

func TestRecoveryStoreOpenRestartsExpired(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	s := NewRecoveryStore(rdb, "rcv", time.Hour)
	guard := limiters.NewAttemptGuard(3)
	first := openTestRecord(t, s, "u1", "uid-1", "111111")

	if _, err := s.Verify(ctx, "uid-1", digestFor("000000"), testNow, 10*time.Minute, guard, mintFixed("x", 9)); !errors.Is(err, ErrRecoveryCodeMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}

	later := testNow.Add(11 * time.Minute)
	rec, outcome, err := s.Open(ctx, OpenRequest{
		UserID:   "u1",
		UID:      "uid-ignored",
		Type:     3,
		MethodID: "m1",
		Now:      later,
		TTL:      10 * time.Minute,
	}, guard, mintFixed("333333", 3))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if outcome != OpenRestarted {
		t.Fatalf("expected OpenRestarted, got %d", outcome)
	}
	if rec.UID != first.UID || rec.ID != first.ID || rec.CreatedAt != first.CreatedAt {
		t.Fatalf("restart must keep identity: %+v", rec)
	}
	if rec.Attempts != 0 || rec.Type != 3 || rec.MethodID != "m1" {
		t.Fatalf("restart must reset attempts and apply channel: %+v", rec)
	}
	if rec.ExpiresAt != later.Add(10*time.Minute).Unix() || rec.SentAt != later.Unix() {
		t.Fatalf("unexpected restart timestamps: %+v", rec)
	}
}

func TestRecoveryStoreOpenRecreatesAfterStaleIndex(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	s := NewRecoveryStore(rdb, "rcv", time.Hour)
	openTestRecord(t, s, "u1", "uid-1", "111111")
	mr.Del("rcv:rec:uid-1")

	rec := openTestRecord(t, s, "u1", "uid-2", "222222")
	if rec.UID != "uid-2" || rec.ID != 2 {
		t.Fatalf("expected fresh record, got %+v", rec)
	}
}

func TestRecoveryStoreVerifySuccessDeletes(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	s := NewRecoveryStore(rdb, "rcv", time.Hour)
	guard := limiters.NewAttemptGuard(3)
	openTestRecord(t, s, "u1", "uid-1", "111111")

	rec, err := s.Verify(ctx, "uid-1", digestFor("111111"), testNow, 10*time.Minute, guard, mintFixed("x", 9))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rec.UserID != "u1" {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, err := s.Get(ctx, "uid-1"); !errors.Is(err, ErrRecoveryNotFound) {
		t.Fatalf("record must be deleted, got %v", err)
	}
	if mr.Exists("rcv:usr:u1") {
		t.Fatal("user index must be deleted")
	}
	if _, err := s.Verify(ctx, "uid-1", digestFor("111111"), testNow, 10*time.Minute, guard, mintFixed("x", 9)); !errors.Is(err, ErrRecoveryNotFound) {
		t.Fatalf("second verify must not succeed, got %v", err)
	}
}

func TestRecoveryStoreVerifyLockout(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	s := NewRecoveryStore(rdb, "rcv", time.Hour)
	guard := limiters.NewAttemptGuard(3)
	openTestRecord(t, s, "u1", "uid-1", "111111")

	for i := 1; i <= 3; i++ {
		rec, err := s.Verify(ctx, "uid-1", digestFor("999999"), testNow, 10*time.Minute, guard, mintFixed("x", 9))
		if !errors.Is(err, ErrRecoveryCodeMismatch) {
			t.Fatalf("attempt %d: expected mismatch, got %v", i, err)
		}
		if rec.Attempts != uint16(i) {
			t.Fatalf("attempt %d: attempts=%d", i, rec.Attempts)
		}
	}

	rec, err := s.Verify(ctx, "uid-1", digestFor("111111"), testNow, 10*time.Minute, guard, mintFixed("x", 9))
	if !errors.Is(err, ErrRecoveryLocked) {
		t.Fatalf("correct code on locked record must fail, got %v", err)
	}
	if rec.Attempts != 3 {
		t.Fatalf("locked check must not advance attempts, got %d", rec.Attempts)
	}

	if _, err := s.Reissue(ctx, "uid-1", 0, "", "", testNow, 10*time.Minute, guard, mintFixed("x", 9)); !errors.Is(err, ErrRecoveryLocked) {
		t.Fatalf("reissue on locked record must fail, got %v", err)
	}
}

func TestRecoveryStoreVerifyExpiredRestarts(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	s := NewRecoveryStore(rdb, "rcv", time.Hour)
	guard := limiters.NewAttemptGuard(3)
	openTestRecord(t, s, "u1", "uid-1", "111111")

	later := testNow.Add(11 * time.Minute)
	rec, err := s.Verify(ctx, "uid-1", digestFor("111111"), later, 10*time.Minute, guard, mintFixed("444444", 4))
	if !errors.Is(err, ErrRecoveryExpired) {
		t.Fatalf("expected ErrRecoveryExpired, got %v", err)
	}
	if rec.ExpiresAt != later.Add(10*time.Minute).Unix() {
		t.Fatalf("expired record must be restarted, got %+v", rec)
	}

	if _, err := s.Verify(ctx, "uid-1", digestFor("111111"), later, 10*time.Minute, guard, mintFixed("x", 9)); !errors.Is(err, ErrRecoveryCodeMismatch) {
		t.Fatalf("old code must be invalid after restart, got %v", err)
	}
	if _, err := s.Verify(ctx, "uid-1", digestFor("444444"), later, 10*time.Minute, guard, mintFixed("x", 9)); err != nil {
		t.Fatalf("new code must verify, got %v", err)
	}
}

func TestRecoveryStoreReissueKeepsAttempts(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	s := NewRecoveryStore(rdb, "rcv", time.Hour)
	guard := limiters.NewAttemptGuard(3)
	openTestRecord(t, s, "u1", "uid-1", "111111")

	if _, err := s.Verify(ctx, "uid-1", digestFor("000000"), testNow, 10*time.Minute, guard, mintFixed("x", 9)); !errors.Is(err, ErrRecoveryCodeMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}

	rec, err := s.Reissue(ctx, "uid-1", 2, "", "b**s@e******.o**", testNow.Add(time.Minute), 10*time.Minute, guard, mintFixed("555555", 5))
	if err != nil {
		t.Fatalf("Reissue failed: %v", err)
	}
	if rec.Attempts != 1 || rec.Type != 2 {
		t.Fatalf("unexpected reissued record %+v", rec)
	}

	rec, err = s.Reissue(ctx, "uid-1", 0, "", "", testNow.Add(2*time.Minute), 10*time.Minute, guard, mintFixed("666666", 6))
	if err != nil {
		t.Fatalf("Reissue failed: %v", err)
	}
	if rec.Type != 2 || rec.Masked != "b**s@e******.o**" {
		t.Fatalf("zero kind must keep channel, got %+v", rec)
	}

	if _, err := s.Reissue(ctx, "missing", 0, "", "", testNow, time.Minute, guard, mintFixed("x", 9)); !errors.Is(err, ErrRecoveryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecoveryStoreConcurrentVerifySucceedsOnce(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	s := NewRecoveryStore(rdb, "rcv", time.Hour)
	guard := limiters.NewAttemptGuard(3)
	openTestRecord(t, s, "u1", "uid-1", "111111")

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Verify(context.Background(), "uid-1", digestFor("111111"), testNow, 10*time.Minute, guard, mintFixed("x", 9))
			if err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := success.Load(); got != 1 {
		t.Fatalf("expected exactly one success, got %d", got)
	}
}

func TestRecoveryStoreConcurrentMismatchesAreAllCounted(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	s := NewRecoveryStore(rdb, "rcv", time.Hour)
	guard := limiters.NewAttemptGuard(100)
	openTestRecord(t, s, "u1", "uid-1", "111111")

	const workers = 32
	var (
		wg       sync.WaitGroup
		mismatch atomic.Int32
		conflict atomic.Int32
		other    atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Verify(context.Background(), "uid-1", digestFor("999999"), testNow, 10*time.Minute, guard, mintFixed("x", 9))
			switch {
			case errors.Is(err, ErrRecoveryCodeMismatch):
				mismatch.Add(1)
			case errors.Is(err, ErrRecoveryConflict):
				conflict.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	if other.Load() != 0 {
		t.Fatalf("expected only mismatch or conflict outcomes, got %d others", other.Load())
	}
	if mismatch.Load() == 0 {
		t.Fatal("expected at least one counted mismatch")
	}
	if mismatch.Load()+conflict.Load() != workers {
		t.Fatalf("outcomes do not add up: mismatch=%d conflict=%d", mismatch.Load(), conflict.Load())
	}

	rec, err := s.Get(context.Background(), "uid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if int32(rec.Attempts) != mismatch.Load() {
		t.Fatalf("expected %d stored attempts, got %d", mismatch.Load(), rec.Attempts)
	}
}

func TestRecoveryStoreRedisUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRecoveryStore(rdb, "rcv", time.Hour)
	mr.Close()

	if _, err := s.Get(context.Background(), "uid-1"); !errors.Is(err, ErrRecoveryRedisUnavailable) {
		t.Fatalf("expected ErrRecoveryRedisUnavailable, got %v", err)
	}
	_, _, err := s.Open(context.Background(), OpenRequest{UserID: "u1", UID: "uid-1", Now: testNow, TTL: time.Minute}, limiters.NewAttemptGuard(3), mintFixed("1", 1))
	if !errors.Is(err, ErrRecoveryRedisUnavailable) {
		t.Fatalf("expected ErrRecoveryRedisUnavailable, got %v", err)
	}
}

func TestRecoveryRecordEncodingRoundTrip(t *testing.T) {
	in := &RecoveryRecord{
		UID:        "uid-1",
		ID:         42,
		UserID:     "u1",
		Type:       3,
		MethodID:   "m1",
		Masked:     "u**r@e******.o**",
		SealedCode: []byte{1, 2, 3},
		Attempts:   2,
		CreatedAt:  1,
		SentAt:     2,
		ExpiresAt:  3,
	}
	in.CodeSalt[0] = 7
	in.CodeHash[31] = 9

	data, err := encodeRecoveryRecord(in)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	out, err := decodeRecoveryRecord(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.UID != in.UID || out.ID != in.ID || out.MethodID != in.MethodID || out.Masked != in.Masked || out.CodeSalt != in.CodeSalt ||
		out.CodeHash != in.CodeHash || out.Attempts != in.Attempts || out.ExpiresAt != in.ExpiresAt || string(out.SealedCode) != string(in.SealedCode) {
		t.Fatalf("round trip mismatch: %+v", out)
	}

	data[0] = 9
	if _, err := decodeRecoveryRecord(data); err == nil {
		t.Fatal("expected version error")
	}
}
