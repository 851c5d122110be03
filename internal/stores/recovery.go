package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/MrEthical07/goRecover/internal/limiters"
	"github.com/redis/go-redis/v9"
)

const (
	recoveryRecordVersionV1 = 1
)

var (
	ErrRecoveryNotFound         = errors.New("recovery record not found")
	ErrRecoveryCodeMismatch     = errors.New("recovery code mismatch")
	ErrRecoveryLocked           = errors.New("recovery attempts exceeded")
	ErrRecoveryExpired          = errors.New("recovery code expired")
	ErrRecoveryConflict         = errors.New("recovery record contention")
	ErrRecoveryRedisUnavailable = errors.New("recovery redis unavailable")
)

// RecoveryRecord is the persisted recovery session. The code is held only as
// a salted digest plus an AES-GCM sealed copy.
type RecoveryRecord struct {
	UID        string
	ID         int64
	UserID     string
	Type       uint8
	MethodID   string
	Masked     string
	CodeSalt   [16]byte
	CodeHash   [32]byte
	SealedCode []byte
	Attempts   uint16
	CreatedAt  int64
	SentAt     int64
	ExpiresAt  int64
}

// RecoveryCode is freshly minted code material.
type RecoveryCode struct {
	Salt   [16]byte
	Hash   [32]byte
	Sealed []byte
}

// MintFunc produces a new code for the record uid. It may run more than once
// when a transaction is retried; only the value from the committed attempt is
// persisted.
type MintFunc func(uid string) (RecoveryCode, error)

// OpenOutcome tells the caller what Open did to the user's record.
type OpenOutcome int

const (
	OpenCreated OpenOutcome = iota + 1
	OpenPending
	OpenRestarted
)

// OpenRequest describes the record to create when the user has none.
type OpenRequest struct {
	UserID   string
	UID      string
	Type     uint8
	MethodID string
	Masked   string
	Now      time.Time
	TTL      time.Duration
}

type RecoveryStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewRecoveryStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *RecoveryStore {
	if prefix == "" {
		prefix = "rcv"
	}
	return &RecoveryStore{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *RecoveryStore) recordKey(uid string) string {
	return s.prefix + ":rec:" + uid
}

func (s *RecoveryStore) userKey(userID string) string {
	return s.prefix + ":usr:" + userID
}

func (s *RecoveryStore) sequenceKey() string {
	return s.prefix + ":seq"
}

// Open returns the user's single recovery record, creating it when absent and
// restarting it when expired. A pending record is returned untouched.
func (s *RecoveryStore) Open(
	ctx context.Context,
	req OpenRequest,
	guard limiters.AttemptGuard,
	mint MintFunc,
) (*RecoveryRecord, OpenOutcome, error) {
	userKey := s.userKey(req.UserID)

	var (
		result  *RecoveryRecord
		outcome OpenOutcome
	)

	err := s.watch(ctx, func(tx *redis.Tx) error {
		uid, err := tx.Get(ctx, userKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		if uid != "" {
			recKey := s.recordKey(uid)
			if err := tx.Watch(ctx, recKey).Err(); err != nil {
				return err
			}
			data, err := tx.Get(ctx, recKey).Bytes()
			switch {
			case err == nil:
				record, err := decodeRecoveryRecord(data)
				if err != nil {
					return err
				}
				if !guard.ShouldExpireNow(record.ExpiresAt, req.Now) {
					result, outcome = record, OpenPending
					return nil
				}

				code, err := mint(record.UID)
				if err != nil {
					return err
				}
				record.Type = req.Type
				record.MethodID = req.MethodID
				record.Masked = req.Masked
				restart(record, code, req.Now, req.TTL)

				if err := s.write(ctx, tx, record, req.Now); err != nil {
					return err
				}
				result, outcome = record, OpenRestarted
				return nil
			case errors.Is(err, redis.Nil):
				// stale index; fall through and create
			default:
				return err
			}
		}

		id, err := s.redis.Incr(ctx, s.sequenceKey()).Result()
		if err != nil {
			return err
		}
		code, err := mint(req.UID)
		if err != nil {
			return err
		}

		record := &RecoveryRecord{
			UID:       req.UID,
			ID:        id,
			UserID:    req.UserID,
			Type:      req.Type,
			MethodID:  req.MethodID,
			Masked:    req.Masked,
			CreatedAt: req.Now.Unix(),
		}
		restart(record, code, req.Now, req.TTL)

		if err := s.write(ctx, tx, record, req.Now); err != nil {
			return err
		}
		result, outcome = record, OpenCreated
		return nil
	}, userKey)
	if err != nil {
		return nil, 0, s.mapError(err)
	}

	return result, outcome, nil
}

// Get returns the record regardless of expiry; expired records stay
// restartable until retention elapses.
func (s *RecoveryStore) Get(ctx context.Context, uid string) (*RecoveryRecord, error) {
	data, err := s.redis.Get(ctx, s.recordKey(uid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecoveryNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
	}

	return decodeRecoveryRecord(data)
}

// Reissue replaces the outstanding code and expiry. A non-zero kind also
// switches the channel. Attempts are preserved; locked records are refused.
func (s *RecoveryStore) Reissue(
	ctx context.Context,
	uid string,
	kind uint8,
	methodID string,
	masked string,
	now time.Time,
	ttl time.Duration,
	guard limiters.AttemptGuard,
	mint MintFunc,
) (*RecoveryRecord, error) {
	key := s.recordKey(uid)
	var result *RecoveryRecord

	err := s.watch(ctx, func(tx *redis.Tx) error {
		record, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if guard.IsLocked(record.Attempts) {
			result = record
			return ErrRecoveryLocked
		}

		code, err := mint(record.UID)
		if err != nil {
			return err
		}
		if kind != 0 {
			record.Type = kind
			record.MethodID = methodID
			record.Masked = masked
		}
		attempts := record.Attempts
		restart(record, code, now, ttl)
		record.Attempts = attempts

		if err := s.write(ctx, tx, record, now); err != nil {
			return err
		}
		result = record
		return nil
	}, key)
	if err != nil {
		return result, s.mapError(err)
	}

	return result, nil
}

// Verify checks a submitted code in one optimistic transaction.
//
// Locked records fail with ErrRecoveryLocked before the code is examined. A
// mismatch advances the attempt counter. A match on an expired record restarts
// it with a freshly minted code and fails with ErrRecoveryExpired. A match on a
// live record deletes it. The returned record reflects the stored state the
// outcome was decided on.
func (s *RecoveryStore) Verify(
	ctx context.Context,
	uid string,
	digest func(salt [16]byte) [32]byte,
	now time.Time,
	ttl time.Duration,
	guard limiters.AttemptGuard,
	mint MintFunc,
) (*RecoveryRecord, error) {
	key := s.recordKey(uid)
	var result *RecoveryRecord

	err := s.watch(ctx, func(tx *redis.Tx) error {
		record, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		result = record

		if guard.IsLocked(record.Attempts) {
			return ErrRecoveryLocked
		}

		provided := digest(record.CodeSalt)
		if subtle.ConstantTimeCompare(record.CodeHash[:], provided[:]) != 1 {
			record.Attempts = guard.RecordFailure(record.Attempts)
			if err := s.write(ctx, tx, record, now); err != nil {
				return err
			}
			return ErrRecoveryCodeMismatch
		}

		if guard.ShouldExpireNow(record.ExpiresAt, now) {
			code, err := mint(record.UID)
			if err != nil {
				return err
			}
			restart(record, code, now, ttl)
			if err := s.write(ctx, tx, record, now); err != nil {
				return err
			}
			return ErrRecoveryExpired
		}

		userKey := s.userKey(record.UserID)
		if err := tx.Watch(ctx, userKey).Err(); err != nil {
			return err
		}
		indexed, err := tx.Get(ctx, userKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if indexed == record.UID {
				pipe.Del(ctx, userKey)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return result, s.mapError(err)
	}

	return result, nil
}

// Ping checks the Redis connection.
func (s *RecoveryStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
	}
	return nil
}

func (s *RecoveryStore) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	const maxRetries = 4

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, fn, keys...)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}

	return ErrRecoveryConflict
}

func (s *RecoveryStore) load(ctx context.Context, tx *redis.Tx, key string) (*RecoveryRecord, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecoveryNotFound
		}
		return nil, err
	}
	return decodeRecoveryRecord(data)
}

func (s *RecoveryStore) write(ctx context.Context, tx *redis.Tx, record *RecoveryRecord, now time.Time) error {
	encoded, err := encodeRecoveryRecord(record)
	if err != nil {
		return err
	}

	ttl := time.Unix(record.ExpiresAt, 0).Add(s.retention).Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(record.UID), encoded, ttl)
		pipe.Set(ctx, s.userKey(record.UserID), record.UID, ttl)
		return nil
	})
	return err
}

func (s *RecoveryStore) mapError(err error) error {
	switch {
	case errors.Is(err, ErrRecoveryNotFound),
		errors.Is(err, ErrRecoveryCodeMismatch),
		errors.Is(err, ErrRecoveryLocked),
		errors.Is(err, ErrRecoveryExpired),
		errors.Is(err, ErrRecoveryConflict):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
	}
}

func restart(record *RecoveryRecord, code RecoveryCode, now time.Time, ttl time.Duration) {
	record.CodeSalt = code.Salt
	record.CodeHash = code.Hash
	record.SealedCode = append([]byte(nil), code.Sealed...)
	record.Attempts = 0
	record.SentAt = now.Unix()
	record.ExpiresAt = now.Add(ttl).Unix()
}

func encodeRecoveryRecord(record *RecoveryRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recoveryRecordVersionV1)
	buf.WriteByte(record.Type)

	for _, v := range []any{record.Attempts, record.ID, record.CreatedAt, record.SentAt, record.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	for _, field := range [][]byte{[]byte(record.UID), []byte(record.UserID), []byte(record.MethodID), []byte(record.Masked), record.SealedCode} {
		if err := writeField(&buf, field); err != nil {
			return nil, err
		}
	}

	buf.Write(record.CodeSalt[:])
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeRecoveryRecord(data []byte) (*RecoveryRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recoveryRecordVersionV1 {
		return nil, errors.New("invalid recovery record version " + strconv.Itoa(int(version)))
	}

	kind, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &RecoveryRecord{Type: kind}
	for _, v := range []any{&record.Attempts, &record.ID, &record.CreatedAt, &record.SentAt, &record.ExpiresAt} {
		if err := binary.Read(reader, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	fields := make([][]byte, 5)
	for i := range fields {
		if fields[i], err = readField(reader); err != nil {
			return nil, err
		}
	}
	record.UID = string(fields[0])
	record.UserID = string(fields[1])
	record.MethodID = string(fields[2])
	record.Masked = string(fields[3])
	record.SealedCode = fields[4]

	if _, err := io.ReadFull(reader, record.CodeSalt[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}

func writeField(buf *bytes.Buffer, field []byte) error {
	if len(field) > 65535 {
		return errors.New("recovery record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(field))); err != nil {
		return err
	}
	buf.Write(field)
	return nil
}

func readField(reader *bytes.Reader) ([]byte, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}
