package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStreamSink appends events to a Redis stream with XADD. MaxLen > 0
// caps the stream approximately.
type RedisStreamSink struct {
	redis  redis.UniversalClient
	stream string
	maxLen int64
}

func NewRedisStreamSink(redisClient redis.UniversalClient, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = "rcv:events"
	}
	return &RedisStreamSink{
		redis:  redisClient,
		stream: stream,
		maxLen: maxLen,
	}
}

func (s *RedisStreamSink) Record(ctx context.Context, event Event) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"timestamp":    event.Timestamp.UTC().Format(time.RFC3339Nano),
			"event_type":   event.EventType,
			"reset_uid":    event.RecoveryUID,
			"reset_id":     strconv.FormatInt(event.RecoveryID, 10),
			"user_id":      event.UserID,
			"type":         event.Type,
			"attempts":     strconv.Itoa(event.Attempts),
			"method_value": event.Destination,
			"ip":           event.IP,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	return s.redis.XAdd(ctx, args).Err()
}
