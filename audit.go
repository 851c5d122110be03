package goRecover

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goRecover/internal/audit"
	"github.com/redis/go-redis/v9"
)

const (
	// EventVerificationSuccessful is an exported constant or variable used by the recovery engine.
	EventVerificationSuccessful = internalaudit.EventVerificationSuccessful
	// EventVerificationFailed is an exported constant or variable used by the recovery engine.
	EventVerificationFailed = internalaudit.EventVerificationFailed
)

// RecoveryEvent is written for every verification outcome. It carries the
// record identifiers, the channel, the attempt count at the time of the event
// and the masked destination. It never carries the submitted code.
type RecoveryEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"`
	RecoveryUID string    `json:"reset_uid"`
	RecoveryID  int64     `json:"reset_id"`
	UserID      string    `json:"user_id,omitempty"`
	Type        string    `json:"type"`
	Attempts    int       `json:"attempts"`
	Destination string    `json:"method_value,omitempty"`
	IP          string    `json:"ip,omitempty"`
}

// EventLog is the append-only verification log. A successful validation is
// only completed after Record returns nil.
type EventLog interface {
	Record(ctx context.Context, event RecoveryEvent) error
}

// NoOpEventLog discards events.
type NoOpEventLog struct{}

func (NoOpEventLog) Record(context.Context, RecoveryEvent) error { return nil }

// ChannelEventLog delivers events to a buffered channel.
type ChannelEventLog struct {
	out chan RecoveryEvent
}

// NewChannelEventLog describes the newchanneleventlog operation and its observable behavior.
//
// NewChannelEventLog does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewChannelEventLog(buffer int) *ChannelEventLog {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelEventLog{out: make(chan RecoveryEvent, buffer)}
}

func (l *ChannelEventLog) Record(ctx context.Context, event RecoveryEvent) error {
	select {
	case l.out <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the receive side of the log.
func (l *ChannelEventLog) Events() <-chan RecoveryEvent {
	return l.out
}

type sinkEventLog struct {
	sink internalaudit.Sink
}

func (l sinkEventLog) Record(ctx context.Context, event RecoveryEvent) error {
	return l.sink.Record(ctx, internalaudit.Event(event))
}

// NewJSONWriterEventLog writes one JSON object per event to w.
func NewJSONWriterEventLog(w io.Writer) EventLog {
	return sinkEventLog{sink: internalaudit.NewJSONWriterSink(w)}
}

// NewRedisStreamEventLog appends events to a Redis stream. maxLen > 0 trims
// the stream approximately.
func NewRedisStreamEventLog(client redis.UniversalClient, stream string, maxLen int64) EventLog {
	return sinkEventLog{sink: internalaudit.NewRedisStreamSink(client, stream, maxLen)}
}

type eventLogSink struct {
	log EventLog
}

func (s eventLogSink) Record(ctx context.Context, event internalaudit.Event) error {
	return s.log.Record(ctx, RecoveryEvent(event))
}
