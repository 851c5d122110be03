package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

const (
	EventVerificationSuccessful = "ResetVerificationSuccessful"
	EventVerificationFailed     = "ResetVerificationFailed"
)

// Event is one recovery verification outcome. It never carries the
// submitted code.
type Event struct {
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

// Sink records audit events. A non-nil error means the event was not
// durably accepted.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Record(context.Context, Event) error { return nil }

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Record(ctx context.Context, event Event) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Record(ctx context.Context, event Event) error {
	if s == nil || s.writer == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.writer.Write(data)
	return err
}
