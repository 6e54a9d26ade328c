// Package eventsink publishes station lifecycle records to an external
// consumer, mirroring the role the teacher's message.KafkaProducer plays for
// OCPP-derived integration events.
package eventsink

import "time"

// Kind classifies a Record per spec.md §6.3.
type Kind string

const (
	KindConnected    Kind = "station.connected"
	KindDisconnected Kind = "station.disconnected"
	KindTransaction  Kind = "station.transaction"
	KindProfile      Kind = "station.profile"
	KindError        Kind = "station.error"
)

// Record is the generic event emitted by a session.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	StationID   string    `json:"stationId"`
	Kind        Kind      `json:"kind"`
	Description string    `json:"description"`
}

// Sink publishes Records. Implementations must not block the caller
// indefinitely; a slow or unavailable sink should drop or buffer rather than
// stall the session that produced the record.
type Sink interface {
	Publish(r Record) error
	Close() error
}

// NoopSink discards every record. It is the zero-value default used when no
// event sink collaborator is wired (e.g. EventSink.Brokers is empty).
type NoopSink struct{}

func (NoopSink) Publish(Record) error { return nil }
func (NoopSink) Close() error         { return nil }
