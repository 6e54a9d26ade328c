package eventsink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopSink_DiscardsWithoutError(t *testing.T) {
	var s Sink = NoopSink{}
	err := s.Publish(Record{StationID: "PY-SIM-0001", Kind: KindConnected, Timestamp: time.Now()})
	assert.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestRecord_FieldsRoundTrip(t *testing.T) {
	r := Record{
		StationID:   "PY-SIM-0002",
		Kind:        KindTransaction,
		Description: "transaction started",
		Timestamp:   time.Date(2026, 1, 8, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, KindTransaction, r.Kind)
	assert.Equal(t, "PY-SIM-0002", r.StationID)
}
