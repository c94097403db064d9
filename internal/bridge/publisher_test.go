package bridge

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// fakeConn fails the first n publishes and records every attempt.
type fakeConn struct {
	failFirst int
	subjects  []string
	payloads  [][]byte
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	if len(f.subjects) <= f.failFirst {
		return errors.New("nats: connection closed")
	}
	return nil
}

func TestPublisherRetriesUntilSuccess(t *testing.T) {
	conn := &fakeConn{failFirst: 2}
	pub := NewPublisher(conn, "hikvision.alerts", 3)

	ev := &Event{
		EventID:      uuid.New(),
		Source:       "hikvision",
		DeviceSerial: "DS-TEST",
		EventType:    "motiondetection",
		UniqueID:     "ds_test_1_motiondetection",
		OccurredAt:   time.Now().UTC(),
		ReceivedAt:   time.Now().UTC(),
	}
	err := pub.Publish(ev)

	assert.NoError(t, err)
	assert.Len(t, conn.subjects, 3, "two failed attempts plus the one that landed")
	assert.Equal(t, "hikvision.alerts", conn.subjects[0])

	var got Event
	assert.NoError(t, json.Unmarshal(conn.payloads[2], &got))
	assert.Equal(t, ev.EventID, got.EventID)
	assert.Equal(t, ev.EventType, got.EventType)
	assert.Equal(t, ev.UniqueID, got.UniqueID)
}

func TestPublisherGivesUp(t *testing.T) {
	conn := &fakeConn{failFirst: 10}
	pub := NewPublisher(conn, "hikvision.alerts", 2)

	err := pub.Publish(&Event{EventID: uuid.New(), EventType: "io"})

	assert.Error(t, err)
	assert.Len(t, conn.subjects, 3, "initial attempt plus two retries")
}
