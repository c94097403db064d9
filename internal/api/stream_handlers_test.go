package api_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/maciej-or/hikvision-next/internal/bridge"
)

func TestEventStream(t *testing.T) {
	fx := newAPIFixture(t)

	wsURL := "ws" + strings.TrimPrefix(fx.ts.URL, "http") + "/api/events/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// The handler subscribes after the upgrade; give it a moment before
	// broadcasting.
	time.Sleep(50 * time.Millisecond)

	sent := bridge.Event{
		EventID:      uuid.New(),
		Source:       "hikvision",
		DeviceSerial: testSerial,
		EventType:    "motiondetection",
		UniqueID:     testUniqueIDMD,
	}
	fx.notifier.Broadcast(sent)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got bridge.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got.EventID != sent.EventID || got.EventType != "motiondetection" {
		t.Errorf("Unexpected frame: %+v", got)
	}

	// An alert arriving through the intake shows up on the same stream.
	postAlert(t, fx.ts.URL+"/api/notifications", testAlertXML)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got.DeviceSerial != testSerial || got.CameraID != 1 {
		t.Errorf("Unexpected intake frame: %+v", got)
	}
}
