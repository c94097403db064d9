package bridge

import (
	"time"

	"github.com/google/uuid"
)

// Event is the normalized alert envelope pushed to NATS and handed to
// in-process subscribers.
type Event struct {
	EventID      uuid.UUID `json:"event_id"`
	Source       string    `json:"source"` // "hikvision"
	DeviceSerial string    `json:"device_serial"`
	DeviceName   string    `json:"device_name"`

	CameraID   int    `json:"camera_id,omitempty"`
	CameraName string `json:"camera_name,omitempty"`

	EventType       string `json:"event_type"` // canonical id, e.g. "motiondetection"
	IOPortID        int    `json:"io_port_id,omitempty"`
	RegionID        int    `json:"region_id,omitempty"`
	DetectionTarget string `json:"detection_target,omitempty"`

	// UniqueID ties the alert back to the resolved event entry on the
	// device, e.g. "ds_2cd2386g2_1_motiondetection".
	UniqueID string `json:"unique_id"`

	OccurredAt time.Time `json:"occurred_at"`
	ReceivedAt time.Time `json:"received_at"`

	DedupKey string `json:"dedup_key"`
}
