package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maciej-or/hikvision-next/internal/bridge"
	"github.com/maciej-or/hikvision-next/internal/device"
	"github.com/maciej-or/hikvision-next/internal/isapi"
	"github.com/maciej-or/hikvision-next/internal/metrics"
)

// Multipart alerts can carry a JPEG attachment.
const maxNotificationBytes = 16 << 20

// NotificationHandler is the alarm intake. Devices POST EventNotificationAlert
// messages here; accepted ones become bridge events, the rest are counted and
// answered 200 so the device does not retry.
type NotificationHandler struct {
	Manager  *device.Manager
	Notifier *bridge.Notifier
	Pub      *bridge.Publisher // nil disables NATS publishing
	Dedup    *bridge.Dedup
	Window   time.Duration
	log      zerolog.Logger
}

func NewNotificationHandler(mgr *device.Manager, notifier *bridge.Notifier, pub *bridge.Publisher, dedup *bridge.Dedup, window time.Duration, log zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		Manager:  mgr,
		Notifier: notifier,
		Pub:      pub,
		Dedup:    dedup,
		Window:   window,
		log:      log,
	}
}

// POST / and POST /api/notifications
func (h *NotificationHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err != nil {
		metrics.AlertsDroppedTotal.WithLabelValues("malformed").Inc()
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	xmlPart, _, err := isapi.ParseNotificationBody(r.Header.Get("Content-Type"), body)
	if err != nil {
		metrics.AlertsDroppedTotal.WithLabelValues("malformed").Inc()
		respondError(w, http.StatusBadRequest, "unparseable notification")
		return
	}

	alert, err := isapi.ParseEventNotification(xmlPart)
	if err != nil {
		if errors.Is(err, isapi.ErrUnknownEvent) {
			// Firmwares push heartbeat and vendor-specific types freely.
			metrics.AlertsDroppedTotal.WithLabelValues("unknown_event").Inc()
			h.log.Debug().Err(err).Msg("alert with an unsupported event type")
			w.WriteHeader(http.StatusOK)
			return
		}
		metrics.AlertsDroppedTotal.WithLabelValues("malformed").Inc()
		respondError(w, http.StatusBadRequest, "unparseable notification")
		return
	}

	d, ok := h.Manager.Resolve(alert.DeviceSerialNo, alert.MacAddress)
	if !ok {
		metrics.AlertsDroppedTotal.WithLabelValues("unknown_device").Inc()
		h.log.Warn().
			Str("serial", alert.DeviceSerialNo).
			Str("mac", alert.MacAddress).
			Msg("alert from an unknown device")
		w.WriteHeader(http.StatusOK)
		return
	}

	d.ResolveAlertChannel(&alert)
	ev := h.buildEvent(d, alert)
	metrics.AlertsReceivedTotal.WithLabelValues(ev.EventType).Inc()

	// The sensor stays active while alerts keep arriving, duplicates
	// included.
	d.MarkAlert(ev.UniqueID, ev.ReceivedAt.Add(h.Window))

	if h.Dedup.IsDuplicate(ev.DedupKey) {
		metrics.AlertsDroppedTotal.WithLabelValues("duplicate").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.Pub != nil {
		if err := h.Pub.Publish(&ev); err != nil {
			metrics.PublishFailuresTotal.Inc()
			h.log.Error().Err(err).Str("event_type", ev.EventType).Msg("could not publish the event")
		}
	}
	h.Notifier.Broadcast(ev)

	h.log.Debug().
		Str("serial", ev.DeviceSerial).
		Str("event_type", ev.EventType).
		Int("camera_id", ev.CameraID).
		Msg("alert accepted")
	w.WriteHeader(http.StatusOK)
}

func (h *NotificationHandler) buildEvent(d *device.Device, alert isapi.AlertInfo) bridge.Event {
	info, listed := d.Client.EventForAlert(alert)
	if !listed {
		h.log.Debug().
			Str("event_type", alert.EventID).
			Int("channel_id", alert.ChannelID).
			Msg("alert for an event the device never listed")
	}

	occurred := alert.Timestamp
	now := time.Now()
	if occurred.IsZero() {
		occurred = now
	}

	ev := bridge.Event{
		EventID:         uuid.New(),
		Source:          "hikvision",
		DeviceSerial:    d.Serial(),
		DeviceName:      d.Client.DeviceInfo.Name,
		EventType:       alert.EventID,
		IOPortID:        alert.IOPortID,
		RegionID:        alert.RegionID,
		DetectionTarget: alert.DetectionTarget,
		UniqueID:        info.UniqueID,
		OccurredAt:      occurred,
		ReceivedAt:      now,
	}
	if cam, ok := d.Client.CameraByID(alert.ChannelID); ok {
		ev.CameraID = cam.ID
		ev.CameraName = cam.Name
	} else if alert.ChannelID != 0 {
		ev.CameraID = alert.ChannelID
	}
	ev.DedupKey = bridge.BuildDedupKey(ev.DeviceSerial, ev.UniqueID, occurred, h.Window)
	return ev
}
