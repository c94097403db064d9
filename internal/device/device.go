package device

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/maciej-or/hikvision-next/internal/config"
	"github.com/maciej-or/hikvision-next/internal/isapi"
	"github.com/maciej-or/hikvision-next/internal/metrics"
)

// AlarmPath is the intake route pushed to devices as their notification
// target.
const AlarmPath = "/api/notifications"

// Device wraps one ISAPI session with the daemon-side state the REST surface
// and the bridge need: last observed event enabled bits, alert hold windows,
// holiday and notification-host snapshots.
type Device struct {
	Client *isapi.Client
	log    zerolog.Logger

	online atomic.Bool

	mu             sync.RWMutex
	enabled        map[string]bool
	activeUntil    map[string]time.Time
	holidayEnabled *bool
	alarmServer    *isapi.AlarmServer
}

func New(cfg config.Device, log zerolog.Logger) *Device {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.VerifySSL {
		// Self-signed device certificates are the norm.
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	opts := []isapi.Option{
		isapi.WithLogger(log),
		isapi.WithTransport(countingTransport{base: tr}),
	}
	if cfg.RTSPPort > 0 {
		opts = append(opts, isapi.WithRTSPPort(cfg.RTSPPort))
	}
	return &Device{
		Client:      isapi.New(cfg.Host, cfg.Username, cfg.Password, opts...),
		log:         log.With().Str("device", cfg.Host).Logger(),
		enabled:     make(map[string]bool),
		activeUntil: make(map[string]time.Time),
	}
}

// Connect runs device discovery and, when notification hosts are supported
// and an external URL is configured, points the device's first host at this
// daemon. Event enabled states stay unknown until the first poll round.
func (d *Device) Connect(ctx context.Context, externalURL string) error {
	if err := d.Client.GetHardwareInfo(ctx); err != nil {
		ObserveError(err)
		return err
	}
	d.setOnline(true)

	if externalURL != "" && d.Client.Capabilities.SupportAlarmServer {
		if err := d.Client.SetAlarmServer(ctx, externalURL, AlarmPath); err != nil {
			ObserveError(err)
			d.log.Warn().Err(err).Msg("could not set the device notification target")
		}
		if err := d.RefreshAlarmServer(ctx); err != nil {
			ObserveError(err)
		}
	}
	return nil
}

func (d *Device) Online() bool { return d.online.Load() }

func (d *Device) setOnline(online bool) {
	if online {
		if d.online.CompareAndSwap(false, true) {
			metrics.DevicesOnline.Inc()
		}
	} else {
		if d.online.CompareAndSwap(true, false) {
			metrics.DevicesOnline.Dec()
		}
	}
}

func (d *Device) Serial() string { return d.Client.DeviceInfo.SerialNo }

// CamerasByChannel indexes the enumerated cameras by channel id.
func (d *Device) CamerasByChannel() map[int]isapi.Camera {
	out := make(map[int]isapi.Camera, len(d.Client.Cameras))
	for _, cam := range d.Client.Cameras {
		out[cam.ID] = cam
	}
	return out
}

// EventsForCamera returns the events bound to one camera's channel.
func (d *Device) EventsForCamera(cam isapi.Camera) []isapi.EventInfo {
	var events []isapi.EventInfo
	for _, ev := range d.Client.SupportedEvents {
		if ev.ChannelID == cam.ID {
			events = append(events, ev)
		}
	}
	return events
}

// DeviceEvents returns the events not bound to any video channel. On an NVR
// only the IO family lives at device level; channel-less events like PIR
// belong to standalone cameras.
func (d *Device) DeviceEvents() []isapi.EventInfo {
	var events []isapi.EventInfo
	for _, ev := range d.Client.SupportedEvents {
		if ev.ChannelID != 0 {
			continue
		}
		if d.Client.DeviceInfo.IsNVR && ev.ID != isapi.EventIO {
			continue
		}
		events = append(events, ev)
	}
	return events
}

func (d *Device) EventByUniqueID(uniqueID string) (isapi.EventInfo, bool) {
	for _, ev := range d.Client.SupportedEvents {
		if ev.UniqueID == uniqueID {
			return ev, true
		}
	}
	return isapi.EventInfo{}, false
}

// ResolveAlertChannel maps the channel id carried in an alert onto the
// enumerated cameras. NVRs report proxied channels offset by 32 under the
// dynamic id; the camera whose input port matches wins, plain subtraction is
// the fallback.
func (d *Device) ResolveAlertChannel(alert *isapi.AlertInfo) {
	if alert.ChannelID <= 32 {
		return
	}
	for _, cam := range d.Client.Cameras {
		if cam.InputPort == alert.ChannelID-32 {
			alert.ChannelID = cam.ID
			return
		}
	}
	alert.ChannelID -= 32
}

// SetEnabledState records the last observed enabled bit for an event.
func (d *Device) SetEnabledState(uniqueID string, enabled bool) {
	d.mu.Lock()
	d.enabled[uniqueID] = enabled
	d.mu.Unlock()
}

// EnabledState returns the last observed enabled bit; known is false until a
// poll round or a toggle has seen one.
func (d *Device) EnabledState(uniqueID string) (enabled, known bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	enabled, known = d.enabled[uniqueID]
	return enabled, known
}

// MarkAlert holds the event's sensor active until the deadline. Repeated
// alerts keep pushing the deadline forward.
func (d *Device) MarkAlert(uniqueID string, until time.Time) {
	d.mu.Lock()
	d.activeUntil[uniqueID] = until
	d.mu.Unlock()
}

// AlertActive reports whether the event's alert window is still open.
func (d *Device) AlertActive(uniqueID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	until, ok := d.activeUntil[uniqueID]
	return ok && time.Now().Before(until)
}

// RefreshEventStates re-reads the enabled bit of every supported event.
// Per-event failures are counted and skipped; a connectivity failure aborts
// the round.
func (d *Device) RefreshEventStates(ctx context.Context) error {
	for _, ev := range d.Client.SupportedEvents {
		enabled, err := d.Client.GetEventEnabledState(ctx, ev)
		if err != nil {
			ObserveError(err)
			if errors.Is(err, isapi.ErrConnectivity) || ctx.Err() != nil {
				return err
			}
			continue
		}
		d.SetEnabledState(ev.UniqueID, enabled)
	}
	return nil
}

// RefreshStorage re-reads the recording media inventory.
func (d *Device) RefreshStorage(ctx context.Context) error {
	storage, err := d.Client.GetStorageDevices(ctx)
	if err != nil {
		return err
	}
	d.Client.Storage = storage
	return nil
}

func (d *Device) RefreshHoliday(ctx context.Context) error {
	enabled, err := d.Client.GetHolidayEnabledState(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.holidayEnabled = &enabled
	d.mu.Unlock()
	return nil
}

func (d *Device) HolidayEnabled() (enabled, known bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.holidayEnabled == nil {
		return false, false
	}
	return *d.holidayEnabled, true
}

func (d *Device) RefreshAlarmServer(ctx context.Context) error {
	server, err := d.Client.GetAlarmServer(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.alarmServer = server
	d.mu.Unlock()
	return nil
}

func (d *Device) AlarmServer() *isapi.AlarmServer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.alarmServer
}

// countingTransport counts every wire request, including auth retries the
// client layer hides.
type countingTransport struct {
	base http.RoundTripper
}

func (t countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		metrics.ISAPIRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		return resp, err
	}
	metrics.ISAPIRequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

// ObserveError classifies a failed ISAPI operation for the error counter.
func ObserveError(err error) {
	if err == nil {
		return
	}
	metrics.ISAPIErrorsTotal.WithLabelValues(errKind(err)).Inc()
}

func errKind(err error) string {
	switch {
	case errors.Is(err, isapi.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, isapi.ErrForbidden):
		return "forbidden"
	case errors.Is(err, isapi.ErrConnectivity):
		return "connectivity"
	case errors.Is(err, isapi.ErrMutexConflict):
		return "mutex_conflict"
	case errors.Is(err, isapi.ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, isapi.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, isapi.ErrMalformed):
		return "malformed"
	default:
		return "other"
	}
}
