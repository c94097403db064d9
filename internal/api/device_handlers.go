package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/maciej-or/hikvision-next/internal/device"
	"github.com/maciej-or/hikvision-next/internal/isapi"
	"github.com/maciej-or/hikvision-next/internal/metrics"
)

type DeviceHandler struct {
	Manager *device.Manager
	log     zerolog.Logger
}

func NewDeviceHandler(mgr *device.Manager, log zerolog.Logger) *DeviceHandler {
	return &DeviceHandler{Manager: mgr, log: log}
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// isapiError maps a failed device call onto a response. The device being
// unreachable is the gateway's fault, not the caller's.
func isapiError(w http.ResponseWriter, err error) {
	device.ObserveError(err)
	if errors.Is(err, isapi.ErrConnectivity) {
		respondError(w, http.StatusBadGateway, "device unreachable")
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

func (h *DeviceHandler) device(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	d, ok := h.Manager.BySerial(r.PathValue("serial"))
	if !ok {
		respondError(w, http.StatusNotFound, "unknown device")
		return nil, false
	}
	return d, true
}

type deviceSummary struct {
	Serial   string `json:"serial"`
	Name     string `json:"name"`
	Model    string `json:"model"`
	Firmware string `json:"firmware"`
	Host     string `json:"host"`
	IsNVR    bool   `json:"is_nvr"`
	Online   bool   `json:"online"`
	Cameras  int    `json:"cameras"`
	Events   int    `json:"events"`
}

// GET /api/devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	devices := h.Manager.All()
	out := make([]deviceSummary, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceSummary{
			Serial:   d.Serial(),
			Name:     d.Client.DeviceInfo.Name,
			Model:    d.Client.DeviceInfo.Model,
			Firmware: d.Client.DeviceInfo.Firmware,
			Host:     d.Client.Host(),
			IsNVR:    d.Client.DeviceInfo.IsNVR,
			Online:   d.Online(),
			Cameras:  len(d.Client.Cameras),
			Events:   len(d.Client.SupportedEvents),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// GET /api/devices/{serial}
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	resp := map[string]any{
		"device_info":  d.Client.DeviceInfo,
		"capabilities": d.Client.Capabilities,
		"protocols":    d.Client.Protocols,
		"online":       d.Online(),
	}
	if enabled, known := d.HolidayEnabled(); known {
		resp["holiday_enabled"] = enabled
	}
	if server := d.AlarmServer(); server != nil {
		resp["alarm_server"] = server
	}
	respondJSON(w, http.StatusOK, resp)
}

// GET /api/devices/{serial}/cameras
func (h *DeviceHandler) Cameras(w http.ResponseWriter, r *http.Request) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	cameras := d.Client.Cameras
	if cameras == nil {
		cameras = []isapi.Camera{}
	}
	respondJSON(w, http.StatusOK, cameras)
}

type eventView struct {
	isapi.EventInfo
	Enabled *bool `json:"enabled,omitempty"`
	Active  bool  `json:"active"`
}

// GET /api/devices/{serial}/events
func (h *DeviceHandler) Events(w http.ResponseWriter, r *http.Request) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	out := make([]eventView, 0, len(d.Client.SupportedEvents))
	for _, ev := range d.Client.SupportedEvents {
		view := eventView{EventInfo: ev, Active: d.AlertActive(ev.UniqueID)}
		if enabled, known := d.EnabledState(ev.UniqueID); known {
			view.Enabled = &enabled
		}
		out = append(out, view)
	}
	respondJSON(w, http.StatusOK, out)
}

// PUT /api/devices/{serial}/events/{uniqueID}
func (h *DeviceHandler) SetEventEnabled(w http.ResponseWriter, r *http.Request) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	ev, ok := d.EventByUniqueID(r.PathValue("uniqueID"))
	if !ok {
		respondError(w, http.StatusNotFound, "unknown event")
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := d.Client.SetEventEnabledState(r.Context(), ev, req.Enabled); err != nil {
		var conflict *isapi.MutexConflictError
		if errors.As(err, &conflict) {
			device.ObserveError(err)
			respondJSON(w, http.StatusConflict, map[string]any{
				"error":     "mutually exclusive function enabled",
				"event_id":  conflict.EventID,
				"conflicts": conflict.Issues,
			})
			return
		}
		isapiError(w, err)
		return
	}
	d.SetEnabledState(ev.UniqueID, req.Enabled)
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// GET /api/devices/{serial}/cameras/{id}/snapshot
func (h *DeviceHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid camera id")
		return
	}
	cam, ok := d.Client.CameraByID(id)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown camera")
		return
	}

	// Main stream first; fall back to whatever variant the camera has.
	var stream *isapi.CameraStreamInfo
	for i := range cam.Streams {
		if stream == nil || cam.Streams[i].TypeID < stream.TypeID {
			stream = &cam.Streams[i]
		}
	}
	if stream == nil {
		respondError(w, http.StatusNotFound, "camera has no streams")
		return
	}

	width, _ := strconv.Atoi(r.URL.Query().Get("width"))
	height, _ := strconv.Atoi(r.URL.Query().Get("height"))

	wasAlternate := stream.UseAlternatePictureURL
	img, err := d.Client.GetCameraImage(r.Context(), stream, width, height)
	if stream.UseAlternatePictureURL && !wasAlternate {
		metrics.SnapshotFallbacksTotal.Inc()
	}
	if err != nil {
		isapiError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(img)
}

// GET /api/devices/{serial}/storage
func (h *DeviceHandler) Storage(w http.ResponseWriter, r *http.Request) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	if err := d.RefreshStorage(r.Context()); err != nil {
		isapiError(w, err)
		return
	}
	storage := d.Client.Storage
	if storage == nil {
		storage = []isapi.StorageInfo{}
	}
	respondJSON(w, http.StatusOK, storage)
}

// POST /api/devices/{serial}/reboot
func (h *DeviceHandler) Reboot(w http.ResponseWriter, r *http.Request) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	if err := d.Client.Reboot(r.Context()); err != nil {
		isapiError(w, err)
		return
	}
	h.log.Info().Str("serial", d.Serial()).Msg("device reboot requested")
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "rebooting"})
}

// POST /api/devices/{serial}/isapi
//
// Raw passthrough for diagnostics. The path is relative to /ISAPI/; a JSON
// payload is sent as-is, anything else as XML.
func (h *DeviceHandler) RawISAPI(w http.ResponseWriter, r *http.Request) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}

	var req struct {
		Method  string `json:"method"`
		Path    string `json:"path"`
		Payload string `json:"payload,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		respondError(w, http.StatusBadRequest, "invalid method")
		return
	}
	path := strings.TrimPrefix(req.Path, "/ISAPI/")
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		respondError(w, http.StatusBadRequest, "missing path")
		return
	}

	var opts []isapi.RequestOption
	if req.Payload != "" {
		if strings.HasPrefix(strings.TrimSpace(req.Payload), "{") {
			opts = append(opts, isapi.WithJSONBody(json.RawMessage(req.Payload)))
		} else {
			opts = append(opts, isapi.WithXMLBody(req.Payload))
		}
	}

	body, err := d.Client.RequestRaw(r.Context(), method, path, opts...)
	if err != nil {
		isapiError(w, err)
		return
	}
	if strings.HasPrefix(strings.TrimSpace(string(body)), "{") {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "application/xml")
	}
	w.Write(body)
}
