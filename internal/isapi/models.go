package isapi

import "time"

// ConnectionType says how a channel reaches the device: directly attached
// (standalone cameras, analog NVR inputs) or proxied through an NVR.
type ConnectionType string

const (
	ConnectionDirect  ConnectionType = "Direct"
	ConnectionProxied ConnectionType = "Proxied"
)

// DeviceInfo is the normalized System/deviceInfo document.
type DeviceInfo struct {
	Name         string `json:"name"`
	DeviceType   string `json:"device_type"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SerialNo     string `json:"serial_no"`
	Firmware     string `json:"firmware"`
	MacAddress   string `json:"mac_address"`
	IPAddress    string `json:"ip_address"`
	IsNVR        bool   `json:"is_nvr"`
}

// Capabilities holds the feature flags derived from System/capabilities.
// Booleans come from the vendor's "true"/"false" strings.
type Capabilities struct {
	AnalogCamerasInputs  int  `json:"analog_cameras_inputs"`
	DigitalCamerasInputs int  `json:"digital_cameras_inputs"`
	SupportHolidayMode   bool `json:"support_holiday_mode"`
	SupportAlarmServer   bool `json:"support_alarm_server"`
	SupportChannelZero   bool `json:"support_channel_zero"`
	SupportMutexChecking bool `json:"support_mutex_checking"`
	SupportPIR           bool `json:"support_pir"`
	SupportSceneChange   bool `json:"support_scene_change"`
	SupportMultiChannel  bool `json:"support_multi_channel"`
	InputPorts           int  `json:"input_ports"`
	OutputPorts          int  `json:"output_ports"`
}

// CameraStreamInfo is one stream variant of a channel. The stream id encodes
// channel and variant: channel*100 + type.
type CameraStreamInfo struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	TypeID  int    `json:"type_id"`
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
	Codec   string `json:"codec"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Audio   bool   `json:"audio"`

	// Some cameras reject Streaming/channels/{id}/picture and require the
	// StreamingProxy path instead; once detected, the switch is permanent
	// for the stream.
	UseAlternatePictureURL bool `json:"-"`
}

// Camera is the unified view of a video channel: a standalone camera, an IP
// camera proxied behind an NVR, or an analog NVR input.
type Camera struct {
	ID         int                `json:"id"`
	Name       string             `json:"name"`
	Model      string             `json:"model"`
	SerialNo   string             `json:"serial_no"`
	Firmware   string             `json:"firmware,omitempty"`
	InputPort  int                `json:"input_port"`
	Connection ConnectionType     `json:"connection_type"`
	IPAddress  string             `json:"ip_address,omitempty"`
	IPPort     int                `json:"ip_port,omitempty"`
	Protocol   string             `json:"protocol,omitempty"`
	Streams    []CameraStreamInfo `json:"streams"`
}

// EventInfo is one resolved (event type, channel / IO port) pair the device
// can notify about.
type EventInfo struct {
	ID        string `json:"id"`
	ChannelID int    `json:"channel_id"`
	IOPortID  int    `json:"io_port_id"`
	UniqueID  string `json:"unique_id"`
	URL       string `json:"url"`
	// Disabled marks events whose notifications do not reach the
	// surveillance center; they exist but the device will not push them.
	Disabled bool `json:"disabled"`
	// IsProxy records that the trigger listed the channel under the dynamic
	// (proxied) field name.
	IsProxy bool `json:"is_proxy"`
}

// StorageInfo is one HDD or NAS entry of ContentMgmt/Storage. Capacity and
// free space are megabytes as reported.
type StorageInfo struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Capacity  int64  `json:"capacity"`
	Freespace int64  `json:"freespace"`
	Property  string `json:"property,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

// ProtocolsInfo carries the ports discovered from Security/adminAccesses.
type ProtocolsInfo struct {
	RtspPort int `json:"rtsp_port"`
}

// AlarmServer is the device's HTTP event notification target.
type AlarmServer struct {
	IPAddress    string `json:"ip_address"`
	PortNo       int    `json:"port_no"`
	URL          string `json:"url"`
	ProtocolType string `json:"protocol_type"`
}

// AlertInfo is a parsed EventNotificationAlert message.
type AlertInfo struct {
	ChannelID       int       `json:"channel_id"`
	IOPortID        int       `json:"io_port_id"`
	EventID         string    `json:"event_id"`
	DeviceSerialNo  string    `json:"device_serial_no,omitempty"`
	MacAddress      string    `json:"mac_address,omitempty"`
	RegionID        int       `json:"region_id"`
	DetectionTarget string    `json:"detection_target,omitempty"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
}
