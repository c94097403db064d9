package isapi

import (
	"context"
	"net/http"
	"strings"
)

// GetHardwareInfo runs the full discovery pipeline: base device info,
// capability flags, NVR classification, channel enumeration, supported-event
// resolution, storage inventory and protocol ports. The whole pipeline runs
// in the initialization phase, so absent optional endpoints read as empty
// documents instead of failing discovery.
func (c *Client) GetHardwareInfo(ctx context.Context) error {
	c.BeginInitialization()
	defer c.EndInitialization()

	raw, err := c.Request(ctx, http.MethodGet, "System/deviceInfo")
	if err != nil {
		return err
	}
	c.DeviceInfo = c.parseDeviceInfo(raw)

	caps, err := c.Request(ctx, http.MethodGet, "System/capabilities")
	if err != nil {
		return err
	}
	c.Capabilities = parseCapabilities(caps)

	// The capability document has no alarm-server flag on older firmware;
	// an existing notification-host list is the working signal.
	if server, err := c.GetAlarmServer(ctx); err == nil && server != nil {
		c.Capabilities.SupportAlarmServer = true
	}

	// More than one camera input of any kind means the device records for
	// other cameras, i.e. an NVR/DVR. Standalone multi-channel cameras are
	// picked apart during enumeration instead.
	c.DeviceInfo.IsNVR = c.Capabilities.AnalogCamerasInputs+c.Capabilities.DigitalCamerasInputs > 1

	if err := c.getCameras(ctx); err != nil {
		return err
	}
	if err := c.getSupportedEvents(ctx); err != nil {
		return err
	}
	if err := c.getProtocols(ctx); err != nil {
		return err
	}
	// Storage is informational; devices without recording media answer
	// with all kinds of surprises here.
	if err := c.getStorage(ctx); err != nil {
		c.log.Debug().Err(err).Msg("storage inventory unavailable")
	}
	return nil
}

func (c *Client) parseDeviceInfo(raw map[string]any) DeviceInfo {
	info, _ := DeepGet(raw, "DeviceInfo", map[string]any{}).(map[string]any)
	manufacturer := DeepGetStr(info, "manufacturer")
	if manufacturer == "" {
		manufacturer = "Hikvision"
	}
	return DeviceInfo{
		Name:         DeepGetStr(info, "deviceName"),
		DeviceType:   DeepGetStr(info, "deviceType"),
		Manufacturer: titleCase(manufacturer),
		Model:        DeepGetStr(info, "model"),
		SerialNo:     DeepGetStr(info, "serialNumber"),
		Firmware:     DeepGetStr(info, "firmwareVersion"),
		MacAddress:   DeepGetStr(info, "macAddress"),
		IPAddress:    c.hostname(),
	}
}

func parseCapabilities(raw map[string]any) Capabilities {
	caps, _ := DeepGet(raw, "DeviceCap", map[string]any{}).(map[string]any)
	return Capabilities{
		AnalogCamerasInputs:  DeepGetInt(caps, "SysCap.VideoCap.videoInputPortNums", 0),
		DigitalCamerasInputs: DeepGetInt(caps, "RacmCap.inputProxyNums", 0),
		SupportHolidayMode:   StrToBool(DeepGetStr(caps, "SysCap.isSupportHolidy")),
		SupportChannelZero:   StrToBool(DeepGetStr(caps, "RacmCap.isSupportZeroChan")),
		SupportMutexChecking: StrToBool(DeepGetStr(caps, "isSupportGetmutexFuncErrMsg")),
		SupportPIR:           StrToBool(DeepGetStr(caps, "WLAlarmCap.isSupportPIR")),
		SupportSceneChange:   StrToBool(DeepGetStr(caps, "SmartCap.isSupportSceneChangeDetection")),
		InputPorts:           DeepGetInt(caps, "SysCap.IOCap.IOInputPortNums", 0),
		OutputPorts:          DeepGetInt(caps, "SysCap.IOCap.IOOutputPortNums", 0),
	}
}

// titleCase renders vendor strings like "HIKVISION" as "Hikvision".
func titleCase(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToLower(s)
	return strings.ToUpper(s[:1]) + s[1:]
}

// CameraByID finds an enumerated camera by channel id.
func (c *Client) CameraByID(id int) (*Camera, bool) {
	for i := range c.Cameras {
		if c.Cameras[i].ID == id {
			return &c.Cameras[i], true
		}
	}
	return nil, false
}

// StreamInfo finds a stream variant by its composite stream id.
func (c *Client) StreamInfo(streamID int) (*CameraStreamInfo, bool) {
	for i := range c.Cameras {
		for j := range c.Cameras[i].Streams {
			if c.Cameras[i].Streams[j].ID == streamID {
				return &c.Cameras[i].Streams[j], true
			}
		}
	}
	return nil, false
}

// Reboot restarts the device.
func (c *Client) Reboot(ctx context.Context) error {
	_, err := c.Request(ctx, http.MethodPut, "System/reboot")
	return err
}
