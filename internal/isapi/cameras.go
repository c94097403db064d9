package isapi

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// getCameras enumerates video channels. Standalone devices expose their own
// sensor(s) through the streaming-channel list; NVRs list proxied IP cameras
// under InputProxy and directly attached analog inputs under Video/inputs.
func (c *Client) getCameras(ctx context.Context) error {
	if !c.DeviceInfo.IsNVR {
		return c.getStandaloneCameras(ctx)
	}
	if c.Capabilities.DigitalCamerasInputs > 0 {
		if err := c.getProxiedCameras(ctx); err != nil {
			return err
		}
	}
	if c.Capabilities.AnalogCamerasInputs > 0 {
		return c.getAnalogCameras(ctx)
	}
	return nil
}

// getStandaloneCameras derives channel ids from the streaming list: stream
// ids encode channel*100 + variant, so 101/102/201 means channels 1 and 2.
// Dual-lens devices (thermal + optical) are the usual multi-channel case.
func (c *Client) getStandaloneCameras(ctx context.Context) error {
	raw, err := c.Request(ctx, http.MethodGet, "Streaming/channels")
	if err != nil {
		return err
	}
	seen := map[int]bool{}
	var channelIDs []int
	for _, ch := range DeepGetList(raw, "StreamingChannelList.StreamingChannel") {
		id := DeepGetInt(ch, "id", 0) / 100
		if id > 0 && !seen[id] {
			seen[id] = true
			channelIDs = append(channelIDs, id)
		}
	}
	if len(channelIDs) == 0 {
		channelIDs = []int{1}
	}
	sort.Ints(channelIDs)
	c.Capabilities.SupportMultiChannel = len(channelIDs) > 1

	for _, id := range channelIDs {
		name := c.DeviceInfo.Name
		serialNo := c.DeviceInfo.SerialNo
		if len(channelIDs) > 1 {
			name = fmt.Sprintf("%s - Channel %d", c.DeviceInfo.Name, id)
			serialNo = fmt.Sprintf("%s-CH%d", c.DeviceInfo.SerialNo, id)
		}
		c.Cameras = append(c.Cameras, Camera{
			ID:         id,
			Name:       name,
			Model:      c.DeviceInfo.Model,
			SerialNo:   serialNo,
			Firmware:   c.DeviceInfo.Firmware,
			InputPort:  id,
			Connection: ConnectionDirect,
			IPAddress:  c.DeviceInfo.IPAddress,
			Streams:    c.getCameraStreams(ctx, id),
		})
	}
	return nil
}

func (c *Client) getProxiedCameras(ctx context.Context) error {
	raw, err := c.Request(ctx, http.MethodGet, "ContentMgmt/InputProxy/channels")
	if err != nil {
		return err
	}
	for _, ch := range DeepGetList(raw, "InputProxyChannelList.InputProxyChannel") {
		if _, ok := DeepGet(ch, "sourceInputPortDescriptor", nil).(map[string]any); !ok {
			// An entry without a source descriptor is a configured but
			// unassigned slot.
			continue
		}
		channelID := DeepGetInt(ch, "id", 0)
		serialNo := strings.TrimSpace(DeepGetStr(ch, "sourceInputPortDescriptor.serialNumber"))
		protocol := DeepGetStr(ch, "sourceInputPortDescriptor.proxyProtocol")
		ipAddress := DeepGetStr(ch, "sourceInputPortDescriptor.ipAddress")
		if serialNo == "" {
			// Some cameras do not report a serial; synthesize one.
			serialNo = protocol + strings.ReplaceAll(ipAddress, ".", "")
		}
		if _, taken := c.cameraBySerial(serialNo); taken {
			serialNo = fmt.Sprintf("%s_%s_%d", serialNo, protocol, channelID)
		}
		model := DeepGetStr(ch, "sourceInputPortDescriptor.model")
		if model == "" {
			model = "Unknown"
		}
		c.Cameras = append(c.Cameras, Camera{
			ID:         channelID,
			Name:       DeepGetStr(ch, "name"),
			Model:      model,
			SerialNo:   serialNo,
			Firmware:   DeepGetStr(ch, "sourceInputPortDescriptor.firmwareVersion"),
			InputPort:  DeepGetInt(ch, "sourceInputPortDescriptor.srcInputPort", channelID),
			Connection: ConnectionProxied,
			IPAddress:  ipAddress,
			IPPort:     DeepGetInt(ch, "sourceInputPortDescriptor.managePortNo", 0),
			Protocol:   protocol,
			Streams:    c.getCameraStreams(ctx, channelID),
		})
	}
	return nil
}

func (c *Client) getAnalogCameras(ctx context.Context) error {
	raw, err := c.Request(ctx, http.MethodGet, "System/Video/inputs/channels")
	if err != nil {
		return err
	}
	for _, ch := range DeepGetList(raw, "VideoInputChannelList.VideoInputChannel") {
		channelID := DeepGetInt(ch, "id", 0)
		c.Cameras = append(c.Cameras, Camera{
			ID:         channelID,
			Name:       DeepGetStr(ch, "name"),
			Model:      DeepGetStr(ch, "resDesc"),
			SerialNo:   fmt.Sprintf("%s-VI%d", c.DeviceInfo.SerialNo, channelID),
			InputPort:  DeepGetInt(ch, "inputPort", channelID),
			Connection: ConnectionDirect,
			Streams:    c.getCameraStreams(ctx, channelID),
		})
	}
	return nil
}

// getCameraStreams probes the four stream variants of a channel; a variant
// that answers non-2xx does not exist.
func (c *Client) getCameraStreams(ctx context.Context, channelID int) []CameraStreamInfo {
	var streams []CameraStreamInfo
	for typeID := 1; typeID <= 4; typeID++ {
		raw, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("Streaming/channels/%d", channelID*100+typeID))
		if err != nil {
			continue
		}
		info, _ := DeepGet(raw, "StreamingChannel", map[string]any{}).(map[string]any)
		if len(info) == 0 {
			continue
		}
		streams = append(streams, CameraStreamInfo{
			ID:      DeepGetInt(info, "id", channelID*100+typeID),
			Name:    DeepGetStr(info, "channelName"),
			TypeID:  typeID,
			Type:    streamTypeNames[typeID],
			Enabled: StrToBool(DeepGetStr(info, "enabled")),
			Codec:   DeepGetStr(info, "Video.videoCodecType"),
			Width:   DeepGetInt(info, "Video.videoResolutionWidth", 0),
			Height:  DeepGetInt(info, "Video.videoResolutionHeight", 0),
			Audio:   StrToBool(DeepGetStr(info, "Audio.enabled")),
		})
	}
	return streams
}

func (c *Client) cameraBySerial(serialNo string) (*Camera, bool) {
	for i := range c.Cameras {
		if c.Cameras[i].SerialNo == serialNo {
			return &c.Cameras[i], true
		}
	}
	return nil, false
}
