package isapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const defaultRtspPort = 554

// getProtocols reads the service ports from Security/adminAccesses. A port
// forced through WithRTSPPort always wins over the discovered one.
func (c *Client) getProtocols(ctx context.Context) error {
	c.Protocols.RtspPort = defaultRtspPort
	raw, err := c.Request(ctx, http.MethodGet, "Security/adminAccesses")
	if err != nil {
		return err
	}
	for _, item := range DeepGetList(raw, "AdminAccessProtocolList.AdminAccessProtocol") {
		if DeepGetStr(item, "protocol") == "RTSP" {
			if port := DeepGetInt(item, "portNo", 0); port != 0 {
				c.Protocols.RtspPort = port
			}
			break
		}
	}
	if c.rtspPort != 0 {
		c.Protocols.RtspPort = c.rtspPort
	}
	return nil
}

// GetStreamSource builds the RTSP URL for a stream. The URL is returned as a
// string only; opening it is out of this package's business.
func (c *Client) GetStreamSource(stream CameraStreamInfo) string {
	return fmt.Sprintf("rtsp://%s:%s@%s:%d/Streaming/channels/%d",
		url.QueryEscape(c.username), url.QueryEscape(c.password),
		c.hostname(), c.Protocols.RtspPort, stream.ID)
}
