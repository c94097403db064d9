package isapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/beevik/etree"
)

// GetIOPortStatus reads the state ("active"/"inactive") of one physical
// input port.
func (c *Client) GetIOPortStatus(ctx context.Context, portNo int) (string, error) {
	raw, err := c.Request(ctx, http.MethodGet, "System/IO/status")
	if err != nil {
		return "", err
	}
	for _, port := range DeepGetList(raw, "IOPortStatusList.IOPortStatus") {
		if DeepGetStr(port, "ioPortID") == strconv.Itoa(portNo) {
			return DeepGetStr(port, "ioState"), nil
		}
	}
	return "", fmt.Errorf("%w: io port %d not reported", ErrUnsupported, portNo)
}

// SetOutputPortState drives a relay output high or low.
func (c *Client) SetOutputPortState(ctx context.Context, portNo int, active bool) error {
	state := "low"
	if active {
		state = "high"
	}
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	data := doc.CreateElement("IOPortData")
	data.CreateAttr("xmlns", "http://www.hikvision.com/ver20/XMLSchema")
	data.CreateElement("outputState").SetText(state)
	out, err := doc.WriteToString()
	if err != nil {
		return err
	}
	_, err = c.Request(ctx, http.MethodPut, fmt.Sprintf("System/IO/outputs/%d/trigger", portNo), WithXMLBody(out))
	return err
}
