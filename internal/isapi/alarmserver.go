package isapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// GetAlarmServer reads the first configured HTTP notification host, the slot
// this integration claims for itself.
func (c *Client) GetAlarmServer(ctx context.Context) (*AlarmServer, error) {
	raw, err := c.Request(ctx, http.MethodGet, "Event/notification/httpHosts")
	if err != nil {
		return nil, err
	}
	hosts := DeepGetList(raw, "HttpHostNotificationList.HttpHostNotification")
	if len(hosts) == 0 {
		return nil, nil
	}
	host := hosts[0]
	addr := DeepGetStr(host, "ipAddress")
	if addr == "" {
		addr = DeepGetStr(host, "hostName")
	}
	return &AlarmServer{
		IPAddress:    addr,
		PortNo:       DeepGetInt(host, "portNo", 0),
		URL:          DeepGetStr(host, "url"),
		ProtocolType: DeepGetStr(host, "protocolType"),
	}, nil
}

// SetAlarmServer points the device's first HTTP notification host at
// baseURL+path so alerts get pushed to this integration. The address is
// written as ipaddress or hostname depending on what baseURL carries, and
// the document is PUT back otherwise unchanged. Matching configuration is a
// no-op.
func (c *Client) SetAlarmServer(ctx context.Context, baseURL, path string) error {
	address, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid alarm server url %q: %w", baseURL, err)
	}
	scheme := address.Scheme
	if scheme == "" {
		scheme = "http"
	}
	port := 80
	if scheme == "https" {
		port = 443
	}
	if p := address.Port(); p != "" {
		port, _ = strconv.Atoi(p)
	}

	body, err := c.RequestRaw(ctx, http.MethodGet, "Event/notification/httpHosts")
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "HttpHostNotificationList" {
		return fmt.Errorf("%w: expected HttpHostNotificationList document", ErrMalformed)
	}
	host := root.SelectElement("HttpHostNotification")
	if host == nil {
		return fmt.Errorf("%w: no notification host slot", ErrMalformed)
	}

	current := func(tag string) string {
		if el := host.SelectElement(tag); el != nil {
			return el.Text()
		}
		return ""
	}
	if current("protocolType") == strings.ToUpper(scheme) &&
		(current("ipAddress") == address.Hostname() || current("hostName") == address.Hostname()) &&
		current("portNo") == strconv.Itoa(port) &&
		current("url") == path {
		return nil
	}

	set := func(tag, value string) {
		el := host.SelectElement(tag)
		if el == nil {
			el = host.CreateElement(tag)
		}
		el.SetText(value)
	}
	remove := func(tag string) {
		if el := host.SelectElement(tag); el != nil {
			host.RemoveChild(el)
		}
	}

	set("url", path)
	set("protocolType", strings.ToUpper(scheme))
	set("parameterFormatType", "XML")
	if net.ParseIP(address.Hostname()) != nil {
		set("addressingFormatType", "ipaddress")
		set("ipAddress", address.Hostname())
		remove("hostName")
	} else {
		set("addressingFormatType", "hostname")
		set("hostName", address.Hostname())
		remove("ipAddress")
	}
	set("portNo", strconv.Itoa(port))
	set("httpAuthenticationMethod", "none")

	out, err := doc.WriteToString()
	if err != nil {
		return err
	}
	_, err = c.Request(ctx, http.MethodPut, "Event/notification/httpHosts", WithXMLBody(out))
	return err
}
