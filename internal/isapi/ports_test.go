package isapi

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const ioStatusXML = `<?xml version="1.0" encoding="UTF-8"?>
<IOPortStatusList version="2.0" xmlns="http://www.hikvision.com/ver20/XMLSchema">
<IOPortStatus>
<ioPortID>1</ioPortID>
<ioPortType>input</ioPortType>
<ioState>inactive</ioState>
</IOPortStatus>
<IOPortStatus>
<ioPortID>2</ioPortID>
<ioPortType>input</ioPortType>
<ioState>active</ioState>
</IOPortStatus>
</IOPortStatusList>`

func TestGetIOPortStatus(t *testing.T) {
	f := newFixtureServer(t, map[string]string{
		"GET /ISAPI/System/IO/status": ioStatusXML,
	})
	c := f.client()

	state, err := c.GetIOPortStatus(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetIOPortStatus failed: %v", err)
	}
	if state != "active" {
		t.Errorf("Expected active, got %s", state)
	}

	state, err = c.GetIOPortStatus(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetIOPortStatus failed: %v", err)
	}
	if state != "inactive" {
		t.Errorf("Expected inactive, got %s", state)
	}
}

func TestGetIOPortStatusUnknownPort(t *testing.T) {
	f := newFixtureServer(t, map[string]string{
		"GET /ISAPI/System/IO/status": ioStatusXML,
	})
	c := f.client()

	if _, err := c.GetIOPortStatus(context.Background(), 9); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported for unreported port, got %v", err)
	}
}

func TestSetOutputPortState(t *testing.T) {
	f := newFixtureServer(t, map[string]string{
		"PUT /ISAPI/System/IO/outputs/1/trigger": `<ResponseStatus><statusCode>1</statusCode></ResponseStatus>`,
	})
	c := f.client()

	if err := c.SetOutputPortState(context.Background(), 1, true); err != nil {
		t.Fatalf("SetOutputPortState failed: %v", err)
	}
	puts := f.requestsTo("PUT", "/ISAPI/System/IO/outputs/1/trigger")
	if len(puts) != 1 {
		t.Fatalf("Expected 1 PUT, got %d", len(puts))
	}
	if !strings.Contains(puts[0].Body, "<outputState>high</outputState>") {
		t.Errorf("Expected high output state in %s", puts[0].Body)
	}
	if !strings.Contains(puts[0].Body, "<IOPortData") {
		t.Errorf("Expected IOPortData document in %s", puts[0].Body)
	}
}
