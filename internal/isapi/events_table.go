package isapi

import "strings"

// Event groups determine which endpoint family serves an event's
// notification document.
type EventGroup string

const (
	EventGroupBasic EventGroup = "basic"
	EventGroupIO    EventGroup = "io"
	EventGroupSmart EventGroup = "smart"
	EventGroupPIR   EventGroup = "pir"
)

// Canonical event identifiers.
const (
	EventMotionDetection      = "motiondetection"
	EventTamperDetection      = "tamperdetection"
	EventVideoLoss            = "videoloss"
	EventSceneChangeDetection = "scenechangedetection"
	EventFieldDetection       = "fielddetection"
	EventLineDetection        = "linedetection"
	EventRegionEntrance       = "regionentrance"
	EventRegionExiting        = "regionexiting"
	EventIO                   = "io"
	EventPIR                  = "pir"
)

// EventMeta describes one canonical event type: its endpoint family, the
// URL slug, whether enabling it is subject to the device's mutual-exclusion
// check, and state-node overrides for direct vs proxied documents.
type EventMeta struct {
	Group       EventGroup
	Slug        string
	Mutex       bool
	DirectNode  string
	ProxiedNode string
}

// supportedEvents is the canonical table. Lookups go through normalizeEventID
// so firmware alias spellings land on these keys.
var supportedEvents = map[string]EventMeta{
	EventMotionDetection:      {Group: EventGroupBasic, Slug: "motionDetection", Mutex: true},
	EventTamperDetection:      {Group: EventGroupBasic, Slug: "tamperDetection"},
	EventVideoLoss:            {Group: EventGroupBasic, Slug: "videoLoss"},
	EventSceneChangeDetection: {Group: EventGroupSmart, Slug: "SceneChangeDetection", Mutex: true},
	EventFieldDetection:       {Group: EventGroupSmart, Slug: "FieldDetection", Mutex: true},
	EventLineDetection:        {Group: EventGroupSmart, Slug: "LineDetection", Mutex: true},
	EventRegionEntrance:       {Group: EventGroupSmart, Slug: "regionEntrance"},
	EventRegionExiting:        {Group: EventGroupSmart, Slug: "regionExiting"},
	EventIO:                   {Group: EventGroupIO, Slug: "inputs", DirectNode: "IOInputPort", ProxiedNode: "IOProxyInputPort"},
	EventPIR:                  {Group: EventGroupPIR, Slug: "WLAlarm/PIR", DirectNode: "PIRAlarm"},
}

// eventAlternateID maps firmware alias spellings (already lowercased) onto
// canonical identifiers.
var eventAlternateID = map[string]string{
	"vmd":             EventMotionDetection,
	"shelteralarm":    EventTamperDetection,
	"vmdhumanvehicle": EventMotionDetection,
	"thermometry":     EventMotionDetection,
}

// mutexAlternateID substitutes the function name the mutexFunction endpoint
// actually understands for events whose canonical id it rejects.
var mutexAlternateID = map[string]string{
	EventMotionDetection: "VMDHumanVehicle",
}

// streamTypeNames labels the four ISAPI stream variants; the variant id is
// the last digit of the stream id.
var streamTypeNames = map[int]string{
	1: "Main Stream",
	2: "Sub-stream",
	3: "Third Stream",
	4: "Transcoded Stream",
}

// EventMetaFor returns the canonical table entry for an event id.
func EventMetaFor(eventID string) (EventMeta, bool) {
	meta, ok := supportedEvents[eventID]
	return meta, ok
}

// normalizeEventID lowercases a raw event type, resolves alias spellings and
// reports whether the result is a known canonical event.
func normalizeEventID(raw string) (string, bool) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if alt, ok := eventAlternateID[id]; ok {
		id = alt
	}
	_, ok := supportedEvents[id]
	return id, ok
}
