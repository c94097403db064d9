package isapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases s and folds every run of non-alphanumerics into a
// single underscore.
func slugify(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// eventUniqueID derives the stable identity of an event: device serial plus
// channel, IO port and event id. Zero channel/port contribute nothing, so a
// device-level event and a channel event never collide.
func eventUniqueID(serialNo string, ev EventInfo) string {
	id := slugify(serialNo)
	if ev.ChannelID != 0 {
		id += fmt.Sprintf("_%d", ev.ChannelID)
	}
	if ev.IOPortID != 0 {
		id += fmt.Sprintf("_%d", ev.IOPortID)
	}
	return id + "_" + ev.ID
}

// EventURL synthesizes the notification-document endpoint for an event.
// Basic and IO events have separate direct and NVR-proxied families, PIR is
// a single fixed endpoint, smart events share one family.
func EventURL(ev EventInfo, connection ConnectionType) string {
	meta := supportedEvents[ev.ID]
	switch meta.Group {
	case EventGroupBasic:
		if connection == ConnectionProxied {
			return fmt.Sprintf("ContentMgmt/InputProxy/channels/%d/video/%s", ev.ChannelID, meta.Slug)
		}
		return fmt.Sprintf("System/Video/inputs/channels/%d/%s", ev.ChannelID, meta.Slug)
	case EventGroupIO:
		if connection == ConnectionProxied {
			return fmt.Sprintf("ContentMgmt/IOProxy/%s/%d", meta.Slug, ev.IOPortID)
		}
		return fmt.Sprintf("System/IO/%s/%d", meta.Slug, ev.IOPortID)
	case EventGroupPIR:
		return meta.Slug
	default:
		return fmt.Sprintf("Smart/%s/%d", meta.Slug, ev.ChannelID)
	}
}

// eventConnectionType resolves how an event's channel is attached. The
// enumerated camera is authoritative; otherwise a trigger listed under the
// dynamic field names is proxied. IO triggers carry no video channel, so
// the dynamic-field signal is all there is for them.
func (c *Client) eventConnectionType(ev EventInfo) ConnectionType {
	if ev.ChannelID != 0 {
		if cam, ok := c.CameraByID(ev.ChannelID); ok {
			return cam.Connection
		}
	}
	if ev.IsProxy {
		return ConnectionProxied
	}
	return ConnectionDirect
}

// eventStateNode names the XML root that carries the enabled flag in an
// event's notification document. Most events use the capitalized slug; IO
// and PIR documents use dedicated node names that differ between direct and
// proxied channels.
func (c *Client) eventStateNode(ev EventInfo) string {
	meta := supportedEvents[ev.ID]
	node := meta.Slug
	if c.eventConnectionType(ev) == ConnectionProxied {
		if meta.ProxiedNode != "" {
			node = meta.ProxiedNode
		}
	} else if meta.DirectNode != "" {
		node = meta.DirectNode
	}
	return strings.ToUpper(node[:1]) + node[1:]
}

// eventFromTrigger normalizes one EventTrigger entry into an EventInfo.
// Unknown event types and PIR triggers on devices without PIR support are
// skipped.
func (c *Client) eventFromTrigger(trigger map[string]any) (EventInfo, bool) {
	eventType := DeepGetStr(trigger, "eventType")
	if eventType == "" {
		return EventInfo{}, false
	}
	id, known := normalizeEventID(eventType)
	if !known {
		return EventInfo{}, false
	}
	if id == EventPIR && !c.Capabilities.SupportPIR {
		return EventInfo{}, false
	}

	ev := EventInfo{ID: id}
	if v := DeepGetStr(trigger, "videoInputChannelID"); v != "" {
		ev.ChannelID = DeepGetInt(trigger, "videoInputChannelID", 0)
	} else if v := DeepGetStr(trigger, "dynVideoInputChannelID"); v != "" {
		ev.ChannelID = DeepGetInt(trigger, "dynVideoInputChannelID", 0)
		ev.IsProxy = true
	}
	if v := DeepGetStr(trigger, "inputIOPortID"); v != "" {
		ev.IOPortID = DeepGetInt(trigger, "inputIOPortID", 0)
	} else if v := DeepGetStr(trigger, "dynInputIOPortID"); v != "" {
		ev.IOPortID = DeepGetInt(trigger, "dynInputIOPortID", 0)
		ev.IsProxy = true
	}

	// Events whose notifications skip the surveillance center are present
	// but dormant; they stay listed and get flagged.
	ev.Disabled = true
	for _, n := range DeepGetList(trigger, "EventTriggerNotificationList.EventTriggerNotification") {
		if DeepGetStr(n, "notificationMethod") == "center" {
			ev.Disabled = false
			break
		}
	}

	ev.UniqueID = eventUniqueID(c.DeviceInfo.SerialNo, ev)
	ev.URL = EventURL(ev, c.eventConnectionType(ev))
	return ev, true
}

// getSupportedEvents resolves the full event surface of the device from
// Event/triggers, with two gap-filling passes for documents firmware leaves
// out of the main list.
func (c *Client) getSupportedEvents(ctx context.Context) error {
	raw, err := c.Request(ctx, http.MethodGet, "Event/triggers")
	if err != nil {
		return err
	}
	// Two envelope shapes exist in the wild.
	triggers := DeepGetList(raw, "EventNotification.EventTriggerList.EventTrigger")
	if len(triggers) == 0 {
		triggers = DeepGetList(raw, "EventTriggerList.EventTrigger")
	}

	var events []EventInfo
	seen := map[string]bool{}
	add := func(ev EventInfo) {
		if !seen[ev.UniqueID] {
			seen[ev.UniqueID] = true
			events = append(events, ev)
		}
	}
	for _, trigger := range triggers {
		if ev, ok := c.eventFromTrigger(trigger); ok {
			add(ev)
		}
	}

	// Some cameras support scene change detection but omit it from
	// Event/triggers; probe its dedicated trigger document. Best effort.
	hasSceneChange := false
	for _, ev := range events {
		if ev.ID == EventSceneChangeDetection {
			hasSceneChange = true
			break
		}
	}
	if !hasSceneChange && c.Capabilities.SupportSceneChange {
		if ev, ok := c.fetchTrigger(ctx, EventSceneChangeDetection, 1); ok {
			add(ev)
		}
	}

	// Multi-channel devices advertise per-channel event capabilities that
	// the aggregated trigger list underreports.
	if c.Capabilities.SupportMultiChannel {
		for i := range c.Cameras {
			cam := &c.Cameras[i]
			for _, id := range c.getChannelEventTypes(ctx, cam.ID) {
				probe := EventInfo{ID: id, ChannelID: cam.ID}
				if seen[eventUniqueID(c.DeviceInfo.SerialNo, probe)] {
					continue
				}
				if ev, ok := c.fetchTrigger(ctx, id, cam.ID); ok {
					add(ev)
				}
			}
		}
	}

	c.SupportedEvents = events
	return nil
}

// fetchTrigger reads the dedicated trigger document for one (event, channel)
// pair, e.g. Event/triggers/scenechangedetection-1.
func (c *Client) fetchTrigger(ctx context.Context, eventID string, channelID int) (EventInfo, bool) {
	raw, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("Event/triggers/%s-%d", eventID, channelID))
	if err != nil {
		return EventInfo{}, false
	}
	trigger, _ := DeepGet(raw, "EventTrigger", map[string]any{}).(map[string]any)
	if len(trigger) == 0 {
		return EventInfo{}, false
	}
	ev, ok := c.eventFromTrigger(trigger)
	if !ok {
		return EventInfo{}, false
	}
	if ev.ChannelID == 0 {
		ev.ChannelID = channelID
		ev.UniqueID = eventUniqueID(c.DeviceInfo.SerialNo, ev)
		ev.URL = EventURL(ev, c.eventConnectionType(ev))
	}
	return ev, true
}

// getChannelEventTypes reads the advertised event types of one channel from
// its capability document (a comma-separated opt attribute).
func (c *Client) getChannelEventTypes(ctx context.Context, channelID int) []string {
	raw, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("Event/channels/%d/capabilities", channelID))
	if err != nil {
		return nil
	}
	opt := DeepGetStr(raw, "ChannelEventCap.eventType.@opt")
	var ids []string
	for _, part := range strings.Split(opt, ",") {
		if id, ok := normalizeEventID(part); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// EventForAlert matches a parsed alert against the resolved event surface.
// Combinations the device never listed still yield a usable EventInfo with a
// synthesized unique id, reported as not found.
func (c *Client) EventForAlert(alert AlertInfo) (EventInfo, bool) {
	for _, ev := range c.SupportedEvents {
		if ev.ID == alert.EventID && ev.ChannelID == alert.ChannelID && ev.IOPortID == alert.IOPortID {
			return ev, true
		}
	}
	ev := EventInfo{ID: alert.EventID, ChannelID: alert.ChannelID, IOPortID: alert.IOPortID}
	ev.UniqueID = eventUniqueID(c.DeviceInfo.SerialNo, ev)
	return ev, false
}

// GetEventEnabledState reads whether the device currently raises an event.
func (c *Client) GetEventEnabledState(ctx context.Context, ev EventInfo) (bool, error) {
	raw, err := c.Request(ctx, http.MethodGet, ev.URL)
	if err != nil {
		return false, err
	}
	return StrToBool(DeepGetStr(raw, c.eventStateNode(ev)+".enabled")), nil
}

// SetEventEnabledState toggles event detection. The current notification
// document is fetched and PUT back unchanged except for the single enabled
// field; matching state is a no-op. Enabling a mutex-flagged event on a
// device that supports mutual-exclusion reporting is first probed, and a
// conflict aborts with a MutexConflictError before anything is written.
func (c *Client) SetEventEnabledState(ctx context.Context, ev EventInfo, enabled bool) error {
	body, err := c.RequestRaw(ctx, http.MethodGet, ev.URL)
	if err != nil {
		return err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	node := c.eventStateNode(ev)
	root := doc.Root()
	if root == nil || root.Tag != node {
		return fmt.Errorf("%w: expected %s document", ErrMalformed, node)
	}
	enabledEl := root.SelectElement("enabled")
	if enabledEl == nil {
		return fmt.Errorf("%w: %s document without enabled state", ErrMalformed, node)
	}
	if StrToBool(enabledEl.Text()) == enabled {
		return nil
	}

	if enabled && ev.ChannelID != 0 && c.Capabilities.SupportMutexChecking {
		issues, err := c.getEventSwitchMutex(ctx, ev)
		if err != nil {
			return err
		}
		if len(issues) > 0 {
			return &MutexConflictError{EventID: ev.ID, Issues: issues}
		}
	}

	enabledEl.SetText(BoolToStr(enabled))
	out, err := doc.WriteToString()
	if err != nil {
		return err
	}
	_, err = c.Request(ctx, http.MethodPut, ev.URL, WithXMLBody(out))
	return err
}

// getEventSwitchMutex asks the device which already-enabled functions are
// mutually exclusive with enabling ev. Only mutex-flagged events are probed;
// the endpoint wants the alternate function name for some of them.
func (c *Client) getEventSwitchMutex(ctx context.Context, ev EventInfo) ([]MutexIssue, error) {
	if !supportedEvents[ev.ID].Mutex {
		return nil, nil
	}
	function := ev.ID
	if alt, ok := mutexAlternateID[ev.ID]; ok {
		function = alt
	}
	payload := map[string]any{"function": function, "channelID": ev.ChannelID}
	raw, err := c.RequestRaw(ctx, http.MethodPost, "System/mutexFunction?format=json", WithJSONBody(payload))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var out struct {
		MutexFunctionList []MutexIssue `json:"MutexFunctionList"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	// The device reports conflicting functions under their alias spellings.
	for i := range out.MutexFunctionList {
		if id, ok := normalizeEventID(out.MutexFunctionList[i].Function); ok {
			out.MutexFunctionList[i].Function = id
		}
	}
	return out.MutexFunctionList, nil
}
