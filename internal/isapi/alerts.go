package isapi

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"regexp"
	"strings"
	"time"
)

// Matches XML entities first so the catch-all & alternative only sees bare
// ampersands. Some firmwares emit event text (camera names, SSIDs) without
// escaping.
var bareAmpRe = regexp.MustCompile(`&[a-zA-Z][a-zA-Z0-9]*;|&#[0-9]+;|&#x[0-9a-fA-F]+;|&`)

func escapeBareAmpersands(b []byte) []byte {
	return bareAmpRe.ReplaceAllFunc(b, func(m []byte) []byte {
		if len(m) == 1 {
			return []byte("&amp;")
		}
		return m
	})
}

// ParseNotificationBody splits an inbound notification request into its XML
// message and optional JPEG attachment. Devices POST either a bare XML body
// (application/xml or text/xml, with or without charset) or multipart
// form-data carrying an XML part and sometimes a snapshot. Anything else is
// malformed.
func ParseNotificationBody(contentType string, body []byte) (xmlPart, jpegPart []byte, err error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: content type %q", ErrMalformed, contentType)
	}
	switch mediaType {
	case "application/xml", "text/xml":
		return body, nil, nil
	case "multipart/form-data":
		boundary := params["boundary"]
		if boundary == "" {
			return nil, nil, fmt.Errorf("%w: multipart without boundary", ErrMalformed)
		}
		mr := multipart.NewReader(bytes.NewReader(body), boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			data, err := io.ReadAll(part)
			part.Close()
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			partType := part.Header.Get("Content-Type")
			switch {
			case strings.Contains(partType, "xml"):
				xmlPart = data
			case strings.Contains(partType, "image/jpeg"):
				jpegPart = data
			}
		}
		if xmlPart == nil {
			return nil, nil, fmt.Errorf("%w: multipart without xml part", ErrMalformed)
		}
		return xmlPart, jpegPart, nil
	default:
		return nil, nil, fmt.Errorf("%w: unexpected notification content type %q", ErrMalformed, contentType)
	}
}

// ParseEventNotification parses an EventNotificationAlert message into an
// AlertInfo. Unknown event types are an ErrUnknownEvent; channel ids are
// reported verbatim, the NVR high-channel remapping is the caller's job.
func ParseEventNotification(xmlBody []byte) (AlertInfo, error) {
	raw, err := ParseISAPIResponse("application/xml", escapeBareAmpersands(xmlBody))
	if err != nil {
		return AlertInfo{}, err
	}
	alert, _ := DeepGet(raw, "EventNotificationAlert", map[string]any{}).(map[string]any)
	if len(alert) == 0 {
		return AlertInfo{}, fmt.Errorf("%w: not an EventNotificationAlert", ErrMalformed)
	}

	eventType := DeepGetStr(alert, "eventType")
	if eventType == "" || strings.EqualFold(eventType, "duration") {
		// Version 2.0 recording-related alerts bury the real event here.
		eventType = DeepGetStr(alert, "DurationList.Duration.relationEvent")
	}
	eventID, known := normalizeEventID(eventType)
	if !known {
		return AlertInfo{}, fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}

	channelID := DeepGetInt(alert, "channelID", 0)
	if channelID == 0 {
		channelID = DeepGetInt(alert, "dynChannelID", 0)
	}
	ioPortID := DeepGetInt(alert, "inputIOPortID", 0)
	if ioPortID == 0 {
		ioPortID = DeepGetInt(alert, "dynInputIOPortID", 0)
	}

	info := AlertInfo{
		ChannelID:       channelID,
		IOPortID:        ioPortID,
		EventID:         eventID,
		DeviceSerialNo:  DeepGetStr(alert, "Extensions.serialNumber.#text"),
		MacAddress:      DeepGetStr(alert, "macAddress"),
		RegionID:        DeepGetInt(alert, "DetectionRegionList.DetectionRegionEntry.regionID", 0),
		DetectionTarget: DeepGetStr(alert, "DetectionRegionList.DetectionRegionEntry.detectionTarget"),
	}
	if ts := DeepGetStr(alert, "dateTime"); ts != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, ts); err == nil {
				info.Timestamp = t
				break
			}
		}
	}
	return info, nil
}
