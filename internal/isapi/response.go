package isapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	mxj "github.com/clbanning/mxj/v2"
)

func init() {
	// ISAPI documentation and device payloads use the xmltodict convention:
	// attributes keyed as @name, element text as #text.
	mxj.SetAttrPrefix("@")
}

// ParseISAPIResponse decodes a device payload into a nested
// map[string]any. XML element text and attributes stay strings; the vendor
// encodes booleans as "true"/"false" and numbers as digit strings, and that
// representation is preserved. JSON payloads (a handful of ?format=json
// endpoints) pass through encoding/json. An empty body yields an empty map.
func ParseISAPIResponse(contentType string, body []byte) (map[string]any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return map[string]any{}, nil
	}

	ct := strings.ToLower(contentType)
	isJSON := strings.Contains(ct, "json") || (!strings.Contains(ct, "xml") && body[0] == '{')
	if isJSON {
		out := map[string]any{}
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return out, nil
	}

	if body[0] != '<' {
		// Some endpoints answer with bare text.
		return map[string]any{"#text": string(body)}, nil
	}

	m, err := mxj.NewMapXml(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return map[string]any(m), nil
}

// DeepGet walks a dotted path through nested maps and returns def when any
// segment is missing. When def is an empty []any and the resolved value is
// not a list, the value is wrapped in a one-element list: XML cannot
// distinguish a one-child container from a scalar child, and callers that
// expect lists should not have to care.
func DeepGet(m map[string]any, path string, def any) any {
	cur := any(m)
	for _, key := range strings.Split(path, ".") {
		mm, ok := cur.(map[string]any)
		if !ok {
			return def
		}
		cur, ok = mm[key]
		if !ok || cur == nil {
			return def
		}
	}
	if defList, ok := def.([]any); ok && len(defList) == 0 {
		if _, isList := cur.([]any); !isList {
			return []any{cur}
		}
	}
	return cur
}

// DeepGetStr resolves a dotted path to a string. Elements that carry
// attributes decode as a sub-map with the text under #text; that text is
// returned transparently.
func DeepGetStr(m map[string]any, path string) string {
	switch v := DeepGet(m, path, nil).(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["#text"].(string); ok {
			return s
		}
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// DeepGetInt resolves a dotted path to an int, parsing the vendor's digit
// strings. Unparsable or missing values yield def.
func DeepGetInt(m map[string]any, path string, def int) int {
	switch v := DeepGet(m, path, nil).(type) {
	case float64:
		return int(v)
	default:
		s := DeepGetStr(m, path)
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return def
		}
		return n
	}
}

// DeepGetList resolves a dotted path to a list of maps, coercing a single
// child into a one-element list and dropping non-map entries.
func DeepGetList(m map[string]any, path string) []map[string]any {
	raw, _ := DeepGet(m, path, []any{}).([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, it := range raw {
		if mm, ok := it.(map[string]any); ok {
			out = append(out, mm)
		}
	}
	return out
}

// StrToBool parses the vendor's "true"/"false" strings.
func StrToBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

// BoolToStr renders a bool the way device documents expect it.
func BoolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
