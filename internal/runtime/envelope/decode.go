package envelope

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/drblury/packflow/internal/runtime/jsoncodec"
)

// DecodeIngressResult decodes the output of an ingest_http operation. Packs
// are not held to a single rigid shape: the HTTP response may live under an
// "http" key or at the top level, headers may arrive as a map, as [name,
// value] pairs, or as {name, value} objects, and the body may be base64
// ("body_b64"), plain text ("body"), or inline JSON ("body_json"). Events are
// decoded strictly.
func DecodeIngressResult(raw []byte) (*IngressResult, error) {
	var root map[string]any
	if len(raw) > 0 {
		if err := jsoncodec.Unmarshal(raw, &root); err != nil {
			return nil, fmt.Errorf("decode ingest_http output: %w", err)
		}
	}
	if root == nil {
		root = map[string]any{}
	}

	httpValue := root
	if sub, ok := root["http"].(map[string]any); ok {
		httpValue = sub
	}

	resp, err := decodeHTTPResponse(httpValue)
	if err != nil {
		return nil, fmt.Errorf("decode ingest_http output: %w", err)
	}

	events, err := DecodeEvents(root["events"])
	if err != nil {
		return nil, fmt.Errorf("decode ingest_http output: %w", err)
	}

	return &IngressResult{Response: resp, Events: events}, nil
}

func decodeHTTPResponse(value map[string]any) (IngressHTTPResponse, error) {
	resp := IngressHTTPResponse{Status: 200}
	if status, ok := value["status"].(float64); ok {
		resp.Status = int(status)
	}
	resp.Headers = decodeHeaders(value["headers"])

	body, err := decodeBody(value)
	if err != nil {
		return resp, err
	}
	resp.Body = body
	return resp, nil
}

func decodeHeaders(value any) []Pair {
	switch v := value.(type) {
	case map[string]any:
		headers := make([]Pair, 0, len(v))
		for name, raw := range v {
			headers = append(headers, Pair{name, headerString(raw)})
		}
		// map iteration order is random; keep output deterministic
		sort.Slice(headers, func(i, j int) bool { return headers[i][0] < headers[j][0] })
		return headers
	case []any:
		var headers []Pair
		for _, entry := range v {
			switch e := entry.(type) {
			case []any:
				if len(e) >= 2 {
					name, nameOK := e[0].(string)
					val, valOK := e[1].(string)
					if nameOK && valOK {
						headers = append(headers, Pair{name, val})
					}
				}
			case map[string]any:
				name, nameOK := e["name"].(string)
				val, valOK := e["value"].(string)
				if nameOK && valOK {
					headers = append(headers, Pair{name, val})
				}
			}
		}
		return headers
	default:
		return nil
	}
}

func headerString(raw any) string {
	if s, ok := raw.(string); ok {
		return s
	}
	encoded, err := jsoncodec.Marshal(raw)
	if err != nil {
		return fmt.Sprint(raw)
	}
	return string(encoded)
}

func decodeBody(value map[string]any) ([]byte, error) {
	if b64, ok := value["body_b64"].(string); ok {
		decoded, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("body_b64 is not valid base64: %w", err)
		}
		return decoded, nil
	}
	if text, ok := value["body"].(string); ok {
		return []byte(text), nil
	}
	if bodyJSON, ok := value["body_json"]; ok {
		encoded, err := jsoncodec.Marshal(bodyJSON)
		if err != nil {
			return nil, err
		}
		return encoded, nil
	}
	return nil, nil
}

// DecodeEvents decodes the "events" member of a pack operation output.
// Anything other than an array yields no events; an entry that is not a valid
// event envelope is an error so malformed emissions surface instead of being
// silently dropped.
func DecodeEvents(value any) ([]EventEnvelope, error) {
	array, ok := value.([]any)
	if !ok {
		return nil, nil
	}
	events := make([]EventEnvelope, 0, len(array))
	for _, entry := range array {
		encoded, err := jsoncodec.Marshal(entry)
		if err != nil {
			return nil, err
		}
		var event EventEnvelope
		if err := jsoncodec.Unmarshal(encoded, &event); err != nil {
			return nil, fmt.Errorf("invalid event envelope emitted by pack: %s: %w", compactPreview(entry), err)
		}
		if event.EventID == "" || event.EventType == "" {
			return nil, fmt.Errorf("invalid event envelope emitted by pack: %s: missing event_id or event_type", compactPreview(entry))
		}
		events = append(events, event)
	}
	return events, nil
}

func compactPreview(value any) string {
	obj, ok := value.(map[string]any)
	if !ok {
		encoded, err := jsoncodec.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(encoded)
	}
	keys := make([]string, 0, 8)
	for k := range obj {
		keys = append(keys, k)
		if len(keys) == 8 {
			break
		}
	}
	sort.Strings(keys)
	return "keys=" + strings.Join(keys, ",")
}
