package event

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"
)

// MaxEncodedSize is the hard ceiling for one encoded event. Events
// whose payload pushes them past this limit are truncated, not
// rejected, so a single oversized event cannot block a batch.
const MaxEncodedSize = 64 << 10

// truncatedKey marks a payload or metadata map that was replaced
// because the encoded event exceeded MaxEncodedSize.
const truncatedKey = "_truncated"

// wireEvent is the JSON shape the collection API expects.
type wireEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload"`
	Metadata  map[string]any `json:"metadata"`
	Timestamp string         `json:"timestamp"`
}

// Encode converts an event into its transport-safe JSON form,
// normalizing payload values and enforcing MaxEncodedSize. It only
// fails when the event itself is malformed (unknown type, empty id).
func Encode(e Event) (json.RawMessage, error) {
	if e.ID == "" {
		return nil, fmt.Errorf("event has no id")
	}
	if !e.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}

	w := wireEvent{
		ID:        e.ID,
		Type:      string(e.Type),
		Name:      e.Name,
		Payload:   normalizeMap(e.Payload),
		Metadata:  normalizeMap(e.Metadata),
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	raw, err := json.Marshal(w)
	if err != nil {
		// Normalization should have made everything marshalable;
		// treat a residual failure like any unencodable value.
		w.Payload = map[string]any{truncatedKey: true, "encode_error": err.Error()}
		w.Metadata = map[string]any{}
		raw, err = json.Marshal(w)
		if err != nil {
			return nil, err
		}
	}
	if len(raw) <= MaxEncodedSize {
		return raw, nil
	}

	// Oversized: replace the payload with a truncation marker first,
	// then the metadata if that still is not enough.
	w.Payload = map[string]any{truncatedKey: true, "encoded_bytes": len(raw)}
	if raw, err = json.Marshal(w); err == nil && len(raw) <= MaxEncodedSize {
		return raw, nil
	}
	w.Metadata = map[string]any{truncatedKey: true}
	return json.Marshal(w)
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

// normalize converts a producer-supplied value into something the JSON
// encoder handles deterministically. Unknown kinds degrade to a string
// rendering rather than aborting the whole event.
func normalize(v any) any {
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return val
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return float64(val) / float64(time.Millisecond)
	case error:
		return val.Error()
	case map[string]any:
		return normalizeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case fmt.Stringer:
		return val.String()
	}
	return normalizeReflect(reflect.ValueOf(v))
}

// normalizeReflect handles container kinds that do not match the
// concrete cases above: typed slices, set-like maps (struct{} values),
// and generic maps. Everything else becomes a string placeholder.
func normalizeReflect(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Elem() == reflect.TypeOf(struct{}{}) {
			// Set-like: encode the members as a sorted list.
			members := make([]string, 0, rv.Len())
			for _, key := range rv.MapKeys() {
				members = append(members, fmt.Sprint(key.Interface()))
			}
			sort.Strings(members)
			return members
		}
		out := make(map[string]any, rv.Len())
		for _, key := range rv.MapKeys() {
			out[fmt.Sprint(key.Interface())] = normalize(rv.MapIndex(key).Interface())
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	return fmt.Sprintf("%v", rv.Interface())
}
