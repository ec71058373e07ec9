package event

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type phase int

func (p phase) String() string {
	return [...]string{"planning", "acting", "reflecting"}[p]
}

func decodeWire(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("encoded event is not valid JSON: %v", err)
	}
	return m
}

func TestEncodeNormalizesCommonKinds(t *testing.T) {
	when := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	ev := New(TypeToolCall, "mixed", WithPayload(map[string]any{
		"blob":     []byte{0x01, 0x02, 0xff},
		"members":  map[string]struct{}{"beta": {}, "alpha": {}},
		"when":     when,
		"elapsed":  1500 * time.Millisecond,
		"phase":    phase(1),
		"nested":   map[string]any{"inner": []any{int64(7), "x"}},
		"typed":    []int{3, 1},
		"opaque":   struct{ A int }{A: 9},
		"nothing":  nil,
		"flag":     true,
		"count":    42,
		"fraction": 0.5,
	}))

	raw, err := Encode(ev)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	payload := decodeWire(t, raw)["payload"].(map[string]any)

	if payload["blob"] != "AQL/" {
		t.Errorf("blob = %v, want base64 AQL/", payload["blob"])
	}
	members, ok := payload["members"].([]any)
	if !ok || len(members) != 2 || members[0] != "alpha" || members[1] != "beta" {
		t.Errorf("set did not encode to sorted list: %v", payload["members"])
	}
	if payload["when"] != "2026-03-14T09:26:53Z" {
		t.Errorf("time = %v, want RFC 3339", payload["when"])
	}
	if payload["elapsed"] != float64(1500) {
		t.Errorf("duration = %v, want 1500 milliseconds", payload["elapsed"])
	}
	if payload["phase"] != "acting" {
		t.Errorf("enum = %v, want String() form", payload["phase"])
	}
	if s, ok := payload["opaque"].(string); !ok || s == "" {
		t.Errorf("opaque struct should degrade to string placeholder, got %v", payload["opaque"])
	}
	typed, ok := payload["typed"].([]any)
	if !ok || len(typed) != 2 {
		t.Errorf("typed slice mishandled: %v", payload["typed"])
	}
}

func TestEncodeTruncatesOversizedPayload(t *testing.T) {
	ev := New(TypeFileWrite, "dump", WithPayload(map[string]any{
		"contents": strings.Repeat("x", MaxEncodedSize*2),
	}))

	raw, err := Encode(ev)
	if err != nil {
		t.Fatalf("oversized event must not be rejected: %v", err)
	}
	if len(raw) > MaxEncodedSize {
		t.Fatalf("encoded size %d exceeds cap %d", len(raw), MaxEncodedSize)
	}

	wire := decodeWire(t, raw)
	payload := wire["payload"].(map[string]any)
	if payload[truncatedKey] != true {
		t.Fatal("truncated payload must carry the truncation marker")
	}
	// Identity survives truncation so the event is still deliverable.
	if wire["id"] != ev.ID || wire["type"] != "file_write" || wire["name"] != "dump" {
		t.Fatal("truncation must not touch event identity")
	}
}

func TestEncodeRejectsMalformedEvent(t *testing.T) {
	if _, err := Encode(Event{ID: "e1", Type: "bogus", Name: "n"}); err == nil {
		t.Error("expected rejection of unknown type")
	}
	if _, err := Encode(Event{Type: TypeToolCall, Name: "n"}); err == nil {
		t.Error("expected rejection of missing id")
	}
}
