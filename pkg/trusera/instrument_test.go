package trusera

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func lastDeliveredEvent(t *testing.T, rt *recordingTransport) map[string]any {
	t.Helper()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.batches) == 0 {
		t.Fatal("no batch delivered")
	}
	last := rt.batches[len(rt.batches)-1]
	var wire map[string]any
	if err := json.Unmarshal(last[len(last)-1], &wire); err != nil {
		t.Fatal(err)
	}
	return wire
}

func TestInstrumentCapturesSuccess(t *testing.T) {
	rt := &recordingTransport{}
	client := newTestClient(t, rt)
	defer client.Close(context.Background())
	client.SetAgentID("agt_x")

	search := Instrument(
		func(ctx context.Context, input map[string]any) (any, error) {
			return []string{"a", "b"}, nil
		},
		InstrumentWithName("search"),
		InstrumentWithType(ToolCall),
		InstrumentWithClient(client),
	)

	result, err := search(context.Background(), map[string]any{"query": "go"})
	if err != nil {
		t.Fatalf("wrapped call: %v", err)
	}
	if rs, ok := result.([]string); !ok || len(rs) != 2 {
		t.Fatalf("wrapper altered the result: %v", result)
	}

	if err := client.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	wire := lastDeliveredEvent(t, rt)
	if wire["type"] != "tool_call" || wire["name"] != "search" {
		t.Fatalf("event identity wrong: %v %v", wire["type"], wire["name"])
	}
	payload := wire["payload"].(map[string]any)
	if payload["arguments"] == nil || payload["result"] == nil {
		t.Fatalf("payload missing captures: %v", payload)
	}
	meta := wire["metadata"].(map[string]any)
	if meta["success"] != true {
		t.Fatalf("metadata success = %v", meta["success"])
	}
	if _, ok := meta["duration_ms"].(float64); !ok {
		t.Fatalf("metadata duration_ms = %v", meta["duration_ms"])
	}
}

func TestInstrumentCapturesErrorAndRethrows(t *testing.T) {
	rt := &recordingTransport{}
	client := newTestClient(t, rt)
	defer client.Close(context.Background())
	client.SetAgentID("agt_x")

	boom := errors.New("tool exploded")
	failing := Instrument(
		func(ctx context.Context, input map[string]any) (any, error) {
			return nil, boom
		},
		InstrumentWithName("failing"),
		InstrumentWithClient(client),
	)

	if _, err := failing(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("wrapper must propagate the original error, got %v", err)
	}

	if err := client.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	wire := lastDeliveredEvent(t, rt)
	payload := wire["payload"].(map[string]any)
	errInfo, ok := payload["error"].(map[string]any)
	if !ok || errInfo["message"] != "tool exploded" {
		t.Fatalf("error not captured: %v", payload["error"])
	}
	meta := wire["metadata"].(map[string]any)
	if meta["success"] != false {
		t.Fatalf("metadata success = %v", meta["success"])
	}
}

func TestInstrumentWithoutClientIsPassthrough(t *testing.T) {
	ClearDefault()
	called := false
	fn := Instrument(func(ctx context.Context, input map[string]any) (any, error) {
		called = true
		return "ok", nil
	}, InstrumentWithName("orphan"))

	result, err := fn(context.Background(), nil)
	if err != nil || result != "ok" || !called {
		t.Fatalf("passthrough broken: %v %v %v", result, err, called)
	}
}

func TestInstrumentUsesDefaultClient(t *testing.T) {
	rt := &recordingTransport{}
	client := newTestClient(t, rt)
	defer client.Close(context.Background())
	client.SetAgentID("agt_x")

	SetDefault(client)
	defer ClearDefault()

	fn := Instrument(func(ctx context.Context, input map[string]any) (any, error) {
		return nil, nil
	}, InstrumentWithName("via-default"), InstrumentWithType(Decision))

	if _, err := fn(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if err := client.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	wire := lastDeliveredEvent(t, rt)
	if wire["name"] != "via-default" || wire["type"] != "decision" {
		t.Fatalf("event not routed through default client: %v", wire)
	}
}
