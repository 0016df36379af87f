package emit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNullEmitter_DiscardsEvents(t *testing.T) {
	// Exercises nothing but absence of a panic; NullEmitter is the
	// default wired when a caller supplies no Option.
	(NullEmitter{}).Emit(Event{Msg: "node_start"})
}

func TestBufferedEmitter_CollectsInOrder(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{Msg: "run_start"})
	b.Emit(Event{Msg: "node_start", NodeID: "n1"})
	b.Emit(Event{Msg: "node_end", NodeID: "n1"})

	events := b.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 buffered events, got %d", len(events))
	}
	if events[1].NodeID != "n1" {
		t.Errorf("expected second event NodeID = n1, got %q", events[1].NodeID)
	}

	// Events() returns a copy; mutating it must not affect the buffer.
	events[0].Msg = "tampered"
	if b.Events()[0].Msg != "run_start" {
		t.Error("Events() snapshot is not independent of the internal buffer")
	}
}

func TestLogEmitter_TextMode(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, false)
	e.Emit(Event{RunID: "r1", NodeID: "n1", Msg: "node_start", Meta: map[string]any{"x": 1}})

	out := buf.String()
	for _, want := range []string{"node_start", "run=r1", "node=n1", "x=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log line to contain %q, got %q", want, out)
		}
	}
}

func TestLogEmitter_JSONMode(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, true)
	e.Emit(Event{RunID: "r1", Msg: "run_end"})

	if !strings.Contains(buf.String(), `"msg":"run_end"`) {
		t.Errorf("expected JSON line with msg field, got %q", buf.String())
	}
}

func TestOTelEmitter_RecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())

	emitter := NewOTelEmitter(tp.Tracer("deppy-test"))
	emitter.Emit(Event{RunID: "r1", NodeID: "n1", Msg: "node_start", Meta: map[string]any{"calls": 3}})
	emitter.Emit(Event{RunID: "r1", NodeID: "n1", Msg: "node_end", Err: errors.New("boom")})

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 ended spans, got %d", len(spans))
	}

	start := spans[0]
	if start.Name() != "node_start" {
		t.Errorf("expected span name %q, got %q", "node_start", start.Name())
	}
	foundRunID, foundCalls := false, false
	for _, a := range start.Attributes() {
		switch string(a.Key) {
		case "run_id":
			foundRunID = a.Value.AsString() == "r1"
		case "calls":
			foundCalls = a.Value.AsString() == "3"
		}
	}
	if !foundRunID {
		t.Error("expected run_id attribute on node_start span")
	}
	if !foundCalls {
		t.Error("expected calls meta attribute on node_start span")
	}

	failed := spans[1]
	if failed.Status().Code != codes.Error {
		t.Errorf("expected error status on failed node_end span, got %v", failed.Status().Code)
	}
}
