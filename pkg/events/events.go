// Package events defines the structured observability sink injected into
// the engine components. Sinks must never fail the work they observe:
// Emit has no error return and implementations absorb their own failures.
package events

import (
	"context"
	"log/slog"
	"time"
)

// Kind names a trace lifecycle event.
type Kind string

const (
	TraceStarted    Kind = "trace_started"
	LayerExpanded   Kind = "layer_expanded"
	PlantFound      Kind = "plant_found"
	QueryFailed     Kind = "query_failed"
	DepthCapReached Kind = "depth_cap_reached"
	TraceFinished   Kind = "trace_finished"
)

// Event is one structured observation from a trace run.
type Event struct {
	Kind      Kind           `json:"kind"`
	At        time.Time      `json:"at"`
	Structure string         `json:"structure,omitempty"`
	Depth     int            `json:"depth,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Sink receives trace events.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// SlogSink writes events to a structured logger.
type SlogSink struct {
	Log *slog.Logger
}

func (s SlogSink) Emit(ctx context.Context, ev Event) {
	attrs := []any{"structure", ev.Structure, "depth", ev.Depth}
	for k, v := range ev.Fields {
		attrs = append(attrs, k, v)
	}
	s.Log.InfoContext(ctx, string(ev.Kind), attrs...)
}

// Fanout duplicates each event to every sink in order.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, ev Event) {
	for _, s := range f {
		s.Emit(ctx, ev)
	}
}

// Stamp fills the timestamp if the caller left it zero.
func Stamp(ev Event) Event {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return ev
}
