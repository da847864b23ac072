package events

import (
	"context"

	"github.com/gridsight/gridtrace/pkg/metrics"
)

// MetricsSink turns trace lifecycle events into registry counters, so a
// long-running process exposes trace progress on /metrics without the
// engine knowing about metrics at all.
type MetricsSink struct {
	Reg *metrics.Registry
}

func (s MetricsSink) Emit(_ context.Context, ev Event) {
	switch ev.Kind {
	case TraceStarted:
		s.Reg.Counter("traces_started_total", "Trace runs started").Inc()
	case TraceFinished:
		s.Reg.Counter("traces_finished_total", "Trace runs completed").Inc()
	case LayerExpanded:
		s.Reg.Counter("trace_layers_total", "BFS layers expanded").Inc()
		if next, ok := ev.Fields["next"].(int); ok {
			s.Reg.Gauge("trace_frontier_size", "Lines pending in the next layer").Set(int64(next))
		}
	case PlantFound:
		s.Reg.Counter("plants_found_total", "Plants discovered by tracing").Inc()
	case QueryFailed:
		s.Reg.Counter("query_failures_total", "Absorbed sub-query failures").Inc()
	case DepthCapReached:
		s.Reg.Counter("depth_cap_reached_total", "Traces terminated at the depth cap").Inc()
	}
}
