package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier, so a
// subscriber can continue the trace that produced an event.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NATSSink publishes each event as JSON to a subject. Publish failures are
// logged and swallowed: losing an event must not disturb the trace.
type NATSSink struct {
	Conn    *nats.Conn
	Subject string
	Log     *slog.Logger
}

func (s NATSSink) Emit(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.Log.Warn("event marshal failed", "kind", ev.Kind, "error", err)
		return
	}
	msg := &nats.Msg{Subject: s.Subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	if err := s.Conn.PublishMsg(msg); err != nil {
		s.Log.Warn("event publish failed", "kind", ev.Kind, "error", err)
	}
}
