// Package natsutil provides typed JSON publish/subscribe helpers for NATS
// that carry OpenTelemetry trace context in message headers.
package natsutil

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// headerCarrier exposes a nats.Header as an OTel TextMapCarrier.
type headerCarrier struct{ h nats.Header }

func (c headerCarrier) Get(key string) string { return c.h.Get(key) }
func (c headerCarrier) Set(key, val string)   { c.h.Set(key, val) }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.h))
	for k := range c.h {
		keys = append(keys, k)
	}
	return keys
}

// Publish marshals v to JSON and publishes it on subject, injecting the trace
// context from ctx into the message headers.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := &nats.Msg{Subject: subject, Data: data, Header: make(nats.Header)}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg.Header})
	return nc.PublishMsg(msg)
}

// ExtractContext returns a context carrying whatever trace context the
// message headers hold. Messages without headers get a fresh background
// context.
func ExtractContext(msg *nats.Msg) context.Context {
	if msg.Header == nil {
		return context.Background()
	}
	return otel.GetTextMapPropagator().Extract(context.Background(), headerCarrier{msg.Header})
}

// Subscribe registers a handler for JSON messages of type T on subject. The
// handler receives the extracted trace context. Messages that fail to decode
// are dropped.
func Subscribe[T any](nc *nats.Conn, subject string, handler func(context.Context, T)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			return
		}
		handler(ExtractContext(msg), v)
	})
}
