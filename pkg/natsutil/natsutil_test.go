package natsutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startServer(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("embedded nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

type note struct {
	Text string `json:"text"`
}

func TestPublishSubscribe(t *testing.T) {
	nc := startServer(t)

	got := make(chan note, 1)
	sub, err := Subscribe(nc, "test.notes", func(_ context.Context, n note) {
		got <- n
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := Publish(context.Background(), nc, "test.notes", note{Text: "hi"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case n := <-got:
		if n.Text != "hi" {
			t.Errorf("text = %q", n.Text)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestSubscribe_DropsMalformed(t *testing.T) {
	nc := startServer(t)

	got := make(chan note, 1)
	sub, err := Subscribe(nc, "test.bad", func(_ context.Context, n note) {
		got <- n
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := nc.Publish("test.bad", []byte("{not json")); err != nil {
		t.Fatalf("raw publish: %v", err)
	}
	if err := Publish(context.Background(), nc, "test.bad", note{Text: "after"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case n := <-got:
		if n.Text != "after" {
			t.Errorf("handler saw %q, want the well-formed message only", n.Text)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("well-formed message never arrived")
	}
}

func TestHeaderCarrier(t *testing.T) {
	c := headerCarrier{h: make(nats.Header)}
	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Errorf("Get = %q", got)
	}
	if keys := c.Keys(); len(keys) != 1 || keys[0] != "Traceparent" {
		t.Errorf("Keys = %v", keys)
	}
}

func TestExtractContext_NoHeaders(t *testing.T) {
	ctx := ExtractContext(&nats.Msg{Data: []byte("{}")})
	if ctx == nil {
		t.Fatal("nil context")
	}
	if err := ctx.Err(); err != nil {
		t.Errorf("ctx.Err = %v", err)
	}
}

func TestPublishMarshals(t *testing.T) {
	nc := startServer(t)

	raw := make(chan []byte, 1)
	sub, err := nc.Subscribe("test.raw", func(m *nats.Msg) { raw <- m.Data })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	if err := Publish(context.Background(), nc, "test.raw", note{Text: "wire"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-raw:
		var n note
		if err := json.Unmarshal(data, &n); err != nil || n.Text != "wire" {
			t.Errorf("payload = %s (err %v)", data, err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
	}
}
