package hub

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeDirectory struct {
	known map[string]bool
	err   error
}

func (d *fakeDirectory) Known(ctx context.Context, id string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	return d.known[id], nil
}

func drainClient(t *testing.T, c *Client) ServerMessage {
	t.Helper()
	select {
	case m := <-c.send:
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client message")
		return ServerMessage{}
	}
}

func TestClientSubscribeConfirmed(t *testing.T) {
	h := New(testLogger())
	dir := &fakeDirectory{known: map[string]bool{"EL_abc": true}}
	c := NewClient(h, dir, nil, testLogger())

	c.handleSubscribe(context.Background(), "EL_abc")

	got := drainClient(t, c)
	if got.Type != MessageTypeSubscriptionConfirmed || got.ID != "EL_abc" {
		t.Fatalf("got %+v", got)
	}
	if n := h.Subscribers("EL_abc"); n != 1 {
		t.Fatalf("Subscribers = %d, want 1", n)
	}
}

func TestClientSubscribeEmptyID(t *testing.T) {
	h := New(testLogger())
	dir := &fakeDirectory{known: map[string]bool{}}
	c := NewClient(h, dir, nil, testLogger())

	// Blank ids are rejected before any lookup or registration.
	c.handleSubscribe(context.Background(), "   ")

	got := drainClient(t, c)
	if got.Type != MessageTypeError || got.Code != CodeSubscribeInvalid {
		t.Fatalf("got %+v", got)
	}
	if n := h.Subscribers(""); n != 0 {
		t.Fatalf("blank key registered: %d subscribers", n)
	}
}

func TestClientSubscribeUnknownCall(t *testing.T) {
	h := New(testLogger())
	dir := &fakeDirectory{known: map[string]bool{}}
	c := NewClient(h, dir, nil, testLogger())

	c.handleSubscribe(context.Background(), "EL_missing")

	got := drainClient(t, c)
	if got.Type != MessageTypeError || got.Code != CodeCallNotFound {
		t.Fatalf("got %+v", got)
	}
	if n := h.Subscribers("EL_missing"); n != 0 {
		t.Fatalf("unknown key registered: %d subscribers", n)
	}
}

func TestClientSubscribeLookupError(t *testing.T) {
	h := New(testLogger())
	dir := &fakeDirectory{err: errors.New("db down")}
	c := NewClient(h, dir, nil, testLogger())

	c.handleSubscribe(context.Background(), "EL_abc")

	got := drainClient(t, c)
	if got.Type != MessageTypeError {
		t.Fatalf("got %+v", got)
	}
	if got.Code == CodeCallNotFound {
		t.Fatal("lookup failure must not report CALL_NOT_FOUND")
	}
}

func TestClientUnsubscribe(t *testing.T) {
	h := New(testLogger())
	dir := &fakeDirectory{known: map[string]bool{"conv_1": true}}
	c := NewClient(h, dir, nil, testLogger())

	c.handleSubscribe(context.Background(), "conv_1")
	drainClient(t, c)

	c.handleUnsubscribe("conv_1")
	got := drainClient(t, c)
	if got.Type != MessageTypeUnsubscribeConfirmed || got.ID != "conv_1" {
		t.Fatalf("got %+v", got)
	}
	if n := h.Subscribers("conv_1"); n != 0 {
		t.Fatalf("Subscribers = %d, want 0", n)
	}
}

func TestClientCloseUnsubscribesAll(t *testing.T) {
	h := New(testLogger())
	dir := &fakeDirectory{known: map[string]bool{"EL_abc": true, "conv_1": true}}
	c := NewClient(h, dir, nil, testLogger())

	c.handleSubscribe(context.Background(), "EL_abc")
	drainClient(t, c)
	c.handleSubscribe(context.Background(), "conv_1")
	drainClient(t, c)

	c.close()
	c.close() // idempotent

	if n := h.Subscribers("EL_abc"); n != 0 {
		t.Fatalf("EL_abc still has %d subscribers after close", n)
	}
	if n := h.Subscribers("conv_1"); n != 0 {
		t.Fatalf("conv_1 still has %d subscribers after close", n)
	}
}
