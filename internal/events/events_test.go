package events

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestDispatcher_PublishCallsHandler(t *testing.T) {
	var mu sync.Mutex
	var gotSource string
	var gotEvent Event

	handler := func(ctx context.Context, sourceID string, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		gotSource = sourceID
		gotEvent = event
		return nil
	}

	d := NewDispatcher(handler)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop(context.Background())

	d.Publish("test_source", Event{"foo": "bar"})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotSource == "test_source"
	})

	mu.Lock()
	defer mu.Unlock()
	if gotEvent["foo"] != "bar" {
		t.Errorf("event payload = %v, want foo=bar", gotEvent)
	}
	if gotEvent["source"] != "test_source" {
		t.Errorf("event source stamp = %v, want test_source", gotEvent["source"])
	}
	if gotEvent["timestamp"] == nil {
		t.Error("expected a timestamp to be stamped onto the event")
	}
}

func TestDispatcher_SubscribersReceiveEveryEvent(t *testing.T) {
	d := NewDispatcher(nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop(context.Background())

	received := make(chan Event, 1)
	d.Subscribe("sub-1", func(e Event) { received <- e })

	d.Publish("src", Event{"x": 1})

	select {
	case e := <-received:
		if e["x"] != 1 {
			t.Errorf("subscriber got %v, want x=1", e)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the published event")
	}
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := NewDispatcher(nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop(context.Background())

	calls := 0
	var mu sync.Mutex
	d.Subscribe("sub-1", func(e Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	d.Unsubscribe("sub-1")

	d.Publish("src", Event{"x": 1})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("expected 0 calls after unsubscribe, got %d", calls)
	}
}

func TestDeviceStateSource_ForwardsFeed(t *testing.T) {
	feed := make(chan Event, 1)
	src := NewDeviceStateSource(feed)

	received := make(chan Event, 1)
	if err := src.Start(context.Background(), func(e Event) { received <- e }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	feed <- Event{"state": "on"}

	select {
	case e := <-received:
		if e["state"] != "on" {
			t.Errorf("got %v, want state=on", e)
		}
	case <-time.After(time.Second):
		t.Fatal("device state event never forwarded")
	}

	if err := src.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestWebhookSource_ServeHTTP(t *testing.T) {
	src := NewWebhookSource("/webhooks/test")

	received := make(chan Event, 1)
	if err := src.Start(context.Background(), func(e Event) { received <- e }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	req := httptest.NewRequest("POST", "/webhooks/test", strings.NewReader(`{"status":"done"}`))
	rec := httptest.NewRecorder()
	src.ServeHTTP(rec, req)

	if rec.Code != 202 {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	select {
	case e := <-received:
		if e["status"] != "done" {
			t.Errorf("got %v, want status=done", e)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook event never published")
	}

	if src.Path() != "/webhooks/test" {
		t.Errorf("Path() = %q, want /webhooks/test", src.Path())
	}
}

func TestWebhookSource_RejectsNonPost(t *testing.T) {
	src := NewWebhookSource("/webhooks/test")
	req := httptest.NewRequest("GET", "/webhooks/test", nil)
	rec := httptest.NewRecorder()
	src.ServeHTTP(rec, req)
	if rec.Code != 405 {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestWebhookSource_RejectsInvalidJSON(t *testing.T) {
	src := NewWebhookSource("/webhooks/test")
	src.publish = func(e Event) {} // started, so ServeHTTP has a publish func to call
	req := httptest.NewRequest("POST", "/webhooks/test", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	src.ServeHTTP(rec, req)
	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
