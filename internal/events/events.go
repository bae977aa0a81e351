// Package events implements the §4.8 event source registry and
// dispatcher: a fixed set of named sources (device state, document
// indexing completion, inbound webhook) each publish dictionaries of the
// shape `{source, timestamp, ...payload}` onto a shared channel the
// dispatcher drains, matching them against event automations (§4.3) and
// any internal subscribers. Grounded on the teacher's
// internal/channels/manager.go dispatch-loop shape (a goroutine draining
// a channel via select/ctx.Done) and internal/bus/types.go's
// EventPublisher (Subscribe/Unsubscribe/Broadcast) interface — the
// teacher's concrete bus implementation was filtered out of the
// retrieval pack, so Dispatcher is original wiring rather than an
// adaptation of an unseen file.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/familyassistant/core/internal/metrics"
)

// Event is the dictionary shape every source publishes: at minimum
// source/timestamp plus source-specific payload fields, matched against
// automations' dotted-path match_conditions (§6.3). Declared as an alias
// (not a distinct named type) so it is interchangeable with
// internal/automation.EventService.HandleEvent's map[string]any
// parameter without an adapter closure at every wiring site.
type Event = map[string]any

// Source is the common interface every event source implements: Start
// begins emitting onto the publish func (non-blocking — Start itself must
// return once its background goroutine is running), Stop tears it down.
type Source interface {
	Name() string
	Start(ctx context.Context, publish func(Event)) error
	Stop(ctx context.Context) error
}

// Handler matches a published event against enabled listeners for its
// source and triggers them — internal/automation.EventService.HandleEvent
// satisfies this signature directly.
type Handler func(ctx context.Context, sourceID string, event Event) error

// Dispatcher owns the fixed source registry, fans every published event
// out to the automation Handler plus any internal subscribers (e.g. the
// worker watching for worker_completion webhook events), and keeps an
// in-memory listener index out of scope — that index lives in
// store.AutomationStore and is queried fresh per event via
// ListEnabledEvents, so there is nothing here to go stale.
type Dispatcher struct {
	mu          sync.RWMutex
	sources     map[string]Source
	handler     Handler
	subscribers map[string]func(Event)

	eventCh chan sourcedEvent
	cancel  context.CancelFunc
	done    chan struct{}
}

type sourcedEvent struct {
	source string
	event  Event
}

func NewDispatcher(handler Handler) *Dispatcher {
	return &Dispatcher{
		sources:     make(map[string]Source),
		handler:     handler,
		subscribers: make(map[string]func(Event)),
		eventCh:     make(chan sourcedEvent, 64),
	}
}

// Register adds a source to the fixed registry. Call before Start.
func (d *Dispatcher) Register(s Source) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sources[s.Name()] = s
}

// Subscribe registers an internal subscriber (not an automation) that
// observes every dispatched event regardless of source, keyed by id for
// Unsubscribe.
func (d *Dispatcher) Subscribe(id string, fn func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[id] = fn
}

func (d *Dispatcher) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subscribers, id)
}

// Start launches every registered source and the fan-out loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	go d.run(runCtx)

	d.mu.RLock()
	defer d.mu.RUnlock()
	for name, src := range d.sources {
		publish := func(sourceName string) func(Event) {
			return func(e Event) {
				if e["source"] == nil {
					e["source"] = sourceName
				}
				if e["timestamp"] == nil {
					e["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
				}
				select {
				case d.eventCh <- sourcedEvent{source: sourceName, event: e}:
				case <-runCtx.Done():
				}
			}
		}(name)
		if err := src.Start(runCtx, publish); err != nil {
			slog.Error("events: source failed to start", "source", name, "error", err)
		}
	}
	return nil
}

// Stop tears down every source and the fan-out loop.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.RLock()
	sources := make([]Source, 0, len(d.sources))
	for _, s := range d.sources {
		sources = append(sources, s)
	}
	d.mu.RUnlock()

	for _, s := range sources {
		if err := s.Stop(ctx); err != nil {
			slog.Warn("events: source failed to stop", "source", s.Name(), "error", err)
		}
	}
	if d.cancel != nil {
		d.cancel()
	}
	if d.done != nil {
		<-d.done
	}
	return nil
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case se := <-d.eventCh:
			d.dispatch(ctx, se)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, se sourcedEvent) {
	metrics.RecordEvent(se.source)
	if d.handler != nil {
		if err := d.handler(ctx, se.source, se.event); err != nil {
			slog.Error("events: automation dispatch failed", "source", se.source, "error", err)
		}
	}
	d.mu.RLock()
	subs := make([]func(Event), 0, len(d.subscribers))
	for _, fn := range d.subscribers {
		subs = append(subs, fn)
	}
	d.mu.RUnlock()
	for _, fn := range subs {
		fn(se.event)
	}
}

// Publish injects an event directly, bypassing a Source. No package in
// this module calls it; in particular internal/ingest does not publish
// document-indexing completion events.
func (d *Dispatcher) Publish(sourceName string, event Event) {
	if event == nil {
		event = Event{}
	}
	if event["source"] == nil {
		event["source"] = sourceName
	}
	if event["timestamp"] == nil {
		event["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	select {
	case d.eventCh <- sourcedEvent{source: sourceName, event: event}:
	default:
		slog.Warn("events: dispatcher queue full, dropping event", "source", sourceName)
	}
}
