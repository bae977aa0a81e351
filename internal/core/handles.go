// Package core wires the module's shared dependencies into a single
// explicitly-constructed struct, built once in cmd/ and threaded down
// through every constructor — no package-level globals (§9's redesign
// note on the teacher's ad hoc global managers).
package core

import (
	"context"

	"github.com/familyassistant/core/internal/attachments"
	"github.com/familyassistant/core/internal/config"
	"github.com/familyassistant/core/internal/events"
	"github.com/familyassistant/core/internal/ingest"
	"github.com/familyassistant/core/internal/queue"
	"github.com/familyassistant/core/internal/store"
	"github.com/familyassistant/core/internal/tools"
)

// Handles bundles every shared, long-lived dependency a command or
// service needs: the storage layer, the durable queue, the blob store,
// the tool provider chain, and a WorkerSignal hook (a no-op as built
// by New).
type Handles struct {
	Config *config.Config
	Stores *store.Stores
	Queue  *queue.Queue
	Blobs  *attachments.BlobStore
	Tools  tools.Provider

	// Events and Ingest are assembled after New, once the automation
	// event handler and embedding/vector backends are constructed — both
	// are nil until the command wiring calls WithEvents/WithIngest, so
	// callers that don't need event sourcing or document indexing (e.g.
	// a one-shot migrate command) never pay for their setup.
	Events *events.Dispatcher
	Ingest *ingest.Pipeline

	// WorkerSignal is set to a no-op by New and nothing in this module
	// calls it; the worker is woken by Queue.Enqueue's own signal.
	WorkerSignal func()
}

// New constructs a Handles from its already-opened dependencies. Callers
// in cmd/ are responsible for opening the database, building the store
// implementations, and assembling the tool provider chain before calling
// this — Handles itself performs no I/O.
func New(cfg *config.Config, stores *store.Stores, q *queue.Queue, blobs *attachments.BlobStore, toolsProvider tools.Provider) *Handles {
	return &Handles{
		Config:       cfg,
		Stores:       stores,
		Queue:        q,
		Blobs:        blobs,
		Tools:        toolsProvider,
		WorkerSignal: func() {},
	}
}

// WithEvents attaches the event dispatcher once the caller has built it
// (it needs the automation event handler, which in turn needs Handles
// itself, so it cannot be constructed inside New).
func (h *Handles) WithEvents(d *events.Dispatcher) *Handles {
	h.Events = d
	return h
}

// WithIngest attaches the document ingestion pipeline once the caller has
// wired its embedding generator and optional vector store.
func (h *Handles) WithIngest(p *ingest.Pipeline) *Handles {
	h.Ingest = p
	return h
}

// Shutdown releases resources held by Handles. Individual dependencies
// (DB pool, MCP connections) close themselves; this exists as a single
// place command code can call during graceful shutdown.
func (h *Handles) Shutdown(ctx context.Context) error {
	if h.Events != nil {
		if err := h.Events.Stop(ctx); err != nil {
			return err
		}
	}
	if closer, ok := h.Tools.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
