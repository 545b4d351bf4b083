package rulestore

import (
	"sync/atomic"

	"github.com/cxr-association-engine/internal/domain"
)

type entry struct {
	snapshot *Snapshot
	source   domain.ModelSource
}

// Holder publishes the snapshot currently being served. Readers call Current and
// keep using the returned snapshot for the whole query; Swap replaces the reference
// so a reader never observes a partially built store.
type Holder struct {
	current atomic.Pointer[entry]
}

// NewHolder creates a holder serving initial.
func NewHolder(initial *Snapshot, source domain.ModelSource) *Holder {
	if initial == nil {
		initial = Empty()
		source = domain.SourceDegraded
	}
	h := &Holder{}
	h.current.Store(&entry{snapshot: initial, source: source})
	return h
}

// Current returns the snapshot being served.
func (h *Holder) Current() *Snapshot {
	return h.current.Load().snapshot
}

// Source returns where the current snapshot came from.
func (h *Holder) Source() domain.ModelSource {
	return h.current.Load().source
}

// Swap publishes next and returns the snapshot it replaced.
func (h *Holder) Swap(next *Snapshot, source domain.ModelSource) *Snapshot {
	prev := h.current.Swap(&entry{snapshot: next, source: source})
	return prev.snapshot
}

// Info summarises the current snapshot.
func (h *Holder) Info() domain.ModelInfo {
	e := h.current.Load()
	return e.snapshot.Info(e.source)
}
