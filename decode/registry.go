package decode

import (
	"context"
	"sync"
)

// handle is the cancellation handle associated 1:1 with a submitted task.
// Cancellation is cooperative: the worker consults the handle at its
// checkpoints, and the handle's context aborts blocking waits.
type handle struct {
	slot   SlotKey
	task   *Task
	ctx    context.Context
	cancel context.CancelFunc
}

// registry maps each slot key to the in-flight handle for that slot,
// enforcing single-flight per slot. Submitting a new task for an existing
// key atomically supersedes and cancels the previous one.
type registry struct {
	mu     sync.Mutex
	active map[SlotKey]*handle
}

func newRegistry() *registry {
	return &registry{active: make(map[SlotKey]*handle)}
}

func (r *registry) submit(task *Task) *handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{slot: task.Slot, task: task, ctx: ctx, cancel: cancel}
	r.mu.Lock()
	prev := r.active[task.Slot]
	r.active[task.Slot] = h
	r.mu.Unlock()
	if prev != nil {
		prev.cancel()
	}
	return h
}

// stop removes and cancels the handle for slot. No-op if absent.
func (r *registry) stop(slot SlotKey) {
	r.mu.Lock()
	h := r.active[slot]
	delete(r.active, slot)
	r.mu.Unlock()
	if h != nil {
		h.cancel()
	}
}

// isLive reports whether h is still the current handle for its slot and has
// not been cancelled. A superseded handle is never live even though its slot
// key is still present in the registry.
func (r *registry) isLive(h *handle) bool {
	if h.ctx.Err() != nil {
		return false
	}
	r.mu.Lock()
	cur := r.active[h.slot]
	r.mu.Unlock()
	return cur == h
}

// finish retires h's slot entry after a successful delivery. The entry is
// removed only if h is still current, so a concurrently submitted successor
// is left untouched.
func (r *registry) finish(h *handle) {
	r.mu.Lock()
	if r.active[h.slot] == h {
		delete(r.active, h.slot)
	}
	r.mu.Unlock()
	h.cancel()
}

// cancelAll cancels and removes every in-flight handle.
func (r *registry) cancelAll() {
	r.mu.Lock()
	handles := make([]*handle, 0, len(r.active))
	for _, h := range r.active {
		handles = append(handles, h)
	}
	r.active = make(map[SlotKey]*handle)
	r.mu.Unlock()
	for _, h := range handles {
		h.cancel()
	}
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
