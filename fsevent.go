package nyx

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FSEventKind is the portable rename/change taxonomy from SPEC_FULL.md
// §4 ("fs-event handle"): fsnotify's richer per-OS op set collapses into
// these three.
type FSEventKind uint8

const (
	FSEventChange FSEventKind = iota
	FSEventRename
	FSEventBoth
)

// FSEventCB delivers one filesystem change.
type FSEventCB func(h *FSEvent, name string, kind FSEventKind, err error)

// FSEvent is the fs-event handle kind: watch registration runs on the
// worker pool (fsnotify.NewWatcher + Add are blocking OS calls), and
// fsnotify's own notification channel is drained on a relay goroutine
// that forwards into the loop thread through an Async — grounded on
// github.com/fsnotify/fsnotify, the same dependency
// TheEntropyCollective-noisefs pulls in for its own filesystem layer.
type FSEvent struct {
	Handle
	cb    FSEventCB
	pool  *Pool
	async *Async

	mu      sync.Mutex
	pending []fsnotify.Event
	watcher *fsnotify.Watcher
}

// NewFSEvent creates an inactive fs-event handle. Call Start to arm it.
func NewFSEvent(loop *Loop, pool *Pool) *FSEvent {
	h := &FSEvent{Handle: newHandle(loop, KindFSEvent), pool: pool}
	h.Handle.Ref()
	h.detach = func() { h.stopLocked() }
	return h
}

// FSEventStart arms a watch on path. Registration happens on the worker
// pool; once the watch is live, cb fires on the loop thread for every
// change until FSEventStop or Close. If registration fails, cb fires once
// with the error and the handle is deactivated.
func (h *FSEvent) FSEventStart(path string, cb FSEventCB) {
	h.cb = cb
	h.activate()
	h.pool.Submit(
		func() (any, error) {
			w, err := fsnotify.NewWatcher()
			if err != nil {
				return nil, fmt.Errorf("fsevent: new watcher: %w", err)
			}
			if err := w.Add(path); err != nil {
				w.Close()
				return nil, fmt.Errorf("fsevent: watch %s: %w", path, err)
			}
			return w, nil
		},
		func(result any, err error, cancelled bool) {
			if cancelled {
				return
			}
			if err != nil {
				h.deactivate()
				if h.cb != nil {
					h.cb(h, path, FSEventChange, mapErrno(err))
				}
				return
			}
			w := result.(*fsnotify.Watcher)
			h.mu.Lock()
			h.watcher = w
			h.mu.Unlock()
			h.async = NewAsync(h.loop, func(*Async) { h.drain() })
			go h.relay(w, h.async)
		},
	)
}

// FSEventStop disarms the watch; no further FSEventCB fires.
func (h *FSEvent) FSEventStop() {
	h.stopLocked()
	h.deactivate()
}

func (h *FSEvent) stopLocked() {
	h.mu.Lock()
	w := h.watcher
	h.watcher = nil
	h.mu.Unlock()
	if w != nil {
		w.Close()
	}
	if h.async != nil {
		h.async.Close(nil)
		h.async = nil
	}
}

func (h *FSEvent) relay(w *fsnotify.Watcher, async *Async) {
	for ev := range w.Events {
		h.mu.Lock()
		h.pending = append(h.pending, ev)
		h.mu.Unlock()
		async.Send()
	}
}

func (h *FSEvent) drain() {
	h.mu.Lock()
	evs := h.pending
	h.pending = nil
	h.mu.Unlock()

	for _, ev := range evs {
		if h.cb == nil {
			continue
		}
		h.cb(h, ev.Name, classifyFSEvent(ev.Op), nil)
	}
}

func classifyFSEvent(op fsnotify.Op) FSEventKind {
	const renameMask = fsnotify.Rename | fsnotify.Remove
	const changeMask = fsnotify.Write | fsnotify.Create | fsnotify.Chmod
	isRename := op&renameMask != 0
	isChange := op&changeMask != 0
	switch {
	case isRename && isChange:
		return FSEventBoth
	case isRename:
		return FSEventRename
	default:
		return FSEventChange
	}
}
