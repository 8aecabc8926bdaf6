package docstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mchen/ripple/pkg/errors"
)

// A watcher is one live query: it re-runs its query on every change to
// its collection and pushes the result as a snapshot.
type watcher struct {
	collection string
	run        func() ([]Doc, error)
	out        chan Snapshot
	seq        uint64
}

type registration struct {
	w   *watcher
	ack chan struct{}
}

// Hub fans collection change events out to live queries. All watcher
// state is owned by the Run goroutine; registration, removal, and change
// notification go through channels.
//
// Both backends embed a Hub and call Notify after every successful write.
type Hub struct {
	register   chan registration
	unregister chan registration
	notify     chan string
	stop       chan struct{}
	stopped    chan struct{}

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan registration),
		unregister: make(chan registration),
		notify:     make(chan string),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	watchers := make(map[*watcher]bool)
	for {
		select {
		case reg := <-h.register:
			watchers[reg.w] = true
			h.push(reg.w)
			close(reg.ack)
		case reg := <-h.unregister:
			if watchers[reg.w] {
				delete(watchers, reg.w)
				close(reg.w.out)
			}
			close(reg.ack)
		case collection := <-h.notify:
			for w := range watchers {
				if w.collection == collection {
					h.push(w)
				}
			}
		case <-h.stop:
			for w := range watchers {
				close(w.out)
			}
			close(h.stopped)
			return
		}
	}
}

// push re-evaluates the watcher's query and delivers a snapshot. A slow
// consumer only ever sees the newest result: a pending undelivered
// snapshot is replaced, not queued behind.
func (h *Hub) push(w *watcher) {
	docs, err := w.run()
	if err != nil {
		h.logger.Error("live query failed", "collection", w.collection, "error", err)
		return
	}
	w.seq++
	snap := Snapshot{Seq: w.seq, Docs: docs}
	select {
	case w.out <- snap:
	default:
		select {
		case <-w.out:
		default:
		}
		w.out <- snap
	}
}

// Notify tells the hub that a collection changed. It blocks until the hub
// has picked the event up, so snapshots are produced in write order.
func (h *Hub) Notify(collection string) {
	select {
	case h.notify <- collection:
	case <-h.stop:
	}
}

// Close stops the run loop and closes every watcher channel.
func (h *Hub) Close() {
	close(h.stop)
	<-h.stopped
}

// subscription implements Subscription on top of a hub watcher.
type subscription struct {
	hub    *Hub
	w      *watcher
	cancel context.CancelFunc
	once   sync.Once
}

func (s *subscription) Snapshots() <-chan Snapshot { return s.w.out }

// Cancel removes the watcher and discards anything still buffered. Once
// it returns the channel is closed and drained: no snapshot is received
// afterwards. Safe to call more than once.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		ack := make(chan struct{})
		select {
		case s.hub.unregister <- registration{w: s.w, ack: ack}:
			<-ack
		case <-s.hub.stop:
		}
		for range s.w.out {
		}
	})
}

// Watch registers a live query with the hub. run must be safe to call
// from the hub goroutine. The subscription is cancelled automatically
// when ctx is done. Watching a closed hub fails with STORE_UNAVAILABLE.
func (h *Hub) Watch(ctx context.Context, collection string, run func() ([]Doc, error)) (Subscription, error) {
	w := &watcher{
		collection: collection,
		run:        run,
		out:        make(chan Snapshot, 1),
	}
	ack := make(chan struct{})
	select {
	case h.register <- registration{w: w, ack: ack}:
		<-ack
	case <-h.stop:
		return nil, errors.StoreUnavailable("store closed", nil)
	}

	sub := &subscription{hub: h, w: w}
	if ctx != nil && ctx.Done() != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		sub.cancel = cancel
		go func() {
			<-watchCtx.Done()
			sub.Cancel()
		}()
	}
	return sub, nil
}
