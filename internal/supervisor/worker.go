package supervisor

import (
	"context"
	"log"
	"time"

	"github.com/ShivangSharma3/bus-tracking-system/internal/model"
	"github.com/ShivangSharma3/bus-tracking-system/internal/store"
)

// The persistence worker is an isolated context with no sampling capability
// of its own: it only re-persists and re-syncs what the primary loop pushes
// to it, so the last known position survives when the primary context stalls.

type msgType int

const (
	msgStartTracking msgType = iota
	msgStopTracking
	msgUpdateSession
	msgLocationData
	msgPing
)

type workerStatus struct {
	Tracking  bool
	LastFixAt time.Time
}

type message struct {
	typ     msgType
	session model.TrackingSession
	fix     model.Fix
	reply   chan workerStatus
}

type worker struct {
	store    *store.Store
	sync     Pusher
	interval time.Duration

	mailbox chan message
	done    chan struct{}
}

func newWorker(st *store.Store, sync Pusher, interval time.Duration) *worker {
	w := &worker{
		store:    st,
		sync:     sync,
		interval: interval,
		mailbox:  make(chan message, 16),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *worker) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var (
		tracking  bool
		session   model.TrackingSession
		lastFix   *model.Fix
		lastFixAt time.Time
	)

	for {
		select {
		case <-w.done:
			return
		case msg := <-w.mailbox:
			switch msg.typ {
			case msgStartTracking:
				tracking = true
				session = msg.session
			case msgStopTracking:
				tracking = false
				lastFix = nil
			case msgUpdateSession:
				// A different origin means a new operator took over;
				// anything relayed before the change is theirs to drop.
				if msg.session.Origin != session.Origin {
					lastFix = nil
				}
				session = msg.session
			case msgLocationData:
				fix := msg.fix
				lastFix = &fix
				lastFixAt = time.Now()
			case msgPing:
				if msg.reply != nil {
					msg.reply <- workerStatus{Tracking: tracking, LastFixAt: lastFixAt}
				}
			}
		case <-ticker.C:
			if !tracking || lastFix == nil {
				continue
			}
			w.persist(*lastFix)
		}
	}
}

// persist rewrites the relayed fix as the persistence copy. The original
// observation timestamp is kept so readers still see honest staleness.
func (w *worker) persist(fix model.Fix) {
	fix.Source = model.SourcePersistenceWorker

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.store.PutFix(ctx, fix); err != nil {
		log.Printf("persistence worker: put fix: %v", err)
		return
	}
	if w.sync != nil {
		w.sync.Push(fix)
	}
}

// send delivers a message without blocking; a full mailbox counts as a miss.
func (w *worker) send(msg message) bool {
	select {
	case <-w.done:
		return false
	case w.mailbox <- msg:
		return true
	default:
		return false
	}
}

// ping round-trips a health probe through the worker's mailbox.
func (w *worker) ping(timeout time.Duration) (workerStatus, bool) {
	reply := make(chan workerStatus, 1)
	if !w.send(message{typ: msgPing, reply: reply}) {
		return workerStatus{}, false
	}
	select {
	case status := <-reply:
		return status, true
	case <-time.After(timeout):
		return workerStatus{}, false
	}
}

func (w *worker) close() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}
