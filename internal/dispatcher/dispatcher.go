// Package dispatcher implements the single-threaded matchmaker between
// accepted client sessions and idle workers, and the sole authority on
// "which address is the current primary".
package dispatcher

import (
	"container/list"
	"context"
	"net"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/bubulemaster/redis-concentrator/internal/codec"
	"github.com/bubulemaster/redis-concentrator/internal/netstream"
)

// UpstreamDialer opens a framed stream to addr. Overridable in tests;
// New's default dials a plain TCP connection.
type UpstreamDialer func(addr string) (*netstream.Stream, error)

func dialUpstreamTCP(addr string) (*netstream.Stream, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, codec.NewIOError(err)
	}
	return netstream.New(conn), nil
}

// Dispatcher owns two FIFO queues — waiting clients and idle workers — and
// pairs them off as either side arrives. It is the only goroutine that
// touches either queue, so no locking is needed; everyone else talks to it
// through the Events channel. The current primary address is the one
// exception: PrimaryAddr may be called from other goroutines, so it is
// held in an atomic.Value rather than a plain field.
type Dispatcher struct {
	Events chan Event

	primaryAddr atomic.Value // string
	clients     *list.List   // of *Session
	workers     *list.List   // of WorkerHandle

	dial   UpstreamDialer
	logger *zap.Logger
}

// New builds a Dispatcher. initialPrimary is the address discovered before
// the dispatcher starts accepting traffic (spec requires a primary be
// known before the listener opens).
func New(initialPrimary string, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		Events:  make(chan Event, 64),
		clients: list.New(),
		workers: list.New(),
		dial:    dialUpstreamTCP,
		logger:  logger,
	}
	d.primaryAddr.Store(initialPrimary)
	return d
}

// PrimaryAddr returns the current primary address. Safe to call from any
// goroutine; onNewClient uses it to pick the address each new upstream
// connection is opened against.
func (d *Dispatcher) PrimaryAddr() string { return d.primaryAddr.Load().(string) }

// Run drives the event loop until ctx is cancelled. On cancellation it
// drains both queues, closing every waiting session and emptying worker
// handles so workers blocked on a read see a closed channel and exit.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.Events:
			d.handle(ev)
		}
	}
}

func (d *Dispatcher) handle(ev Event) {
	switch {
	case ev.NewClient != nil:
		d.onNewClient(ev.NewClient)
	case ev.WorkerReady != nil:
		d.onWorkerReady(ev.WorkerReady)
	case ev.PrimaryChange != nil:
		d.onPrimaryChanged(ev.PrimaryChange)
	}
}

// onNewClient implements spec §4.4's NewClient algorithm: open an upstream
// stream against the current primary, and on failure log and drop the
// client without touching the workers queue — there is no pending worker
// to remove, since this client was never queued in the first place. On
// success the Session is built (id = "ip:port - <uuid>") and queued.
func (d *Dispatcher) onNewClient(pc *PendingClient) {
	upstream, err := d.dial(d.PrimaryAddr())
	if err != nil {
		d.logger.Warn("upstream dial failed, dropping client",
			zap.String("client", pc.RemoteAddr.String()), zap.Error(err))
		pc.Client.Close()
		return
	}

	s := &Session{
		ID:         NewSessionID(pc.RemoteAddr),
		ClientAddr: pc.RemoteAddr.String(),
		Client:     pc.Client,
		Upstream:   upstream,
	}
	d.clients.PushBack(s)
	d.logger.Debug("client queued", zap.String("session", s.ID))
	d.pair()
}

// onWorkerReady implements spec §4.4's WorkerReady handling: a returned
// session (the worker finished a round without error) goes to the back of
// the clients queue before the handle itself is considered idle, so a
// worker handing back a still-live session doesn't lose its place in line
// to a client that arrived later.
func (d *Dispatcher) onWorkerReady(msg *WorkerReadyMsg) {
	if msg.Returned != nil {
		d.clients.PushBack(msg.Returned)
		d.logger.Debug("session returned to queue", zap.String("session", msg.Returned.ID))
	}
	d.workers.PushBack(msg.Handle)
	d.pair()
}

// onPrimaryChanged records the new primary and drains every session
// currently sitting in the waiting queue: their Upstream was opened
// against the old primary, so holding onto it would mean relaying to a
// node that is no longer primary. Sessions already handed to a worker are
// left alone, preserving the ownership invariant that only one owner ever
// touches a session's sockets: such a session comes back through
// onWorkerReady still holding its old Upstream, is queued again, and is
// closed only if a later round hits an I/O error on it (see SPEC_FULL.md
// §9, RESOLVED).
func (d *Dispatcher) onPrimaryChanged(n *FailoverNotice) {
	old := d.PrimaryAddr()
	if n.Addr == old {
		return
	}
	d.logger.Info("primary changed", zap.String("old", old), zap.String("new", n.Addr))
	d.primaryAddr.Store(n.Addr)

	var next *list.Element
	for e := d.clients.Front(); e != nil; e = next {
		next = e.Next()
		s := e.Value.(*Session)
		d.clients.Remove(e)
		d.logger.Debug("draining queued session on failover", zap.String("session", s.ID))
		s.Close()
	}
}

// pair hands off sessions to idle workers while both queues are non-empty,
// preserving FIFO order on both sides.
func (d *Dispatcher) pair() {
	for d.clients.Len() > 0 && d.workers.Len() > 0 {
		cFront := d.clients.Front()
		wFront := d.workers.Front()
		s := d.clients.Remove(cFront).(*Session)
		h := d.workers.Remove(wFront).(WorkerHandle)

		select {
		case h <- WorkerAssignment{Session: s}:
		default:
			// A worker handle should never be full (capacity 1 and the
			// worker only re-announces once idle), but if it somehow is,
			// don't block the dispatcher loop forever: drop the worker
			// and put the session back at the front of the queue.
			d.clients.PushFront(s)
			d.logger.Warn("worker handle was unexpectedly busy, dropping it")
		}
	}
}

func (d *Dispatcher) shutdown() {
	for e := d.clients.Front(); e != nil; e = e.Next() {
		e.Value.(*Session).Close()
	}
	for e := d.workers.Front(); e != nil; e = e.Next() {
		close(e.Value.(WorkerHandle))
	}
}
