package dispatcher

import (
	"net"

	"github.com/bubulemaster/redis-concentrator/internal/netstream"
)

// PendingClient is what the acceptor hands the dispatcher for a freshly
// accepted client socket: spec §4.4's NewClient(socket, endpoint). The
// acceptor does no more than wrap the raw connection and note its remote
// address — opening the upstream connection is the dispatcher's job (see
// onNewClient), not the acceptor's.
type PendingClient struct {
	Client     *netstream.Stream
	RemoteAddr net.Addr
}

// WorkerAssignment is what the dispatcher hands a worker: the session to
// service. The worker itself never redials; Session.Upstream was opened
// against whatever primary was current at accept time.
type WorkerAssignment struct {
	Session *Session
}

// WorkerHandle is the dispatcher's side of a worker's mailbox. It is
// buffered with capacity 1: the protocol in SPEC_FULL.md §4.4/§4.5 never
// has more than one outstanding assignment per worker in flight (a worker
// only re-announces itself after finishing or abandoning its current
// session), so an unbounded channel is unnecessary.
type WorkerHandle chan WorkerAssignment

// Event is a tagged union of the three things the dispatcher reacts to.
// Exactly one field is non-nil on any given Event.
type Event struct {
	NewClient     *PendingClient
	WorkerReady   *WorkerReadyMsg
	PrimaryChange *FailoverNotice
}

// WorkerReadyMsg is a worker announcing (or re-announcing) itself as idle,
// optionally handing back the session it just finished a round with — the
// Go rendering of spec §3's WorkerReady(worker_id, optional ClientSession,
// reply_handle). Returned is nil on a worker's very first announcement and
// on any announcement following a round that ended in an I/O failure (the
// session was already closed and dropped by the worker in that case).
type WorkerReadyMsg struct {
	Handle   WorkerHandle
	Returned *Session
}

// FailoverNotice carries the new primary address from the Sentinel
// watcher to the dispatcher.
type FailoverNotice struct {
	Addr string
}

// NewClientEvent wraps a freshly accepted client socket for the
// dispatcher's event channel; the dispatcher opens its upstream stream
// and builds the Session (spec §4.4 step NewClient).
func NewClientEvent(pc *PendingClient) Event { return Event{NewClient: pc} }

// WorkerReadyEvent wraps a worker announcing (or re-announcing) itself as
// idle, optionally returning the session it just finished a round with.
func WorkerReadyEvent(h WorkerHandle, returned *Session) Event {
	return Event{WorkerReady: &WorkerReadyMsg{Handle: h, Returned: returned}}
}

// PrimaryChangedEvent wraps a Sentinel-observed failover.
func PrimaryChangedEvent(addr string) Event {
	return Event{PrimaryChange: &FailoverNotice{Addr: addr}}
}
