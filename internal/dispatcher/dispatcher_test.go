package dispatcher

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bubulemaster/redis-concentrator/internal/netstream"
)

// testAddr is a minimal net.Addr so pending clients in tests can carry a
// distinguishable remote address without a real socket.
type testAddr string

func (a testAddr) Network() string { return "test" }
func (a testAddr) String() string  { return string(a) }

// testDispatcher builds a running Dispatcher whose upstream dial always
// succeeds against a throwaway in-memory pipe, so onNewClient's real
// behavior (open upstream, then queue) is exercised without a network.
func testDispatcher(t *testing.T, initialPrimary string) *Dispatcher {
	t.Helper()
	d := New(initialPrimary, zap.NewNop())
	d.dial = func(addr string) (*netstream.Stream, error) {
		server, client := net.Pipe()
		t.Cleanup(func() { client.Close() })
		return netstream.New(server), nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)
	return d
}

// pendingClient builds a PendingClient backed by an in-memory pipe, keyed
// by label so assignments can be told apart without a generated session
// ID or pointer identity on the Session the dispatcher builds internally.
func pendingClient(t *testing.T, label string) *PendingClient {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	return &PendingClient{Client: netstream.New(server), RemoteAddr: testAddr(label)}
}

func TestNewClientThenWorkerReadyPairs(t *testing.T) {
	d := testDispatcher(t, "a:1")

	d.Events <- NewClientEvent(pendingClient(t, "10.0.0.1:1"))

	handle := make(WorkerHandle, 1)
	d.Events <- WorkerReadyEvent(handle, nil)

	select {
	case assignment := <-handle:
		assert.Equal(t, "10.0.0.1:1", assignment.Session.ClientAddr)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for assignment")
	}
}

func TestWorkerReadyThenNewClientPairs(t *testing.T) {
	d := testDispatcher(t, "a:1")

	handle := make(WorkerHandle, 1)
	d.Events <- WorkerReadyEvent(handle, nil)

	d.Events <- NewClientEvent(pendingClient(t, "10.0.0.1:1"))

	select {
	case assignment := <-handle:
		assert.Equal(t, "10.0.0.1:1", assignment.Session.ClientAddr)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for assignment")
	}
}

func TestFIFOOrderingOnBothSides(t *testing.T) {
	d := testDispatcher(t, "a:1")

	d.Events <- NewClientEvent(pendingClient(t, "10.0.0.1:1"))
	d.Events <- NewClientEvent(pendingClient(t, "10.0.0.2:2"))

	h1 := make(WorkerHandle, 1)
	h2 := make(WorkerHandle, 1)
	d.Events <- WorkerReadyEvent(h1, nil)
	d.Events <- WorkerReadyEvent(h2, nil)

	var got1, got2 string
	select {
	case a := <-h1:
		got1 = a.Session.ClientAddr
	case <-time.After(time.Second):
		t.Fatal("timed out on h1")
	}
	select {
	case a := <-h2:
		got2 = a.Session.ClientAddr
	case <-time.After(time.Second):
		t.Fatal("timed out on h2")
	}
	assert.Equal(t, "10.0.0.1:1", got1)
	assert.Equal(t, "10.0.0.2:2", got2)
}

func TestNewClientDropsClientOnUpstreamDialFailure(t *testing.T) {
	d := New("a:1", zap.NewNop())
	d.dial = func(addr string) (*netstream.Stream, error) {
		return nil, fmt.Errorf("upstream refused")
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)

	d.Events <- NewClientEvent(pendingClient(t, "10.0.0.1:1"))

	// A dial failure must drop the client without removing (or otherwise
	// touching) a pending worker: there is nothing queued to hand to one.
	handle := make(WorkerHandle, 1)
	d.Events <- WorkerReadyEvent(handle, nil)
	select {
	case a := <-handle:
		t.Fatalf("expected no assignment after a dropped client, got %+v", a)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPrimaryChangedUpdatesAddrAndDrainsQueuedSessions(t *testing.T) {
	d := testDispatcher(t, "a:1")
	require.Equal(t, "a:1", d.PrimaryAddr())

	d.Events <- NewClientEvent(pendingClient(t, "10.0.0.1:1"))

	d.Events <- PrimaryChangedEvent("b:2")

	require.Eventually(t, func() bool { return d.PrimaryAddr() == "b:2" }, time.Second, 5*time.Millisecond)

	// The queued session was removed from the queue by the drain, so it
	// must not be handed to a freshly announced worker.
	handle := make(WorkerHandle, 1)
	d.Events <- WorkerReadyEvent(handle, nil)
	select {
	case a := <-handle:
		t.Fatalf("expected no assignment after drain, got %+v", a)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPrimaryChangedIsIdempotentForSameAddr(t *testing.T) {
	d := testDispatcher(t, "a:1")
	d.Events <- PrimaryChangedEvent("a:1")
	require.Eventually(t, func() bool { return d.PrimaryAddr() == "a:1" }, time.Second, 5*time.Millisecond)
}
