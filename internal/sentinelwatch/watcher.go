// Package sentinelwatch discovers the current primary address through a
// Sentinel quorum and then watches for +switch-master failover
// notifications over the Sentinel pub/sub channel, forwarding them to the
// dispatcher. Grounded on
// other_examples/a146e51d_moby-moby__vendor-src-gopkg.in-redis.v3-sentinel.go.go
// (sentinelFailover.listen/MasterAddr) and original_source/src/sentinel/mod.rs
// (the subscribe/message dispatch and rollover-on-disconnect behaviour).
package sentinelwatch

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bubulemaster/redis-concentrator/internal/codec"
	"github.com/bubulemaster/redis-concentrator/internal/dispatcher"
	"github.com/bubulemaster/redis-concentrator/internal/netstream"
)

// pollInterval paces the non-blocking pull loop that checks for a
// +switch-master pub/sub message, so the watcher doesn't spin a CPU core
// while idle between failovers.
const pollInterval = 50 * time.Millisecond

// Dialer opens a stream to a Sentinel address. Overridable in tests.
type Dialer func(addr string) (*netstream.Stream, error)

// Watcher tracks a fixed list of known Sentinel addresses and the
// replication group name they manage, and knows how to both discover the
// current primary once and keep watching for subsequent failovers.
type Watcher struct {
	Addrs     []string
	GroupName string
	Dial      Dialer
	Logger    *zap.Logger

	current int // index into Addrs of the last Sentinel used successfully
}

// New builds a Watcher with the default TCP dialer.
func New(addrs []string, groupName string, logger *zap.Logger) *Watcher {
	return &Watcher{
		Addrs:     addrs,
		GroupName: groupName,
		Dial:      dialTCP,
		Logger:    logger,
	}
}

func dialTCP(addr string) (*netstream.Stream, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, codec.NewIOError(err)
	}
	return netstream.New(conn), nil
}

// DiscoverPrimary queries each known Sentinel in turn until one answers
// SENTINEL GET-MASTER-ADDR-BY-NAME, returning the primary's "host:port".
// It returns an error only once every Sentinel in the list has refused or
// failed to answer.
func (w *Watcher) DiscoverPrimary(ctx context.Context) (string, error) {
	for i := range w.Addrs {
		idx := (w.current + i) % len(w.Addrs)
		addr := w.Addrs[idx]

		primary, err := w.queryOne(addr)
		if err != nil {
			w.Logger.Warn("sentinel query failed", zap.String("sentinel", addr), zap.Error(err))
			continue
		}
		w.current = idx
		return primary, nil
	}
	return "", fmt.Errorf("no sentinel in %v answered GET-MASTER-ADDR-BY-NAME for %q", w.Addrs, w.GroupName)
}

func (w *Watcher) queryOne(addr string) (string, error) {
	stream, err := w.Dial(addr)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	if err := stream.WriteAll(codec.EncodeSentinelGetMasterAddrByName(w.GroupName)); err != nil {
		return "", err
	}
	reply, err := codec.ReadReplyBlocking(stream)
	if err != nil {
		return "", err
	}
	return addrFromArrayReply(reply)
}

func addrFromArrayReply(reply *codec.Reply) (string, error) {
	if reply.Type != codec.TagArray || reply.ArrayNull || len(reply.Array) != 2 {
		return "", fmt.Errorf("unexpected GET-MASTER-ADDR-BY-NAME reply shape")
	}
	ip := reply.Array[0]
	port := reply.Array[1]
	if ip.Type != codec.TagBulkString || port.Type != codec.TagBulkString {
		return "", fmt.Errorf("unexpected GET-MASTER-ADDR-BY-NAME element types")
	}
	return net.JoinHostPort(string(ip.Bulk), string(port.Bulk)), nil
}

// Run subscribes to +switch-master on the currently known-good Sentinel
// and posts a PrimaryChanged event for every failover observed, for as
// long as ctx is live. If the subscription connection breaks, it rolls
// over to the next Sentinel in the list; once a full pass over the list
// fails in a row, Run returns an error — the concentrator cannot safely
// keep routing without a way to detect the next failover.
func (w *Watcher) Run(ctx context.Context, events chan<- dispatcher.Event) error {
	failuresInARow := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if failuresInARow >= len(w.Addrs) {
			return fmt.Errorf("exhausted all %d known sentinels without a working subscription", len(w.Addrs))
		}

		addr := w.Addrs[w.current]
		stream, err := w.subscribe(addr)
		if err != nil {
			w.Logger.Warn("sentinel subscribe failed, rolling over", zap.String("sentinel", addr), zap.Error(err))
			w.advance()
			failuresInARow++
			continue
		}
		failuresInARow = 0

		if err := w.pull(ctx, stream, events); err != nil {
			w.Logger.Warn("sentinel subscription lost, rolling over", zap.String("sentinel", addr), zap.Error(err))
			stream.Close()
			w.advance()
			failuresInARow++
			continue
		}
		stream.Close()
		return nil // ctx cancelled mid-pull
	}
}

func (w *Watcher) advance() {
	w.current = (w.current + 1) % len(w.Addrs)
}

func (w *Watcher) subscribe(addr string) (*netstream.Stream, error) {
	stream, err := w.Dial(addr)
	if err != nil {
		return nil, err
	}
	if err := stream.WriteAll(codec.EncodeSubscribe("+switch-master")); err != nil {
		stream.Close()
		return nil, err
	}
	// The subscribe acknowledgement is itself a reply; consume it and
	// validate its shape per spec §4.3 step 4 before it's mistaken for the
	// first published message.
	ack, err := codec.ReadReplyBlocking(stream)
	if err != nil {
		stream.Close()
		return nil, err
	}
	if err := w.handleSubscribeAck(ack); err != nil {
		stream.Close()
		return nil, err
	}
	return stream, nil
}

// handleSubscribeAck validates the "subscribe" acknowledgement reply
// (["subscribe", "<channel>", <count>]) and logs the current subscription
// count at info level, exactly as spec §4.3 step 4 requires. No
// dispatcher event is emitted for this reply.
func (w *Watcher) handleSubscribeAck(reply *codec.Reply) error {
	kind, ok := messageType(reply)
	if !ok || kind != "subscribe" {
		return fmt.Errorf("unexpected sentinel subscribe acknowledgement")
	}
	if len(reply.Array) != 3 || reply.Array[2].Type != codec.TagInteger {
		return fmt.Errorf("sentinel subscribe acknowledgement missing integer subscription count")
	}
	w.Logger.Info("sentinel subscription acknowledged",
		zap.String("channel", string(reply.Array[1].Bulk)),
		zap.Int64("subscription_count", reply.Array[2].Int))
	return nil
}

// pull is the non-blocking poll loop: each tick, try to decode one reply
// from the subscription stream without blocking, and if it's a
// +switch-master message, forward the parsed failover to the dispatcher.
func (w *Watcher) pull(ctx context.Context, stream *netstream.Stream, events chan<- dispatcher.Event) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		reply, err := codec.ReadReply(stream)
		if err != nil {
			if codec.IsNoData(err) {
				continue
			}
			return err
		}

		kind, ok := messageType(reply)
		if !ok {
			w.Logger.Warn("sentinel pub/sub reply had no recognizable message type")
			continue
		}

		switch kind {
		case "message":
			addr, ok := parseFailoverNotice(reply, w.GroupName)
			if !ok {
				continue
			}
			w.Logger.Info("observed failover", zap.String("new_primary", addr))
			select {
			case events <- dispatcher.PrimaryChangedEvent(addr):
			case <-ctx.Done():
				return nil
			}
		case "subscribe":
			// A re-subscription ack arriving mid-pull (e.g. after a
			// reconnect) is handled the same way as the initial one.
			if err := w.handleSubscribeAck(reply); err != nil {
				w.Logger.Warn("malformed sentinel subscribe acknowledgement", zap.Error(err))
			}
		default:
			w.Logger.Warn("unknown sentinel pub/sub message type, dropping", zap.String("type", kind))
		}
	}
}

// messageType extracts the first element of a pub/sub reply array — the
// message-type string ("subscribe" or "message") spec §4.3 step 4
// dispatches on. ok is false when reply isn't shaped like a pub/sub
// message at all (not a non-empty array with a bulk-string first
// element).
func messageType(reply *codec.Reply) (string, bool) {
	if reply.Type != codec.TagArray || reply.ArrayNull || len(reply.Array) < 1 {
		return "", false
	}
	first := reply.Array[0]
	if first.Type != codec.TagBulkString {
		return "", false
	}
	return string(first.Bulk), true
}

// parseFailoverNotice recognises a pub/sub message reply of the shape
// ["message", "+switch-master", "<group> <old-ip> <old-port> <new-ip>
// <new-port>"] and, if group matches wantGroup, returns the new primary's
// "host:port".
func parseFailoverNotice(reply *codec.Reply, wantGroup string) (string, bool) {
	if reply.Type != codec.TagArray || reply.ArrayNull || len(reply.Array) != 3 {
		return "", false
	}
	kind, channel, payload := reply.Array[0], reply.Array[1], reply.Array[2]
	if kind.Type != codec.TagBulkString || string(kind.Bulk) != "message" {
		return "", false
	}
	if channel.Type != codec.TagBulkString || string(channel.Bulk) != "+switch-master" {
		return "", false
	}
	if payload.Type != codec.TagBulkString {
		return "", false
	}

	fields := strings.Fields(string(payload.Bulk))
	if len(fields) != 5 {
		return "", false
	}
	group, _, _, newIP, newPort := fields[0], fields[1], fields[2], fields[3], fields[4]
	if group != wantGroup {
		return "", false
	}
	return net.JoinHostPort(newIP, newPort), true
}
