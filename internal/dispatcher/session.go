package dispatcher

import (
	"fmt"
	"net"

	"github.com/google/uuid"

	"github.com/bubulemaster/redis-concentrator/internal/netstream"
)

// Session is one client connection: its framed client stream and the
// framed upstream stream opened against the primary that was current at
// creation time. It is owned by exactly one of {the dispatcher's clients
// queue, a worker mid-round, nobody (destroyed)} at any moment — see the
// ownership invariant in SPEC_FULL.md §3.
type Session struct {
	ID         string
	ClientAddr string
	Client     *netstream.Stream
	Upstream   *netstream.Stream
}

// NewSessionID builds the "ip:port - <uuid>" identifier used to name a
// session, chosen once at accept time.
func NewSessionID(remoteAddr net.Addr) string {
	return fmt.Sprintf("%s - %s", remoteAddr.String(), uuid.NewString())
}

// Close releases both sockets. Safe to call on a session whose upstream
// was already closed by a primary-change drain.
func (s *Session) Close() {
	if s.Client != nil {
		_ = s.Client.Close()
	}
	if s.Upstream != nil {
		_ = s.Upstream.Close()
	}
}
