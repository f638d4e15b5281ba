// Package worker implements the fixed-size pool of goroutines that
// actually relay bytes between a client and its upstream once the
// dispatcher has paired them. Grounded on the teacher's worker-pool
// pattern (internal/server/redis_server.go's connection-handling
// goroutines) and on the round-based hand-back protocol in
// original_source/src/workers/mod.rs.
package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/bubulemaster/redis-concentrator/internal/codec"
	"github.com/bubulemaster/redis-concentrator/internal/dispatcher"
	"github.com/bubulemaster/redis-concentrator/internal/netstream"
)

// copyChunkSize bounds how many bytes are relayed in each direction per
// round, so one very active session never starves the worker's ability to
// notice shutdown or give another session a turn. See SPEC_FULL.md §4.5.
const copyChunkSize = 2048

// Run is a worker's whole lifetime: announce readiness (handing back
// whatever session it just finished a round with, if any), wait for an
// assignment, service exactly one round, then announce readiness again.
// It returns when ctx is cancelled or its handle is closed by the
// dispatcher during shutdown.
//
// A worker never keeps a session past a single round — see SPEC_FULL.md
// §4.5 on why round-based hand-back, not persistent per-client ownership,
// is the point of this design: the pool is small and clients are many, so
// a worker that kept servicing one session until EOF would cap
// concurrency at the pool size instead of sharing it fairly.
func Run(ctx context.Context, id int, events chan<- dispatcher.Event, logger *zap.Logger) {
	log := logger.With(zap.Int("worker", id))
	handle := make(dispatcher.WorkerHandle, 1)

	var returned *dispatcher.Session
	for {
		select {
		case <-ctx.Done():
			return
		case events <- dispatcher.WorkerReadyEvent(handle, returned):
		}
		returned = nil

		select {
		case <-ctx.Done():
			return
		case assignment, ok := <-handle:
			if !ok {
				return
			}
			if serviceRound(assignment.Session, log) {
				returned = assignment.Session
			}
		}
	}
}

// serviceRound performs exactly one cooperative turn of bidirectional
// relay: a bounded chunk client->upstream, then a bounded chunk
// upstream->client. It reports whether the session is still healthy and
// should go back to the dispatcher's queue; on failure it closes the
// session itself and reports false.
func serviceRound(s *dispatcher.Session, log *zap.Logger) bool {
	sessLog := log.With(zap.String("session", s.ID))

	if !relay(s.Client, s.Upstream, sessLog, "client->upstream") {
		s.Close()
		return false
	}
	if !relay(s.Upstream, s.Client, sessLog, "upstream->client") {
		s.Close()
		return false
	}
	return true
}

// relay copies at most copyChunkSize bytes from src to dst. It returns
// false when the session must be torn down (a hard read or write error);
// a would-block read (no data available this round) is success with zero
// bytes moved.
func relay(src, dst *netstream.Stream, log *zap.Logger, direction string) bool {
	chunk, err := src.ReadSome(copyChunkSize)
	if err != nil {
		if !codec.IsBrokenPipe(err) {
			log.Debug("relay read failed", zap.String("direction", direction), zap.Error(err))
		}
		return false
	}
	if len(chunk) == 0 {
		return true
	}
	if err := dst.WriteAll(chunk); err != nil {
		log.Debug("relay write failed", zap.String("direction", direction), zap.Error(err))
		return false
	}
	return true
}
