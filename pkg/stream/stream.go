// Package stream provides the ordered event stream for one pipeline run and
// the durable JSONL event log behind it.
package stream

import (
	"context"
	"sync"
	"time"

	"tuxpilot/pkg/logx"
	"tuxpilot/pkg/proto"
)

// Sink receives every emitted event, typically for durable logging. Sink
// failures never block or fail a run.
type Sink interface {
	WriteEvent(event *proto.AgentEvent) error
}

// Stream is the ordered event channel for one run. All emission goes through
// Emit, which stamps the run ID, the timestamp, and a monotonic sequence
// number under one lock, so consumers observe a single total order.
type Stream struct {
	mu     sync.Mutex
	runID  string
	seq    uint64
	ch     chan *proto.AgentEvent
	ctx    context.Context
	sink   Sink
	closed bool
	now    func() time.Time
}

// New creates a stream for a run. Events emitted after ctx is canceled are
// dropped. sink may be nil.
func New(ctx context.Context, runID string, buffer int, sink Sink) *Stream {
	if buffer < 1 {
		buffer = 1
	}
	return &Stream{
		runID: runID,
		ch:    make(chan *proto.AgentEvent, buffer),
		ctx:   ctx,
		sink:  sink,
		now:   time.Now,
	}
}

// Events returns the consumer side of the stream. The channel closes after
// Close, once all emitted events have been delivered.
func (s *Stream) Events() <-chan *proto.AgentEvent {
	return s.ch
}

// Emit stamps and delivers one event. Returns false if the event was dropped
// because the run is canceled or the stream is closed. Blocks when the
// buffer is full so no consumer ever misses an ordered event.
func (s *Stream) Emit(event *proto.AgentEvent) bool {
	s.mu.Lock()
	if s.closed || s.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.seq++
	event.Seq = s.seq
	event.Timestamp = s.now()
	event.RunID = s.runID

	if s.sink != nil {
		if err := s.sink.WriteEvent(event); err != nil {
			logx.Warnf("event log write failed: %v", err)
		}
	}

	// Send while holding the lock: stamped sequence order and channel order
	// must agree even when the buffer is full and the send blocks.
	defer s.mu.Unlock()
	select {
	case s.ch <- event:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Seq returns the sequence number of the most recently emitted event.
func (s *Stream) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Close ends the stream. Emit calls after Close are dropped.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
