package device

import "time"

// PendingCall is a stream call deferred while another transfer on the
// same function is running. Replay re-issues it.
type PendingCall interface {
	Replay()
}

// StreamState is the per-function state of a chunked transfer.
// It is owned by the connection's event loop and not safe for concurrent use.
type StreamState struct {
	Running                 bool
	RunningSubcall          bool
	RunningSubcallOutOfSync bool
	WaitingFirstChunk       bool

	// Buffer holds the outgoing data or the data reassembled so far.
	Buffer any

	// ChunkOffset is the offset of the next outgoing chunk.
	ChunkOffset int

	// ChunkLength is the number of elements per outgoing chunk.
	ChunkLength int

	// Length is the stream length carried in the low-level values.
	Length int

	// Written accumulates short-write counts.
	Written int

	// Args holds the low-level request values: the template of an out
	// stream or the repeated arguments of an in stream.
	Args []any

	OnSuccess func(values ...any)
	OnError   func(err error)

	// Timer is the per-chunk response timer.
	Timer *time.Timer

	// Generation changes on every reset so stale timer fires can be
	// recognised.
	Generation uint64

	pending []PendingCall
}

// NewStreamState returns an idle stream state.
func NewStreamState() *StreamState {
	return &StreamState{WaitingFirstChunk: true}
}

// Reset returns the state to idle. Queued calls are kept.
func (s *StreamState) Reset() {
	if s.Timer != nil {
		s.Timer.Stop()
		s.Timer = nil
	}

	s.Running = false
	s.RunningSubcall = false
	s.RunningSubcallOutOfSync = false
	s.WaitingFirstChunk = true
	s.Buffer = nil
	s.ChunkOffset = 0
	s.ChunkLength = 0
	s.Length = 0
	s.Written = 0
	s.Args = nil
	s.OnSuccess = nil
	s.OnError = nil
	s.Generation++
}

// Enqueue defers a call until the running transfer finishes.
func (s *StreamState) Enqueue(c PendingCall) {
	s.pending = append(s.pending, c)
}

// Dequeue removes and returns the oldest deferred call.
func (s *StreamState) Dequeue() (PendingCall, bool) {
	if len(s.pending) == 0 {
		return nil, false
	}
	c := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	return c, true
}

// PendingLen returns the number of deferred calls.
func (s *StreamState) PendingLen() int {
	return len(s.pending)
}

// DropPending discards all deferred calls and returns them.
func (s *StreamState) DropPending() []PendingCall {
	p := s.pending
	s.pending = nil
	return p
}

// HighLevelBuffer reassembles a chunked callback.
type HighLevelBuffer struct {
	// Data is the reassembled data; nil when no stream is in progress.
	Data any
}

// Active reports whether a callback stream is in progress.
func (b *HighLevelBuffer) Active() bool {
	return b.Data != nil
}

// Reset discards any partial stream.
func (b *HighLevelBuffer) Reset() {
	b.Data = nil
}
