package stream

import "sync"

// Stream delivers text fragments from one generation in order.
//
// The producing goroutine calls Push for each fragment and Close exactly
// once when generation finishes (nil err) or fails (non-nil err). The
// consumer ranges over Fragments, then checks Err; if it stops reading
// early it calls Cancel so pending pushes unblock. Concatenating every
// fragment reconstructs the full generated text exactly once.
type Stream struct {
	ch     chan string
	cancel chan struct{}

	cancelOnce sync.Once

	mu     sync.Mutex
	closed bool
	err    error
}

func New(buffer int) *Stream {
	if buffer < 1 {
		buffer = 1
	}
	return &Stream{
		ch:     make(chan string, buffer),
		cancel: make(chan struct{}),
	}
}

// Push appends one fragment. It blocks while the consumer catches up and
// reports false once the consumer has cancelled, at which point the
// producer should abandon generation.
func (s *Stream) Push(fragment string) bool {
	if fragment == "" {
		return true
	}
	select {
	case s.ch <- fragment:
		return true
	case <-s.cancel:
		return false
	}
}

// Close ends the stream. A nil err is a normal end-of-stream; non-nil
// marks error termination, visible to the consumer via Err. Must be
// called by the producer after its final Push.
func (s *Stream) Close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
}

// Cancel tells the producer the consumer is gone. Safe to call any
// number of times, including after Close.
func (s *Stream) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

// Fragments is the ordered fragment sequence; it closes at end-of-stream.
func (s *Stream) Fragments() <-chan string {
	return s.ch
}

// Err reports the termination error, if any. Meaningful once Fragments
// has closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
