package serialport

import (
	"io"
	"sync"
	"time"
)

// pipeState is shared by both ends of a Pipe. A single mutex guards all
// of it; buf[i] holds the bytes readable by end i.
type pipeState struct {
	mu     sync.Mutex
	buf    [2][]byte
	closed [2]bool
	cond   [2]*sync.Cond
}

type pipePort struct {
	s   *pipeState
	idx int

	timeout time.Duration // guarded by s.mu
}

// Pipe returns a connected pair of in-memory ports. Bytes written to
// one end become readable on the other. Both ends honor the Port
// timeout contract: Read returns (0, nil) when the read timeout
// elapses, and io.EOF once the peer has closed and all buffered bytes
// are drained.
func Pipe() (Port, Port) {
	s := &pipeState{}
	s.cond[0] = sync.NewCond(&s.mu)
	s.cond[1] = sync.NewCond(&s.mu)

	return &pipePort{s: s, idx: 0, timeout: NoTimeout},
		&pipePort{s: s, idx: 1, timeout: NoTimeout}
}

func (p *pipePort) Read(b []byte) (int, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	// The deadline timer re-locks s.mu, so it only flips expired while
	// Read is blocked in Wait.
	var expired bool
	if d := p.timeout; d >= 0 {
		t := time.AfterFunc(d, func() {
			s.mu.Lock()
			expired = true
			s.mu.Unlock()
			s.cond[p.idx].Broadcast()
		})
		defer t.Stop()
	}

	for len(s.buf[p.idx]) == 0 {
		if s.closed[p.idx] {
			return 0, ErrPortClosed
		}
		if s.closed[1-p.idx] {
			return 0, io.EOF
		}
		if expired {
			return 0, nil
		}
		s.cond[p.idx].Wait()
	}

	n := copy(b, s.buf[p.idx])
	s.buf[p.idx] = s.buf[p.idx][n:]

	return n, nil
}

func (p *pipePort) Write(b []byte) (int, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed[p.idx] {
		return 0, ErrPortClosed
	}

	peer := 1 - p.idx
	if s.closed[peer] {
		return 0, io.ErrClosedPipe
	}

	s.buf[peer] = append(s.buf[peer], b...)
	s.cond[peer].Broadcast()

	return len(b), nil
}

// Close marks this end closed and wakes both ends. It is idempotent.
func (p *pipePort) Close() error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed[p.idx] {
		return nil
	}

	s.closed[p.idx] = true
	s.cond[0].Broadcast()
	s.cond[1].Broadcast()

	return nil
}

func (p *pipePort) SetReadTimeout(t time.Duration) error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed[p.idx] {
		return ErrPortClosed
	}

	p.timeout = t

	return nil
}

func (p *pipePort) ResetInputBuffer() error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed[p.idx] {
		return ErrPortClosed
	}

	s.buf[p.idx] = nil

	return nil
}
