package stream_test

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// chunkedBody returns one chunk per Read and counts Close calls.
type chunkedBody struct {
	chunks [][]byte
	err    error
	closes atomic.Int32
}

func newChunkedBody(chunks ...string) *chunkedBody {
	b := &chunkedBody{}
	for _, c := range chunks {
		b.chunks = append(b.chunks, []byte(c))
	}
	return b
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	if b.closes.Load() > 0 {
		return 0, errors.New("read on closed body")
	}
	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	if n < len(b.chunks[0]) {
		b.chunks[0] = b.chunks[0][n:]
	} else {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkedBody) Close() error {
	b.closes.Add(1)
	return nil
}

// blockingBody hands out queued chunks and then blocks until closed.
type blockingBody struct {
	mu      sync.Mutex
	chunks  [][]byte
	closed  chan struct{}
	waiting chan struct{}
	closes  atomic.Int32
}

func newBlockingBody(chunks ...string) *blockingBody {
	b := &blockingBody{
		closed:  make(chan struct{}),
		waiting: make(chan struct{}, 1),
	}
	for _, c := range chunks {
		b.chunks = append(b.chunks, []byte(c))
	}
	return b
}

func (b *blockingBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	if len(b.chunks) > 0 {
		n := copy(p, b.chunks[0])
		b.chunks = b.chunks[1:]
		b.mu.Unlock()
		return n, nil
	}
	b.mu.Unlock()

	select {
	case b.waiting <- struct{}{}:
	default:
	}
	<-b.closed
	return 0, errors.New("use of closed body")
}

func (b *blockingBody) Close() error {
	if b.closes.Add(1) == 1 {
		close(b.closed)
	}
	return nil
}

// splitAt cuts s at the given byte offsets.
func splitAt(s string, offsets ...int) []string {
	var parts []string
	prev := 0
	for _, off := range offsets {
		parts = append(parts, s[prev:off])
		prev = off
	}
	return append(parts, s[prev:])
}
