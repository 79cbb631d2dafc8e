package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"
)

const readBufferSize = 4096

// ErrConsumed is returned when a Reader's chunk sequence is ranged over a second time.
var ErrConsumed = errors.New("stream already consumed")

// Reader pulls raw chunks from a response body. The body is closed exactly
// once: at end of stream, on a read error, on cancellation or when the
// consumer stops early.
type Reader struct {
	body   io.ReadCloser
	buf    []byte
	err    error
	ranged atomic.Bool

	once     sync.Once
	closeErr error
}

// NewReader returns a Reader that owns body.
func NewReader(body io.ReadCloser) *Reader {
	return &Reader{
		body: body,
		buf:  make([]byte, readBufferSize),
	}
}

// Next returns the next chunk from the body, or io.EOF once the body is
// exhausted. Any other error is terminal and is returned again by later
// calls. Cancelling ctx closes the body so a pending read returns promptly.
func (r *Reader) Next(ctx context.Context) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	if err := ctx.Err(); err != nil {
		return nil, r.finish(err)
	}

	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer stop()

	for {
		n, err := r.body.Read(r.buf)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, r.finish(ctxErr)
		}
		if n > 0 {
			chunk := bytes.Clone(r.buf[:n])
			if err != nil {
				// Report the error on the next call so the data is not lost.
				r.err = r.wrap(err)
				_ = r.Close()
			}
			return chunk, nil
		}
		if err != nil {
			return nil, r.finish(r.wrap(err))
		}
	}
}

// Chunks returns the chunk sequence as an iterator. The sequence can be
// ranged over once; the body is released when the loop ends for any reason.
func (r *Reader) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer r.Close()
		if !r.ranged.CompareAndSwap(false, true) {
			yield(nil, ErrConsumed)
			return
		}
		for {
			chunk, err := r.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Close releases the body. It is safe to call more than once and from
// multiple goroutines; only the first call reaches the body.
func (r *Reader) Close() error {
	r.once.Do(func() {
		r.closeErr = r.body.Close()
	})
	return r.closeErr
}

func (r *Reader) finish(err error) error {
	r.err = err
	_ = r.Close()
	return err
}

func (r *Reader) wrap(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return &TransportError{Err: err}
}
