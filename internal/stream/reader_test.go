package stream_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/markis/gpt-markup-preview/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_reader_001(t *testing.T) {
	// Chunks are yielded in arrival order and the body is closed once
	assert := assert.New(t)
	body := newChunkedBody("one", "two", "three")
	r := stream.NewReader(body)

	var got []string
	for chunk, err := range r.Chunks(context.Background()) {
		require.NoError(t, err)
		got = append(got, string(chunk))
	}
	assert.Equal([]string{"one", "two", "three"}, got)
	assert.EqualValues(1, body.closes.Load())
	assert.NoError(r.Close())
	assert.EqualValues(1, body.closes.Load())
}

func Test_reader_002(t *testing.T) {
	// Breaking out of the loop early still releases the body
	assert := assert.New(t)
	body := newChunkedBody("one", "two", "three")
	r := stream.NewReader(body)

	for chunk, err := range r.Chunks(context.Background()) {
		require.NoError(t, err)
		assert.Equal("one", string(chunk))
		break
	}
	assert.EqualValues(1, body.closes.Load())
}

func Test_reader_003(t *testing.T) {
	// The sequence cannot be ranged over twice
	assert := assert.New(t)
	body := newChunkedBody("one")
	r := stream.NewReader(body)

	for range r.Chunks(context.Background()) {
	}
	var errs []error
	for _, err := range r.Chunks(context.Background()) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(errs[0], stream.ErrConsumed)
	assert.EqualValues(1, body.closes.Load())
}

func Test_reader_004(t *testing.T) {
	// A read failure is a transport error and releases the body
	assert := assert.New(t)
	body := newChunkedBody("one")
	body.err = errors.New("connection reset")
	r := stream.NewReader(body)

	chunk, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal("one", string(chunk))

	_, err = r.Next(context.Background())
	var transportErr *stream.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Contains(err.Error(), "connection reset")
	assert.EqualValues(1, body.closes.Load())

	_, again := r.Next(context.Background())
	assert.Equal(err, again)
}

func Test_reader_005(t *testing.T) {
	// Cancelling during a pending read ends it and releases the body once
	assert := assert.New(t)
	body := newBlockingBody("first")
	r := stream.NewReader(body)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chunk, err := r.Next(ctx)
	require.NoError(t, err)
	assert.Equal("first", string(chunk))

	go func() {
		<-body.waiting
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := r.Next(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(err, context.Canceled)
		assert.True(stream.IsCancelled(err))
	case <-time.After(5 * time.Second):
		t.Fatal("read was not interrupted by cancellation")
	}
	assert.EqualValues(1, body.closes.Load())
	assert.NoError(r.Close())
	assert.EqualValues(1, body.closes.Load())
}

func Test_reader_006(t *testing.T) {
	// An already cancelled context never touches the body
	assert := assert.New(t)
	body := newChunkedBody("one")
	r := stream.NewReader(body)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Next(ctx)
	assert.ErrorIs(err, context.Canceled)
	assert.EqualValues(1, body.closes.Load())
}

func Test_reader_007(t *testing.T) {
	// End of stream is reported as io.EOF and is sticky
	assert := assert.New(t)
	body := newChunkedBody()
	r := stream.NewReader(body)

	_, err := r.Next(context.Background())
	assert.ErrorIs(err, io.EOF)
	_, err = r.Next(context.Background())
	assert.ErrorIs(err, io.EOF)
	assert.EqualValues(1, body.closes.Load())
}
