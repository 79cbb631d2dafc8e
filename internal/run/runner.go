// Package run drives one chat completion stream at a time.
package run

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/markis/gpt-markup-preview/internal/client"
	"github.com/markis/gpt-markup-preview/internal/stream"
)

// Streamer opens a decoded completion stream for a conversation.
type Streamer interface {
	Stream(ctx context.Context, messages []client.Message) (*stream.Decoder, error)
}

// Result describes how a run ended. Output holds everything accumulated
// before the end, including after a failure.
type Result struct {
	ID           string
	Output       string
	FinishReason string
	Done         bool
	Cancelled    bool
	Err          error
}

// Failed reports whether the run ended with an error other than cancellation.
func (r Result) Failed() bool {
	return r.Err != nil && !r.Cancelled
}

// Runner keeps at most one stream active. Starting a run cancels the
// previous one and waits until its response body has been released.
type Runner struct {
	streamer    Streamer
	accumulator *stream.Accumulator
	logger      *slog.Logger

	mu     sync.Mutex
	active *job
}

type job struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// NewRunner returns a Runner that publishes progress through acc.
func NewRunner(s Streamer, acc *stream.Accumulator, logger *slog.Logger) *Runner {
	return &Runner{
		streamer:    s,
		accumulator: acc,
		logger:      logger,
	}
}

// Start begins a run for messages and returns its ID.
func (r *Runner) Start(ctx context.Context, messages []client.Message) string {
	return r.start(ctx, messages).id
}

// Run starts a run and waits for that run to end.
func (r *Runner) Run(ctx context.Context, messages []client.Message) Result {
	j := r.start(ctx, messages)
	<-j.done
	return j.result
}

func (r *Runner) start(ctx context.Context, messages []client.Message) *job {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev := r.active; prev != nil {
		select {
		case <-prev.done:
		default:
			r.logger.Debug("cancelling previous run", "run", prev.id)
			prev.cancel()
			<-prev.done
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	j := &job{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.active = j
	r.accumulator.Reset()

	go func() {
		defer close(j.done)
		defer cancel()
		j.result = r.execute(ctx, j.id, messages)
	}()

	return j
}

// Cancel stops the active run, if any. The run reports Cancelled.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		r.active.cancel()
	}
}

// Wait blocks until the active run ends and returns its result.
func (r *Runner) Wait() Result {
	r.mu.Lock()
	j := r.active
	r.mu.Unlock()
	if j == nil {
		return Result{}
	}
	<-j.done
	return j.result
}

func (r *Runner) execute(ctx context.Context, id string, messages []client.Message) Result {
	logger := r.logger.With("run", id)
	result := Result{ID: id}

	decoder, err := r.streamer.Stream(ctx, messages)
	if err != nil {
		return r.finish(logger, result, err)
	}

	events := 0
	for event, err := range decoder.Events(ctx) {
		if err != nil {
			result.Done = decoder.Done()
			return r.finish(logger, result, err)
		}
		events++
		r.accumulator.Add(event)
	}
	logger.Debug("stream finished", "events", events)

	result.Done = decoder.Done()
	return r.finish(logger, result, nil)
}

func (r *Runner) finish(logger *slog.Logger, result Result, err error) Result {
	result.Output = r.accumulator.String()
	result.FinishReason = r.accumulator.FinishReason()
	result.Err = err
	result.Cancelled = stream.IsCancelled(err)

	var protoErr *stream.ProtocolError
	switch {
	case err == nil:
		logger.Debug("run completed", "bytes", len(result.Output), "finish_reason", result.FinishReason)
	case result.Cancelled:
		logger.Info("run cancelled", "bytes", len(result.Output))
	case errors.As(err, &protoErr):
		logger.Error("malformed event in stream", "error", err)
	default:
		logger.Error("run failed", "error", err)
	}
	return result
}
