package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"strings"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// Decoder turns the chunks of a Reader into chat completion events.
//
// Decoded text is split on every "data:" marker. A segment is handed out
// once it is closed by the next marker, or when it already ends in a newline
// and holds a complete payload, or when the stream ends. Empty segments and
// the [DONE] sentinel are dropped; anything else must be valid JSON.
type Decoder struct {
	reader   *Reader
	text     *TextDecoder
	pending  string
	segments []string
	eof      bool
	done     bool
	err      error
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r *Reader) *Decoder {
	return &Decoder{
		reader: r,
		text:   NewTextDecoder(),
	}
}

// Next returns the next event, io.EOF at the end of the stream, or a
// terminal error. After an error no further events are returned.
func (d *Decoder) Next(ctx context.Context) (*ChatCompletionChunk, error) {
	for {
		if d.err != nil {
			return nil, d.err
		}
		if err := ctx.Err(); err != nil {
			return nil, d.fail(err)
		}

		for len(d.segments) > 0 {
			segment := d.segments[0]
			d.segments = d.segments[1:]
			event, err := d.parse(segment)
			if err != nil {
				return nil, d.fail(err)
			}
			if event != nil {
				return event, nil
			}
		}

		if d.eof {
			return nil, d.fail(io.EOF)
		}

		chunk, err := d.reader.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			d.eof = true
			d.feed(d.text.Flush(), true)
		case err != nil:
			return nil, d.fail(err)
		default:
			d.feed(d.text.Decode(chunk), false)
		}
	}
}

// Events returns the remaining events as an iterator. The underlying body is
// released when the loop ends, including when the caller breaks out early.
// A clean end of stream ends the sequence without an error.
func (d *Decoder) Events(ctx context.Context) iter.Seq2[*ChatCompletionChunk, error] {
	return func(yield func(*ChatCompletionChunk, error) bool) {
		defer d.Close()
		for {
			event, err := d.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(event, nil) {
				return
			}
		}
	}
}

// Done reports whether the [DONE] sentinel has been seen.
func (d *Decoder) Done() bool {
	return d.done
}

// Close releases the underlying body.
func (d *Decoder) Close() error {
	return d.reader.Close()
}

func (d *Decoder) feed(text string, final bool) {
	d.pending += text
	parts := strings.Split(d.pending, dataPrefix)
	tail := parts[len(parts)-1]
	d.segments = append(d.segments, parts[:len(parts)-1]...)
	if final || segmentComplete(tail) {
		d.segments = append(d.segments, tail)
		tail = ""
	}
	d.pending = tail
}

func (d *Decoder) parse(segment string) (*ChatCompletionChunk, error) {
	payload := strings.TrimSpace(segment)
	switch payload {
	case "":
		return nil, nil
	case doneSentinel:
		d.done = true
		return nil, nil
	}
	var event ChatCompletionChunk
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, &ProtocolError{Segment: payload, Err: err}
	}
	return &event, nil
}

func (d *Decoder) fail(err error) error {
	d.err = err
	d.segments = nil
	_ = d.reader.Close()
	return err
}

// segmentComplete reports whether the trailing segment can be handed out
// before the next marker arrives. It must end in a newline so a payload cut
// mid-token, or a marker cut after "da", is never mistaken for a whole one.
func segmentComplete(segment string) bool {
	if !strings.HasSuffix(segment, "\n") {
		return false
	}
	payload := strings.TrimSpace(segment)
	return payload == doneSentinel || json.Valid([]byte(payload))
}

// DecodeAll reads r to the end and returns every event. It stops at the
// first error, returning the events decoded before it. r is closed if it is
// an io.ReadCloser.
func DecodeAll(ctx context.Context, r io.Reader) ([]*ChatCompletionChunk, error) {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	var events []*ChatCompletionChunk
	for event, err := range NewDecoder(NewReader(rc)).Events(ctx) {
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
	return events, nil
}
