package stream

import (
	"strings"
	"sync"
)

// Accumulator collects delta content into the output of a single run and
// publishes the full output to its observers after every append.
type Accumulator struct {
	mu           sync.Mutex
	buf          strings.Builder
	finishReason string
	observers    []func(string)
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Observe registers fn to receive the accumulated output after each append.
func (a *Accumulator) Observe(fn func(string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, fn)
}

// Add appends the content of the event's first choice. Events without
// content are skipped and Add returns false.
func (a *Accumulator) Add(event *ChatCompletionChunk) bool {
	a.mu.Lock()
	if event != nil && len(event.Choices) > 0 && event.Choices[0].FinishReason != nil {
		a.finishReason = *event.Choices[0].FinishReason
	}
	content, ok := event.Content()
	if !ok {
		a.mu.Unlock()
		return false
	}
	a.buf.WriteString(content)
	output := a.buf.String()
	observers := a.observers
	a.mu.Unlock()

	for _, fn := range observers {
		fn(output)
	}
	return true
}

// String returns the output accumulated so far.
func (a *Accumulator) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.String()
}

// FinishReason returns the last finish_reason seen, if any.
func (a *Accumulator) FinishReason() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finishReason
}

// Reset empties the output for a new run. Observers are kept.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.Reset()
	a.finishReason = ""
}
