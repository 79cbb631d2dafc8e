package stream_test

import (
	"testing"

	"github.com/markis/gpt-markup-preview/internal/stream"
	"github.com/stretchr/testify/assert"
)

func chunkWith(content *string) *stream.ChatCompletionChunk {
	return &stream.ChatCompletionChunk{
		Choices: []stream.Choice{{Delta: stream.Delta{Content: content}}},
	}
}

func ptr(s string) *string { return &s }

func Test_accumulator_001(t *testing.T) {
	// Content is concatenated and absent content is skipped
	assert := assert.New(t)
	acc := stream.NewAccumulator()

	var published []string
	acc.Observe(func(output string) { published = append(published, output) })

	assert.True(acc.Add(chunkWith(ptr("Hel"))))
	assert.True(acc.Add(chunkWith(ptr("lo"))))
	assert.False(acc.Add(chunkWith(nil)))
	assert.True(acc.Add(chunkWith(ptr("!"))))

	assert.Equal("Hello!", acc.String())
	assert.Equal([]string{"Hel", "Hello", "Hello!"}, published)
}

func Test_accumulator_002(t *testing.T) {
	// Events without choices are benign
	assert := assert.New(t)
	acc := stream.NewAccumulator()
	assert.False(acc.Add(&stream.ChatCompletionChunk{}))
	assert.False(acc.Add(nil))
	assert.Equal("", acc.String())
}

func Test_accumulator_003(t *testing.T) {
	// Reset empties the output but keeps observers
	assert := assert.New(t)
	acc := stream.NewAccumulator()
	calls := 0
	acc.Observe(func(string) { calls++ })

	stop := "stop"
	acc.Add(chunkWith(ptr("old")))
	acc.Add(&stream.ChatCompletionChunk{Choices: []stream.Choice{{FinishReason: &stop}}})
	assert.Equal("stop", acc.FinishReason())

	acc.Reset()
	assert.Equal("", acc.String())
	assert.Equal("", acc.FinishReason())

	acc.Add(chunkWith(ptr("new")))
	assert.Equal("new", acc.String())
	assert.Equal(2, calls)
}
