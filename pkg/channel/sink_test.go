package channel_test

import (
	"testing"

	"github.com/remindly/callcore/pkg/channel"
	"github.com/stretchr/testify/assert"
)

func TestSink_Send(t *testing.T) {
	messages := make(chan channel.Message[string, int], 4)
	sink := channel.NewSink("sender", messages)

	assert.NoError(t, sink.Send(1))
	assert.NoError(t, sink.Send(2))

	first := <-messages
	assert.Equal(t, "sender", first.Sender)
	assert.Equal(t, 1, first.Content)

	second := <-messages
	assert.Equal(t, 2, second.Content)
}

func TestSink_Seal(t *testing.T) {
	messages := make(chan channel.Message[string, int], 4)
	sink := channel.NewSink("sender", messages)

	sink.Seal()
	assert.ErrorIs(t, sink.Send(1), channel.ErrSinkSealed)

	// Sealing twice must be a no-op.
	sink.Seal()
	assert.ErrorIs(t, sink.Send(2), channel.ErrSinkSealed)
}

func TestSink_SealDoesNotCloseChannel(t *testing.T) {
	messages := make(chan channel.Message[string, int], 4)
	one := channel.NewSink("one", messages)
	two := channel.NewSink("two", messages)

	one.Seal()

	// Other senders of the shared channel are not affected.
	assert.NoError(t, two.Send(42))
	msg := <-messages
	assert.Equal(t, "two", msg.Sender)
}
