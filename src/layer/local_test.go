package layer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCloseTerminatesSubscriptions(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	sub, err := l.Subscribe(ctx, "orders.staff")
	require.NoError(t, err)

	require.NoError(t, l.Close())

	_, ok := <-sub.Messages()
	assert.False(t, ok, "stream should be closed")
	assert.ErrorIs(t, sub.Err(), ErrBackendUnavailable)
}

func TestLocalPublishAfterClose(t *testing.T) {
	l := NewLocal()
	require.NoError(t, l.Close())

	err := l.Publish(context.Background(), "orders.staff", []byte(`{}`))
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestLocalSubscribeAfterClose(t *testing.T) {
	l := NewLocal()
	require.NoError(t, l.Close())

	_, err := l.Subscribe(context.Background(), "orders.staff")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestLocalSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()
	defer l.Close()

	_, err := l.Subscribe(ctx, "busy")
	require.NoError(t, err)

	// Overflow the subscriber buffer; publishes must keep succeeding.
	for i := 0; i < subBuffer+10; i++ {
		require.NoError(t, l.Publish(ctx, "busy", []byte(`{}`)))
	}
}
