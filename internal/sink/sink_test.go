package sink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryOffsetStore_LoadMissingThenSaveThenLoad(t *testing.T) {
	store := NewMemoryOffsetStore()
	ctx := context.Background()

	_, ok, err := store.Load(ctx, "ep1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, "ep1", "42"))

	cursor, ok, err := store.Load(ctx, "ep1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", cursor)
}

func TestChannelSink_PublishDeliversInOrder(t *testing.T) {
	sink := NewChannelSink(4)
	ctx := context.Background()

	records := []Record{
		{EndpointID: "ep1", Key: "1"},
		{EndpointID: "ep1", Key: "2"},
	}
	require.NoError(t, sink.Publish(ctx, records))

	first := <-sink.C()
	second := <-sink.C()
	assert.Equal(t, "1", first.Key)
	assert.Equal(t, "2", second.Key)
}

func TestChannelSink_PublishRespectsContextCancellation(t *testing.T) {
	sink := NewChannelSink(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sink.Publish(ctx, []Record{{EndpointID: "ep1"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFakeClock_AdvanceFiresTicker(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	ticker := clock.NewTicker(10 * time.Millisecond)

	clock.Advance(25 * time.Millisecond)

	count := 0
loop:
	for {
		select {
		case <-ticker.C():
			count++
		default:
			break loop
		}
	}
	assert.GreaterOrEqual(t, count, 1)
	assert.Equal(t, time.Unix(0, 0).Add(25*time.Millisecond), clock.Now())
}
