package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	published map[string][][]byte
	streamed  map[string][][]byte
	pubErr    error
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: map[string][][]byte{}, streamed: map[string][][]byte{}}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	if b.pubErr != nil {
		return b.pubErr
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

func TestOfferRelayWritesChannelAndStream(t *testing.T) {
	bus := newFakeBus()
	r := NewOfferRelay(bus, "", "")

	require.NoError(t, r.Write(context.Background(), domain.EventOfferDeleted, []byte(`{"type":"OFFER_DELETED"}`)))
	assert.Len(t, bus.published[DefaultRelayChannel], 1)
	assert.Len(t, bus.streamed[DefaultRelayStream], 1)
	assert.Equal(t, "redis", r.Name())
}

func TestOfferRelayStillAppendsWhenPublishFails(t *testing.T) {
	bus := newFakeBus()
	bus.pubErr = errors.New("pubsub down")
	r := NewOfferRelay(bus, "c", "s")

	err := r.Write(context.Background(), domain.EventOfferBatch, []byte(`{}`))
	require.Error(t, err)
	assert.Len(t, bus.streamed["s"], 1)
}

func TestClientConfigOptions(t *testing.T) {
	opts, err := ClientConfig{URL: "redis://:secret@cache:6380/2", PoolSize: 7}.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)

	opts, err = ClientConfig{Addr: "localhost:6379", TLSEnabled: true}.Options()
	require.NoError(t, err)
	assert.NotNil(t, opts.TLSConfig)

	_, err = ClientConfig{URL: "http://nope"}.Options()
	assert.Error(t, err)
}

// liveClient connects to the Redis named by OFFERSTREAM_TEST_REDIS_URL or
// skips the test.
func liveClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("OFFERSTREAM_TEST_REDIS_URL")
	if url == "" {
		t.Skip("OFFERSTREAM_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := New(ctx, ClientConfig{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	c := liveClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignalBusStreamIsCapped(t *testing.T) {
	c := liveClient(t)
	bus := NewSignalBus(c, 5)
	ctx := context.Background()
	stream := "test:stream:" + uuid.NewString()
	t.Cleanup(func() { c.Underlying().Del(context.Background(), stream) })

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.StreamAppend(ctx, stream, []byte(`{}`)))
	}
	n, err := c.Underlying().XLen(ctx, stream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, bus.Publish(ctx, "test:channel", []byte(`{}`)))
}

func TestJobLockExcludesSecondHolder(t *testing.T) {
	c := liveClient(t)
	lock := NewJobLock(c)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	release, err := lock.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	release()
	release()

	again, err := lock.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	again()
}
