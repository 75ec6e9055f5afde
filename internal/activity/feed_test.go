package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pressroom/internal/models"
)

type fakeSource struct {
	entries []models.ActivityEntry
	err     error
	calls   int
}

func (f *fakeSource) RecentByWorkspace(string, int) ([]models.ActivityEntry, error) {
	f.calls++
	return f.entries, f.err
}

func TestNewCache_FallsBackToMemoryWithoutAddr(t *testing.T) {
	cache, err := NewCache("", "", 0, time.Second)
	require.NoError(t, err)
	require.NotNil(t, cache)

	ctx := context.Background()
	cache.Set(ctx, "k", []byte("v"))
	val, ok := cache.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), val)
}

func TestMemoryCache_ExpiresEntries(t *testing.T) {
	cache := newMemoryCache(10 * time.Millisecond)
	ctx := context.Background()

	cache.Set(ctx, "k", []byte("v"))
	_, ok := cache.Get(ctx, "k")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = cache.Get(ctx, "k")
	assert.False(t, ok)
}

func TestFeed_ServesFromCacheWithinTTL(t *testing.T) {
	source := &fakeSource{entries: []models.ActivityEntry{
		{ExecutionID: "e1", JobID: 1, JobName: "digest", Status: "completed"},
	}}
	feed := NewFeed(source, newMemoryCache(time.Minute), zap.NewNop())

	ctx := context.Background()
	first, err := feed.Recent(ctx, "ws-1", 20)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := feed.Recent(ctx, "ws-1", 20)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, source.calls, "second read is served from cache")
}

func TestFeed_DifferentLimitsAreSeparateKeys(t *testing.T) {
	source := &fakeSource{}
	feed := NewFeed(source, newMemoryCache(time.Minute), zap.NewNop())

	ctx := context.Background()
	_, err := feed.Recent(ctx, "ws-1", 10)
	require.NoError(t, err)
	_, err = feed.Recent(ctx, "ws-1", 20)
	require.NoError(t, err)

	assert.Equal(t, 2, source.calls)
}

func TestFeed_SourceErrorPropagates(t *testing.T) {
	source := &fakeSource{err: errors.New("db gone")}
	feed := NewFeed(source, newMemoryCache(time.Minute), zap.NewNop())

	_, err := feed.Recent(context.Background(), "ws-1", 20)
	assert.Error(t, err)
}

func TestFeed_NormalizesNilToEmptySlice(t *testing.T) {
	source := &fakeSource{entries: nil}
	feed := NewFeed(source, newMemoryCache(time.Minute), zap.NewNop())

	entries, err := feed.Recent(context.Background(), "ws-1", 20)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}
