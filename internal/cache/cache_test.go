package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justmadeid/social-services/internal/logging"
	"github.com/justmadeid/social-services/internal/models"
)

var testTTLs = TTLs{UserData: time.Hour, TimelineData: 6 * time.Hour, TaskResult: 24 * time.Hour}

func newTestCache(t *testing.T) (*Cache, *BadgerStore) {
	t.Helper()
	store, err := OpenBadger("", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, testTTLs, logging.Discard()), store
}

func TestKey_PermutationInvariant(t *testing.T) {
	a := Key(models.OpSearchUser, map[string]any{"query": "alice", "limit": 5})
	b := Key(models.OpSearchUser, map[string]any{"limit": 5, "query": "alice"})
	assert.Equal(t, a, b)

	assert.True(t, strings.HasPrefix(a, "cache:search_user:"))
	assert.Len(t, strings.TrimPrefix(a, "cache:search_user:"), 32)

	c := Key(models.OpSearchUser, map[string]any{"query": "alice", "limit": 6})
	assert.NotEqual(t, a, c)
	d := Key(models.OpFollowing, map[string]any{"query": "alice", "limit": 5})
	assert.NotEqual(t, a, d, "operation is part of the key")
}

func TestTTLFor(t *testing.T) {
	c := New(nil, testTTLs, logging.Discard())
	assert.Equal(t, time.Hour, c.TTLFor(models.OpSearchUser))
	assert.Equal(t, time.Hour, c.TTLFor(models.OpFollowing))
	assert.Equal(t, time.Hour, c.TTLFor(models.OpFollowers))
	assert.Equal(t, 6*time.Hour, c.TTLFor(models.OpTimeline))
	assert.Equal(t, 24*time.Hour, c.TTLFor(models.OpLogin))
}

func TestGetSet_StampsCached(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	in := models.UsersResult{
		Users:    []models.UserRecord{{UserID: "1", ScreenName: "alice"}},
		Metadata: models.Metadata{Query: "alice", Limit: 5, TotalResults: 1, ExecutionTime: 3.2},
	}
	key := Key(models.OpSearchUser, map[string]any{"query": "alice", "limit": 5})

	var miss models.UsersResult
	assert.False(t, c.Get(ctx, key, &miss))

	c.Set(ctx, key, in, time.Hour)

	var got models.UsersResult
	require.True(t, c.Get(ctx, key, &got))
	assert.True(t, got.Metadata.Cached)

	want := in
	want.Metadata.Cached = true
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cached value mismatch (-want +got):\n%s", diff)
	}
}

func TestGet_UndecodableIsMiss(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)
	require.NoError(t, store.Set(ctx, "cache:timeline:bad", []byte("{not json"), 0))

	var got models.TimelineResult
	assert.False(t, c.Get(ctx, "cache:timeline:bad", &got))
}

func TestSet_Expires(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	c.Set(ctx, "cache:search_user:x", map[string]int{"a": 1}, time.Second)
	var got map[string]int
	require.True(t, c.Get(ctx, "cache:search_user:x", &got))

	time.Sleep(1100 * time.Millisecond)
	assert.False(t, c.Get(ctx, "cache:search_user:x", &got))
}

func TestInvalidate_Pattern(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)

	c.Set(ctx, "cache:timeline:aaa", 1, time.Hour)
	c.Set(ctx, "cache:timeline:bbb", 2, time.Hour)
	c.Set(ctx, "cache:following:ccc", 3, time.Hour)

	n, err := c.Invalidate(ctx, "cache:timeline:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	keys, err := store.Keys(ctx, "cache:")
	require.NoError(t, err)
	assert.Equal(t, []string{"cache:following:ccc"}, keys)

	n, err = c.Invalidate(ctx, "cache:nothing:*")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInvalidateForSubject(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)

	following := Key(models.OpFollowing, map[string]any{"username": "alice", "limit": 20})
	timeline := Key(models.OpTimeline, map[string]any{"username": "alice", "tweet_count": 80})
	other := Key(models.OpTimeline, map[string]any{"username": "bob", "tweet_count": 80})
	search := Key(models.OpSearchUser, map[string]any{"query": "alice", "limit": 20})

	c.SetForSubject(ctx, "alice", following, 1, time.Hour)
	c.SetForSubject(ctx, "Alice", timeline, 2, time.Hour)
	c.SetForSubject(ctx, "alice", timeline, 2, time.Hour)
	c.SetForSubject(ctx, "bob", other, 3, time.Hour)
	c.Set(ctx, search, 4, time.Hour)

	n, err := c.InvalidateForSubject(ctx, "@alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var v int
	assert.False(t, c.Get(ctx, following, &v))
	assert.False(t, c.Get(ctx, timeline, &v))
	assert.True(t, c.Get(ctx, other, &v))
	assert.True(t, c.Get(ctx, search, &v), "search results are not keyed on a subject")

	idx, err := store.Keys(ctx, "subject:")
	require.NoError(t, err)
	assert.Equal(t, []string{"subject:bob:" + other}, idx)

	n, err = c.InvalidateForSubject(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInvalidateForSubject_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key(models.OpTimeline, map[string]any{"username": "alice", "tweet_count": i})
			c.SetForSubject(ctx, "alice", key, i, time.Hour)
		}(i)
	}
	wg.Wait()

	n, err := c.InvalidateForSubject(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, writers, n)

	left, err := store.Keys(ctx, keyPrefix)
	require.NoError(t, err)
	assert.Empty(t, left, "every concurrently written entry is invalidated")
}

func TestHealth(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)
	c.Set(ctx, "cache:search_user:1", 1, time.Hour)

	h := c.Health(ctx)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, 1, h.Keys)

	require.NoError(t, store.Close())
	h = c.Health(ctx)
	assert.Equal(t, "unhealthy", h.Status)
	assert.NotEmpty(t, h.Error)
}

type failingStore struct{}

var errDown = errors.New("store down")

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errDown }
func (failingStore) Set(context.Context, string, []byte, time.Duration) error { return errDown }
func (failingStore) Delete(context.Context, ...string) error { return errDown }
func (failingStore) Keys(context.Context, string) ([]string, error) { return nil, errDown }
func (failingStore) Ping(context.Context) error { return errDown }
func (failingStore) Close() error { return nil }

func TestCache_StoreFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	c := New(failingStore{}, testTTLs, logging.Discard())

	c.Set(ctx, "k", 1, time.Hour)
	c.SetForSubject(ctx, "alice", "k", 1, time.Hour)

	var v int
	assert.False(t, c.Get(ctx, "k", &v))

	_, err := c.Invalidate(ctx, "cache:*")
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, "unhealthy", c.Health(ctx).Status)
}
