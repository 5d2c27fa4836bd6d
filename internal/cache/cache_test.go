package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"imagine-chat/internal/querykey"
	"imagine-chat/internal/repository/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listOf(titles ...string) ConversationList {
	v := ConversationList{Page: 1, PageSize: 20, Count: len(titles)}
	for i, title := range titles {
		v.Conversations = append(v.Conversations, db.Conversation{ID: string(rune('a' + i)), Title: title})
	}
	return v
}

func TestGetSetRemove(t *testing.T) {
	s := New()
	defer s.Close()

	key := querykey.ConversationListPage("u1", 1, 20)
	_, ok := s.Get(key)
	assert.False(t, ok)

	s.Set(key, listOf("one"))
	v, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, "one", v.(ConversationList).Conversations[0].Title)

	s.Remove(key)
	_, ok = s.Get(key)
	assert.False(t, ok)
}

func TestValuesAreCopied(t *testing.T) {
	s := New()
	defer s.Close()

	key := querykey.ConversationListPage("u1", 1, 20)
	in := listOf("one")
	s.Set(key, in)
	in.Conversations[0].Title = "mutated"

	v, _ := s.Get(key)
	out := v.(ConversationList)
	out.Conversations[0].Title = "mutated again"

	v, _ = s.Get(key)
	assert.Equal(t, "one", v.(ConversationList).Conversations[0].Title)
}

func TestPointerFieldsAreCopied(t *testing.T) {
	s := New()
	defer s.Close()

	deletedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	imageID := "img-1"
	messageID := "msg-1"

	detail := querykey.ConversationDetail("u1", "c1")
	s.Set(detail, ConversationDetail{Conversation: db.Conversation{ID: "c1", DeletedAt: &deletedAt}})

	messages := querykey.MessagePages("u1", "c1")
	s.Set(messages, MessagePages{Pages: []db.MessagePage{{
		Messages: []db.Message{{ID: "m1", ImageID: &imageID, DeletedAt: &deletedAt}},
	}}})

	gallery := querykey.Gallery("u1")
	s.Set(gallery, GalleryList{Images: []db.Image{{ID: "img-1", MessageID: &messageID, DeletedAt: &deletedAt}}})

	// neither the caller's originals nor a returned copy may alias the cache
	deletedAt = deletedAt.Add(time.Hour)
	imageID = "changed"
	messageID = "changed"

	v, _ := s.Get(detail)
	*v.(ConversationDetail).Conversation.DeletedAt = time.Time{}
	v, _ = s.Get(messages)
	*v.(MessagePages).Pages[0].Messages[0].ImageID = "changed again"
	v, _ = s.Get(gallery)
	*v.(GalleryList).Images[0].MessageID = "changed again"

	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	v, _ = s.Get(detail)
	assert.Equal(t, want, *v.(ConversationDetail).Conversation.DeletedAt)
	v, _ = s.Get(messages)
	msg := v.(MessagePages).Pages[0].Messages[0]
	assert.Equal(t, "img-1", *msg.ImageID)
	assert.Equal(t, want, *msg.DeletedAt)
	v, _ = s.Get(gallery)
	img := v.(GalleryList).Images[0]
	assert.Equal(t, "msg-1", *img.MessageID)
	assert.Equal(t, want, *img.DeletedAt)
}

func TestSubscribersAreNotifiedSynchronously(t *testing.T) {
	s := New()
	defer s.Close()

	key := querykey.Gallery("u1")
	var got []int
	unsubscribe := s.Subscribe(key, func(_ querykey.Key, v Value, ok bool) {
		if !ok {
			got = append(got, -1)
			return
		}
		got = append(got, len(v.(GalleryList).Images))
	})

	s.Set(key, GalleryList{Images: []db.Image{{ID: "i1"}}})
	s.Remove(key)
	unsubscribe()
	s.Set(key, GalleryList{})

	assert.Equal(t, []int{1, -1}, got)
}

func TestSnapshotRollbackRestoresExactState(t *testing.T) {
	s := New()
	defer s.Close()

	list := querykey.ConversationListPage("u1", 1, 20)
	detail := querykey.ConversationDetail("u1", "temp-1")
	s.Set(list, listOf("one", "two"))

	tokens := []Token{s.Snapshot(list), s.Snapshot(detail)}

	s.Update(list, func(v Value, ok bool) (Value, bool) {
		l := v.(ConversationList)
		l.Conversations = append([]db.Conversation{{ID: "temp-1", Title: "new"}}, l.Conversations...)
		l.Count++
		return l, true
	})
	s.Set(detail, ConversationDetail{Conversation: db.Conversation{ID: "temp-1"}})
	s.Stamp(tokens)

	s.Rollback(tokens...)

	v, ok := s.Get(list)
	require.True(t, ok)
	assert.Equal(t, listOf("one", "two"), v)
	assert.False(t, s.IsStale(list))
	_, ok = s.Get(detail)
	assert.False(t, ok, "absent keys must be absent again after rollback")
}

func TestRollbackAfterForeignWriteLeavesStale(t *testing.T) {
	s := New()
	defer s.Close()

	key := querykey.ConversationListPage("u1", 1, 20)
	s.Set(key, listOf("one"))

	tokens := []Token{s.Snapshot(key)}
	s.Set(key, listOf("renamed"))
	s.Stamp(tokens)

	// another writer confirms its own row in the meantime
	s.Set(key, listOf("renamed", "created"))

	s.Rollback(tokens...)

	v, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, listOf("one"), v)
	assert.True(t, s.IsStale(key), "a key someone else wrote must be reloaded")
}

func TestRollbackAfterInvalidateLeavesStale(t *testing.T) {
	s := New()
	defer s.Close()

	key := querykey.ConversationListPage("u1", 1, 20)
	s.Set(key, listOf("one"))

	tokens := []Token{s.Snapshot(key)}
	s.Set(key, listOf("renamed"))
	s.Stamp(tokens)
	s.Invalidate(querykey.ConversationList("u1"))

	s.Rollback(tokens...)

	assert.True(t, s.IsStale(key))
}

func TestRollbackRefetchesDivergedObservedKey(t *testing.T) {
	s := New()
	defer s.Close()

	key := querykey.ConversationListPage("u1", 1, 20)
	var fetches int32
	fetch := func(context.Context) (Value, error) {
		atomic.AddInt32(&fetches, 1)
		return listOf("one", "created"), nil
	}
	done := make(chan struct{}, 8)
	unsubscribe := s.Observe(key, fetch, func(querykey.Key, Value, bool) {
		done <- struct{}{}
	})
	defer unsubscribe()
	waitFor(t, done)

	tokens := []Token{s.Snapshot(key)}
	s.Set(key, listOf("renamed"))
	waitFor(t, done)
	s.Stamp(tokens)
	s.Set(key, listOf("renamed", "created"))
	waitFor(t, done)

	s.Rollback(tokens...)
	waitFor(t, done) // rollback write
	waitFor(t, done) // refetch

	v, _ := s.Get(key)
	assert.Equal(t, listOf("one", "created"), v)
	assert.False(t, s.IsStale(key))
	assert.Equal(t, int32(2), atomic.LoadInt32(&fetches))
}

func TestRollbackRestoresStaleness(t *testing.T) {
	s := New()
	defer s.Close()

	key := querykey.ConversationListPage("u1", 1, 20)
	s.Set(key, listOf("one"))
	s.Invalidate(querykey.ConversationList("u1"))
	require.True(t, s.IsStale(key))

	token := s.Snapshot(key)
	s.Set(key, listOf("two"))
	assert.False(t, s.IsStale(key))

	s.Rollback(token)
	assert.True(t, s.IsStale(key))
}

func TestInvalidateMarksPrefixOnly(t *testing.T) {
	s := New()
	defer s.Close()

	page := querykey.ConversationListPage("u1", 1, 20)
	detail := querykey.ConversationDetail("u1", "c1")
	other := querykey.ConversationListPage("u2", 1, 20)
	messages := querykey.MessagePages("u1", "c1")

	s.Set(page, listOf())
	s.Set(detail, ConversationDetail{})
	s.Set(other, listOf())
	s.Set(messages, MessagePages{})

	marked := s.Invalidate(querykey.ConversationList("u1"))

	assert.Equal(t, 2, marked)
	assert.True(t, s.IsStale(page))
	assert.True(t, s.IsStale(detail))
	assert.False(t, s.IsStale(other))
	assert.False(t, s.IsStale(messages))

	_, ok := s.Get(page)
	assert.True(t, ok, "stale entries stay readable")
}

func TestFetchReadThrough(t *testing.T) {
	s := New()
	defer s.Close()

	key := querykey.Gallery("u1")
	var calls int32
	fetch := func(context.Context) (Value, error) {
		atomic.AddInt32(&calls, 1)
		return GalleryList{Images: []db.Image{{ID: "i1"}}}, nil
	}

	_, err := s.Fetch(context.Background(), key, fetch)
	require.NoError(t, err)
	_, err = s.Fetch(context.Background(), key, fetch)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls)

	s.Invalidate(key)
	_, err = s.Fetch(context.Background(), key, fetch)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)
}

func TestFetchErrorLeavesEntry(t *testing.T) {
	s := New()
	defer s.Close()

	key := querykey.Gallery("u1")
	s.Set(key, GalleryList{Images: []db.Image{{ID: "i1"}}})
	s.Invalidate(key)

	boom := errors.New("boom")
	_, err := s.Fetch(context.Background(), key, func(context.Context) (Value, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	v, ok := s.Get(key)
	require.True(t, ok)
	assert.Len(t, v.(GalleryList).Images, 1)
}

func TestSupersededFetchIsDiscarded(t *testing.T) {
	s := New()
	defer s.Close()

	key := querykey.MessagePages("u1", "c1")

	older := s.Begin(key)
	newer := s.Begin(key)

	require.NoError(t, s.Commit(newer, MessagePages{LoadMoreErr: "newer"}))
	assert.ErrorIs(t, s.Commit(older, MessagePages{LoadMoreErr: "older"}), ErrSuperseded)

	v, _ := s.Get(key)
	assert.Equal(t, "newer", v.(MessagePages).LoadMoreErr)
}

func TestWriteSupersedesFetchInFlight(t *testing.T) {
	s := New()
	defer s.Close()

	key := querykey.MessagePages("u1", "c1")
	ticket := s.Begin(key)
	s.Set(key, MessagePages{LoadMoreErr: "optimistic"})

	assert.ErrorIs(t, s.Commit(ticket, MessagePages{LoadMoreErr: "fetched"}), ErrSuperseded)
	v, _ := s.Get(key)
	assert.Equal(t, "optimistic", v.(MessagePages).LoadMoreErr)
}

func TestObserverRefetchesAfterInvalidate(t *testing.T) {
	s := New()
	defer s.Close()

	key := querykey.ConversationListPage("u1", 1, 20)
	var version int32
	fetch := func(context.Context) (Value, error) {
		n := atomic.AddInt32(&version, 1)
		return ConversationList{Count: int(n)}, nil
	}

	var mu sync.Mutex
	var seen []int
	done := make(chan struct{}, 4)
	unsubscribe := s.Observe(key, fetch, func(_ querykey.Key, v Value, ok bool) {
		mu.Lock()
		seen = append(seen, v.(ConversationList).Count)
		mu.Unlock()
		done <- struct{}{}
	})
	defer unsubscribe()

	waitFor(t, done)
	s.Invalidate(querykey.ConversationList("u1"))
	waitFor(t, done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, seen)
	assert.False(t, s.IsStale(key))
}

func TestConcurrentFetchesShareOneCall(t *testing.T) {
	s := New()
	defer s.Close()

	key := querykey.Gallery("u1")
	release := make(chan struct{})
	var calls int32
	fetch := func(context.Context) (Value, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return GalleryList{}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Fetch(context.Background(), key, fetch)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls)
}

func TestKeysByPrefix(t *testing.T) {
	s := New()
	defer s.Close()

	s.Set(querykey.ConversationListPage("u1", 2, 20), listOf())
	s.Set(querykey.ConversationListPage("u1", 1, 20), listOf())
	s.Set(querykey.ConversationDetail("u1", "c1"), ConversationDetail{})

	keys := s.Keys(querykey.ConversationListPages("u1"))
	require.Len(t, keys, 2)
	assert.True(t, keys[0].Equal(querykey.ConversationListPage("u1", 1, 20)))
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}
