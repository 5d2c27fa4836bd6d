package mutation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"imagine-chat/internal/cache"
	"imagine-chat/internal/querykey"
	"imagine-chat/internal/repository/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transitionLog struct {
	mu     sync.Mutex
	states []State
}

func (l *transitionLog) hook(_ string, _, to State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, to)
}

func (l *transitionLog) get() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func seedList(store *cache.Store, key querykey.Key, titles ...string) cache.ConversationList {
	v := cache.ConversationList{Page: 1, PageSize: 20, Count: len(titles)}
	for _, title := range titles {
		v.Conversations = append(v.Conversations, db.Conversation{ID: "id-" + title, Title: title})
	}
	store.Set(key, v)
	return v
}

func keysOf(keys ...querykey.Key) func(*cache.Store) []querykey.Key {
	return func(*cache.Store) []querykey.Key { return keys }
}

func renameMutation(key querykey.Key, remote func(context.Context) (string, error)) Mutation[string] {
	return Mutation[string]{
		Kind:  "rename",
		Locks: []string{"id-a"},
		Keys:  keysOf(key),
		Apply: func(store *cache.Store) {
			store.Update(key, func(v cache.Value, ok bool) (cache.Value, bool) {
				l := v.(cache.ConversationList)
				l.Replace("id-a", db.Conversation{ID: "id-a", Title: "renamed"})
				return l, true
			})
		},
		Remote: remote,
	}
}

func TestRunConfirms(t *testing.T) {
	store := cache.New()
	defer store.Close()
	log := &transitionLog{}
	c := NewCoordinator(store, log.hook)

	key := querykey.ConversationListPage("u1", 1, 20)
	seedList(store, key, "a", "b")

	m := renameMutation(key, func(context.Context) (string, error) { return "server", nil })
	var reconciled string
	m.Reconcile = func(_ *cache.Store, result string) { reconciled = result }
	m.Invalidate = func(string) []querykey.Key { return []querykey.Key{querykey.ConversationList("u1")} }

	result, err := Run(context.Background(), c, m)
	require.NoError(t, err)
	assert.Equal(t, "server", result)
	assert.Equal(t, "server", reconciled)
	assert.Equal(t, []State{StateApplied, StateConfirmed}, log.get())
	assert.True(t, store.IsStale(key))

	v, _ := store.Get(key)
	assert.Equal(t, "renamed", v.(cache.ConversationList).Conversations[0].Title)
}

func TestRunRollsBackExactly(t *testing.T) {
	store := cache.New()
	defer store.Close()
	log := &transitionLog{}
	c := NewCoordinator(store, log.hook)

	key := querykey.ConversationListPage("u1", 1, 20)
	detail := querykey.ConversationDetail("u1", "id-a")
	before := seedList(store, key, "a", "b")

	boom := errors.New("connection reset")
	m := renameMutation(key, func(context.Context) (string, error) { return "", boom })
	m.Keys = keysOf(key, detail)
	inner := m.Apply
	m.Apply = func(store *cache.Store) {
		inner(store)
		store.Set(detail, cache.ConversationDetail{Conversation: db.Conversation{ID: "id-a"}})
	}

	_, err := Run(context.Background(), c, m)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, KindRemote, KindOf(err))
	assert.Equal(t, []State{StateApplied, StateRolledBack}, log.get())

	v, ok := store.Get(key)
	require.True(t, ok)
	assert.Equal(t, before, v)
	_, ok = store.Get(detail)
	assert.False(t, ok)
}

func TestKeysAreListedUnderTheLock(t *testing.T) {
	store := cache.New()
	defer store.Close()
	c := NewCoordinator(store)

	first := querykey.ConversationListPage("u1", 1, 20)
	seedList(store, first, "a")

	entered := make(chan struct{})
	release := make(chan struct{})
	holder := renameMutation(first, func(context.Context) (string, error) {
		close(entered)
		<-release
		return "ok", nil
	})
	holderDone := make(chan error, 1)
	go func() {
		_, err := Run(context.Background(), c, holder)
		holderDone <- err
	}()
	<-entered

	renameEverywhere := func(store *cache.Store, keys []querykey.Key) {
		for _, key := range keys {
			store.Update(key, func(v cache.Value, ok bool) (cache.Value, bool) {
				l := v.(cache.ConversationList)
				l.Replace("id-a", db.Conversation{ID: "id-a", Title: "second"})
				return l, true
			})
		}
	}
	var listed []querykey.Key
	waiter := Mutation[string]{
		Kind:  "rename",
		Locks: []string{"id-a"},
		Keys: func(store *cache.Store) []querykey.Key {
			listed = store.Keys(querykey.ConversationListPages("u1"))
			return listed
		},
		Apply:  func(store *cache.Store) { renameEverywhere(store, listed) },
		Remote: func(context.Context) (string, error) { return "ok", nil },
	}
	waiterDone := make(chan error, 1)
	go func() {
		_, err := Run(context.Background(), c, waiter)
		waiterDone <- err
	}()

	// a page cached while the second mutation waits for the lock
	second := querykey.ConversationListPage("u1", 2, 20)
	seedList(store, second, "a")

	close(release)
	require.NoError(t, <-holderDone)
	require.NoError(t, <-waiterDone)

	assert.Equal(t, []querykey.Key{first, second}, listed)
	v, _ := store.Get(second)
	assert.Equal(t, "second", v.(cache.ConversationList).Conversations[0].Title)
}

func TestValidationFailsBeforeApply(t *testing.T) {
	store := cache.New()
	defer store.Close()
	log := &transitionLog{}
	c := NewCoordinator(store, log.hook)

	key := querykey.ConversationListPage("u1", 1, 20)
	before := seedList(store, key, "a")

	var remoteCalled bool
	m := renameMutation(key, func(context.Context) (string, error) {
		remoteCalled = true
		return "", nil
	})
	m.Validate = func(context.Context) error { return errors.New("title too long") }

	_, err := Run(context.Background(), c, m)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.False(t, remoteCalled)
	assert.Equal(t, []State{StateFailed}, log.get())

	v, _ := store.Get(key)
	assert.Equal(t, before, v)
}

func TestNotFoundIsUnauthorized(t *testing.T) {
	store := cache.New()
	defer store.Close()
	c := NewCoordinator(store)

	_, err := Run(context.Background(), c, Mutation[int]{
		Kind:     "delete",
		Validate: func(context.Context) error { return db.ErrNotFound },
		Remote:   func(context.Context) (int, error) { return 0, nil },
	})
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.ErrorIs(t, err, db.ErrNotFound)

	_, err = Run(context.Background(), c, Mutation[int]{
		Kind:     "delete",
		Validate: func(context.Context) error { return Unauthorized(errors.New("not owner")) },
		Remote:   func(context.Context) (int, error) { return 0, nil },
	})
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.Contains(t, err.Error(), "delete")
}

func TestSameEntityIsSerialized(t *testing.T) {
	store := cache.New()
	defer store.Close()
	c := NewCoordinator(store)

	var active, maxActive int32
	remote := func(context.Context) (int, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return 0, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Run(context.Background(), c, Mutation[int]{Kind: "touch", Locks: []string{"c1"}, Remote: remote})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxActive)
}

func TestDifferentEntitiesRunConcurrently(t *testing.T) {
	store := cache.New()
	defer store.Close()
	c := NewCoordinator(store)

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	remote := func(context.Context) (int, error) {
		started <- struct{}{}
		<-release
		return 0, nil
	}

	var wg sync.WaitGroup
	for _, id := range []string{"c1", "c2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = Run(context.Background(), c, Mutation[int]{Kind: "touch", Locks: []string{id}, Remote: remote})
		}(id)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("mutations on different entities blocked each other")
		}
	}
	close(release)
	wg.Wait()
}

func TestLockWaitHonoursContext(t *testing.T) {
	store := cache.New()
	defer store.Close()
	c := NewCoordinator(store)

	release := make(chan struct{})
	go func() {
		_, _ = Run(context.Background(), c, Mutation[int]{
			Kind:  "hold",
			Locks: []string{"c1"},
			Remote: func(context.Context) (int, error) {
				<-release
				return 0, nil
			},
		})
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Run(ctx, c, Mutation[int]{Kind: "wait", Locks: []string{"c1"}, Remote: func(context.Context) (int, error) { return 0, nil }})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, dedupe([]string{"c", "a", "", "b", "a", "c"}))
	assert.Empty(t, dedupe(nil))
}
