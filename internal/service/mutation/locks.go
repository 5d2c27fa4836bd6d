package mutation

import (
	"context"
	"sort"
	"sync"
)

type lockEntry struct {
	sem  chan struct{}
	refs int
}

// lockTable hands out one mutex per entity id. Entries are dropped once no
// goroutine holds or waits for them.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*lockEntry)}
}

// acquire locks ids in sorted order so overlapping sets cannot deadlock.
func (t *lockTable) acquire(ctx context.Context, ids []string) (func(), error) {
	sorted := dedupe(ids)
	held := make([]string, 0, len(sorted))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			t.unlock(held[i])
		}
	}

	for _, id := range sorted {
		if err := t.lock(ctx, id); err != nil {
			release()
			return nil, err
		}
		held = append(held, id)
	}
	return release, nil
}

func (t *lockTable) lock(ctx context.Context, id string) error {
	t.mu.Lock()
	e, ok := t.locks[id]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		t.locks[id] = e
	}
	e.refs++
	t.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		t.drop(id, e)
		return ctx.Err()
	}
}

func (t *lockTable) unlock(id string) {
	t.mu.Lock()
	e := t.locks[id]
	t.mu.Unlock()

	<-e.sem
	t.drop(id, e)
}

func (t *lockTable) drop(id string, e *lockEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(t.locks, id)
	}
}

func dedupe(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	n := 0
	for _, id := range out {
		if id == "" || (n > 0 && id == out[n-1]) {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}
