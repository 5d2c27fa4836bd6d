// Package cache is the in-process query cache that sits between the services
// and the Entity Store.
//
// Every write (Set, Update, Remove, Rollback, a completed fetch) notifies the
// subscribers of that key synchronously on the writing goroutine, after the
// store lock has been released. Listeners must not block.
package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"imagine-chat/internal/logger"
	"imagine-chat/internal/metrics"
	"imagine-chat/internal/querykey"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ErrSuperseded is returned when a fetch finished after a newer fetch or write
// of the same key had started; its result was not stored.
var ErrSuperseded = errors.New("cache: fetch superseded")

// Listener receives the new value of a key; ok is false when the key was removed.
type Listener func(key querykey.Key, v Value, ok bool)

// FetchFunc loads the authoritative value of a key.
type FetchFunc func(ctx context.Context) (Value, error)

type entry struct {
	key        querykey.Key
	value      Value
	present    bool
	stale      bool
	generation uint64
	updatedAt  time.Time
}

type subscriber struct {
	id       uint64
	key      querykey.Key
	listener Listener
	fetch    FetchFunc
}

type notification struct {
	key       querykey.Key
	value     Value
	ok        bool
	listeners []Listener
}

// Store is a key/value cache with prefix invalidation, optimistic snapshots
// and background refetch for observed keys.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*entry
	subs      map[string]map[uint64]*subscriber
	nextSubID uint64

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	refetchTimeout time.Duration
	log            *logrus.Entry
}

// Option configures a Store.
type Option func(*Store)

// WithRefetchTimeout bounds each background refetch.
func WithRefetchTimeout(d time.Duration) Option {
	return func(s *Store) { s.refetchTimeout = d }
}

// New creates an empty store. Close stops pending background refetches.
func New(opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		entries:        make(map[string]*entry),
		subs:           make(map[string]map[uint64]*subscriber),
		ctx:            ctx,
		cancel:         cancel,
		refetchTimeout: 30 * time.Second,
		log:            logger.Component("cache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close cancels background refetches and waits for them to return.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
}

// Get returns a copy of the cached value, stale or not.
func (s *Store) Get(key querykey.Key) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key.String()]
	if !ok || !e.present {
		return nil, false
	}
	return e.value.clone(), true
}

// IsStale reports whether key is cached but invalidated.
func (s *Store) IsStale(key querykey.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key.String()]
	return ok && e.present && e.stale
}

// Set stores v under key and cancels any fetch of key still in flight.
func (s *Store) Set(key querykey.Key, v Value) {
	s.mu.Lock()
	n := s.writeLocked(key, v.clone(), true)
	s.mu.Unlock()

	s.notify(n)
}

// Remove drops key from the store.
func (s *Store) Remove(key querykey.Key) {
	s.mu.Lock()
	e, ok := s.entries[key.String()]
	if !ok || !e.present {
		s.mu.Unlock()
		return
	}
	n := s.writeLocked(key, nil, false)
	s.mu.Unlock()

	s.notify(n)
}

// Update atomically replaces the value of key with fn's result. fn receives a
// copy of the current value (nil, false when absent) and returns the new value
// and whether the key should stay present. fn runs under the store lock and
// must not call back into the store.
func (s *Store) Update(key querykey.Key, fn func(v Value, ok bool) (Value, bool)) {
	s.mu.Lock()
	var current Value
	var present bool
	if e, ok := s.entries[key.String()]; ok && e.present {
		current, present = e.value.clone(), true
	}

	next, keep := fn(current, present)
	if !present && !keep {
		s.mu.Unlock()
		return
	}
	if keep {
		next = next.clone()
	}
	n := s.writeLocked(key, next, keep)
	s.mu.Unlock()

	s.notify(n)
}

// Keys returns the present keys under prefix in a stable order.
func (s *Store) Keys(prefix querykey.Key) []querykey.Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []querykey.Key
	for _, e := range s.entries {
		if e.present && e.key.HasPrefix(prefix) {
			keys = append(keys, e.key.Clone())
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Fetch returns the cached value of key when it is fresh, and otherwise loads
// it with fn. Concurrent fetches of one key share a single call to fn.
func (s *Store) Fetch(ctx context.Context, key querykey.Key, fn FetchFunc) (Value, error) {
	s.mu.Lock()
	if e, ok := s.entries[key.String()]; ok && e.present && !e.stale {
		v := e.value.clone()
		s.mu.Unlock()
		metrics.CacheLookupsTotal.WithLabelValues(metrics.OutcomeHit).Inc()
		return v, nil
	}
	s.mu.Unlock()

	metrics.CacheLookupsTotal.WithLabelValues(metrics.OutcomeMiss).Inc()
	return s.load(ctx, key, fn)
}

// Refresh loads key with fn regardless of freshness.
func (s *Store) Refresh(ctx context.Context, key querykey.Key, fn FetchFunc) (Value, error) {
	return s.load(ctx, key, fn)
}

func (s *Store) load(ctx context.Context, key querykey.Key, fn FetchFunc) (Value, error) {
	res, err, _ := s.group.Do(key.String(), func() (any, error) {
		ticket := s.Begin(key)
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, s.Commit(ticket, v)
	})
	if res == nil {
		return nil, err
	}
	return res.(Value).clone(), err
}

// Ticket marks the start of a fetch of a key.
type Ticket struct {
	key        querykey.Key
	generation uint64
}

// Begin starts a fetch of key. Any fetch begun earlier becomes superseded.
func (s *Store) Begin(key querykey.Key) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	e.generation++
	return Ticket{key: key.Clone(), generation: e.generation}
}

// Commit stores the result of the fetch started with t, unless a newer fetch or
// write of the key has begun since, in which case v is dropped and
// ErrSuperseded is returned.
func (s *Store) Commit(t Ticket, v Value) error {
	s.mu.Lock()
	e := s.entryLocked(t.key)
	if e.generation != t.generation {
		s.mu.Unlock()
		s.log.WithField("key", t.key.String()).Debug("Discarding superseded fetch")
		return ErrSuperseded
	}
	n := s.writeLocked(t.key, v.clone(), true)
	s.mu.Unlock()

	s.notify(n)
	return nil
}

// Invalidate marks every entry under prefix stale and schedules a background
// refetch for each observed key under it. It returns the number of entries
// marked.
func (s *Store) Invalidate(prefix querykey.Key) int {
	s.mu.Lock()
	marked := 0
	for _, e := range s.entries {
		if e.present && e.key.HasPrefix(prefix) {
			e.stale = true
			marked++
		}
	}

	refetch := map[string]*subscriber{}
	for k, subs := range s.subs {
		for _, sub := range subs {
			if sub.fetch != nil && sub.key.HasPrefix(prefix) {
				if _, dup := refetch[k]; !dup {
					refetch[k] = sub
				}
			}
		}
	}
	s.mu.Unlock()

	for _, sub := range refetch {
		s.scheduleRefetch(sub.key, sub.fetch)
	}

	s.log.WithFields(logrus.Fields{
		"prefix":  prefix.String(),
		"marked":  marked,
		"refetch": len(refetch),
	}).Debug("Invalidated keys")
	return marked
}

func (s *Store) scheduleRefetch(key querykey.Key, fn FetchFunc) {
	if s.ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, s.refetchTimeout)
		defer cancel()

		_, err := s.load(ctx, key, fn)
		switch {
		case err == nil:
			metrics.CacheRefetchTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
		case errors.Is(err, ErrSuperseded):
			metrics.CacheRefetchTotal.WithLabelValues(metrics.OutcomeSuperseded).Inc()
		default:
			metrics.CacheRefetchTotal.WithLabelValues(metrics.OutcomeError).Inc()
			s.log.WithError(err).WithField("key", key.String()).Warn("Background refetch failed")
		}
	}()
}

// Subscribe registers a passive listener for key.
func (s *Store) Subscribe(key querykey.Key, l Listener) (unsubscribe func()) {
	return s.subscribe(key, l, nil)
}

// Observe registers an active subscriber: invalidations under key trigger a
// background refetch with fn. A missing or stale entry is loaded immediately.
func (s *Store) Observe(key querykey.Key, fn FetchFunc, l Listener) (unsubscribe func()) {
	unsubscribe = s.subscribe(key, l, fn)

	s.mu.Lock()
	e, ok := s.entries[key.String()]
	needsLoad := !ok || !e.present || e.stale
	s.mu.Unlock()

	if needsLoad {
		s.scheduleRefetch(key, fn)
	}
	return unsubscribe
}

func (s *Store) subscribe(key querykey.Key, l Listener, fn FetchFunc) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	k := key.String()
	if s.subs[k] == nil {
		s.subs[k] = make(map[uint64]*subscriber)
	}
	s.subs[k][id] = &subscriber{id: id, key: key.Clone(), listener: l, fetch: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[k], id)
			if len(s.subs[k]) == 0 {
				delete(s.subs, k)
			}
		})
	}
}

// Token is a point-in-time copy of one key, including its absence.
type Token struct {
	key        querykey.Key
	value      Value
	present    bool
	stale      bool
	generation uint64
}

// Key returns the key the token was taken for.
func (t Token) Key() querykey.Key { return t.key }

// Snapshot captures the current state of key.
func (s *Store) Snapshot(key querykey.Key) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := Token{key: key.Clone()}
	if e, ok := s.entries[key.String()]; ok {
		t.generation = e.generation
		if e.present {
			t.value = e.value.clone()
			t.present = true
			t.stale = e.stale
		}
	}
	return t
}

// Stamp records the generation each key has reached, so that a later Rollback
// can tell the caller's own writes apart from anyone else's. Call it once the
// optimistic writes are done.
func (s *Store) Stamp(tokens []Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range tokens {
		if e, ok := s.entries[tokens[i].key.String()]; ok {
			tokens[i].generation = e.generation
		}
	}
}

// Rollback restores the tokens in reverse order under a single lock, so no
// reader observes a partially restored set of keys.
//
// A key that was written or invalidated by someone else since the token was
// stamped gets its old value back but stays stale, and its observers refetch
// it.
func (s *Store) Rollback(tokens ...Token) {
	s.mu.Lock()
	notes := make([]notification, 0, len(tokens))
	var refetch []*subscriber
	for i := len(tokens) - 1; i >= 0; i-- {
		t := tokens[i]
		k := t.key.String()

		stale := t.stale
		if e, ok := s.entries[k]; ok && (e.generation != t.generation || (e.present && e.stale)) {
			stale = true
		}

		var v Value
		if t.present {
			v = t.value.clone()
		}
		n := s.writeLocked(t.key, v, t.present)
		s.entries[k].stale = stale && t.present
		notes = append(notes, n)

		if stale && !t.stale {
			if sub := s.fetcherLocked(k); sub != nil {
				refetch = append(refetch, sub)
			}
		}
	}
	s.mu.Unlock()

	for _, n := range notes {
		s.notify(n)
	}
	for _, sub := range refetch {
		s.scheduleRefetch(sub.key, sub.fetch)
	}
}

// fetcherLocked returns the first observer of key that can refetch it.
func (s *Store) fetcherLocked(k string) *subscriber {
	subs := s.subs[k]
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if subs[id].fetch != nil {
			return subs[id]
		}
	}
	return nil
}

func (s *Store) entryLocked(key querykey.Key) *entry {
	k := key.String()
	e, ok := s.entries[k]
	if !ok {
		e = &entry{key: key.Clone()}
		s.entries[k] = e
	}
	return e
}

// writeLocked stores v (already copied) and bumps the generation so fetches in
// flight are superseded.
func (s *Store) writeLocked(key querykey.Key, v Value, present bool) notification {
	e := s.entryLocked(key)
	e.generation++
	e.value = v
	e.present = present
	e.stale = false
	e.updatedAt = time.Now()

	n := notification{key: e.key, ok: present}
	if present {
		n.value = v
	}

	subs := s.subs[key.String()]
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if l := subs[id].listener; l != nil {
			n.listeners = append(n.listeners, l)
		}
	}
	return n
}

func (s *Store) notify(n notification) {
	for _, l := range n.listeners {
		var v Value
		if n.ok {
			v = n.value.clone()
		}
		l(n.key, v, n.ok)
	}
}
