// Package mutation runs writes against the Entity Store with optimistic cache
// updates and exact rollback.
//
// A mutation moves Pending -> Applied -> Confirmed on success. A validation or
// authorization failure ends it in Failed before the cache is touched; a
// remote failure restores every snapshotted key and ends it in RolledBack.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imagine-chat/internal/cache"
	"imagine-chat/internal/logger"
	"imagine-chat/internal/metrics"
	"imagine-chat/internal/querykey"
	"imagine-chat/internal/repository/db"

	"github.com/sirupsen/logrus"
)

// State of a mutation
type State string

const (
	StatePending    State = "pending"
	StateApplied    State = "applied"
	StateConfirmed  State = "confirmed"
	StateRolledBack State = "rolled_back"
	StateFailed     State = "failed"
)

// ErrorKind classifies why a mutation did not confirm
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindUnauthorized ErrorKind = "unauthorized"
	KindRemote       ErrorKind = "remote"
)

// Error is returned by Run for every unsuccessful mutation
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation marks err as a validation failure
func Validation(err error) error {
	return &Error{Kind: KindValidation, Err: err}
}

// Unauthorized marks err as an authorization failure
func Unauthorized(err error) error {
	return &Error{Kind: KindUnauthorized, Err: err}
}

// KindOf returns the kind of a mutation error, or "" for other errors
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return ""
}

// Mutation describes one write. Only Kind and Remote are required.
type Mutation[T any] struct {
	// Kind names the operation in logs and metrics
	Kind string
	// Locks are the entity ids this mutation serializes on
	Locks []string
	// Validate runs before any cache write
	Validate func(ctx context.Context) error
	// Keys lists the keys to snapshot before Apply and restore on remote
	// failure. It runs after Validate, while the locks are held.
	Keys func(store *cache.Store) []querykey.Key
	// Apply writes the optimistic state
	Apply func(store *cache.Store)
	// Remote performs the Entity Store call
	Remote func(ctx context.Context) (T, error)
	// Reconcile replaces optimistic state with the confirmed result
	Reconcile func(store *cache.Store, result T)
	// Invalidate lists prefixes to refresh after confirmation
	Invalidate func(result T) []querykey.Key
}

// TransitionHook observes state changes, mainly for tests
type TransitionHook func(kind string, from, to State)

// Coordinator serializes mutations per entity and drives their lifecycle
type Coordinator struct {
	store *cache.Store
	locks *lockTable
	hooks []TransitionHook
	log   *logrus.Entry
}

// NewCoordinator creates a Coordinator over store
func NewCoordinator(store *cache.Store, hooks ...TransitionHook) *Coordinator {
	return &Coordinator{
		store: store,
		locks: newLockTable(),
		hooks: hooks,
		log:   logger.Component("mutation"),
	}
}

// Store returns the cache the coordinator writes to
func (c *Coordinator) Store() *cache.Store {
	return c.store
}

// Run executes m. It returns the remote result on confirmation and an *Error
// otherwise.
func Run[T any](ctx context.Context, c *Coordinator, m Mutation[T]) (T, error) {
	var zero T
	log := c.log.WithField("mutation", m.Kind)

	release, err := c.locks.acquire(ctx, m.Locks)
	if err != nil {
		c.finish(m.Kind, StatePending, StateFailed)
		return zero, &Error{Kind: KindRemote, Op: m.Kind, Err: err}
	}
	defer release()

	if m.Validate != nil {
		if err := m.Validate(ctx); err != nil {
			c.finish(m.Kind, StatePending, StateFailed)
			log.WithError(err).Debug("Mutation rejected")
			return zero, classify(m.Kind, err, KindValidation)
		}
	}

	var keys []querykey.Key
	if m.Keys != nil {
		keys = m.Keys(c.store)
	}
	tokens := make([]cache.Token, len(keys))
	for i, key := range keys {
		tokens[i] = c.store.Snapshot(key)
	}
	if m.Apply != nil {
		m.Apply(c.store)
	}
	c.store.Stamp(tokens)
	c.transition(m.Kind, StatePending, StateApplied)
	log.WithField("keys", len(tokens)).Debug("Optimistic state applied")

	start := time.Now()
	result, err := m.Remote(ctx)
	metrics.MutationDuration.WithLabelValues(m.Kind).Observe(time.Since(start).Seconds())
	if err != nil {
		c.store.Rollback(tokens...)
		c.finish(m.Kind, StateApplied, StateRolledBack)
		log.WithError(err).Warn("Mutation rolled back")
		return zero, classify(m.Kind, err, KindRemote)
	}

	if m.Reconcile != nil {
		m.Reconcile(c.store, result)
	}
	c.finish(m.Kind, StateApplied, StateConfirmed)

	if m.Invalidate != nil {
		for _, prefix := range m.Invalidate(result) {
			c.store.Invalidate(prefix)
		}
	}
	log.Debug("Mutation confirmed")
	return result, nil
}

func classify(op string, err error, fallback ErrorKind) error {
	var me *Error
	if errors.As(err, &me) {
		if me.Op == "" {
			return &Error{Kind: me.Kind, Op: op, Err: me.Err}
		}
		return me
	}
	if errors.Is(err, db.ErrNotFound) {
		return &Error{Kind: KindUnauthorized, Op: op, Err: err}
	}
	return &Error{Kind: fallback, Op: op, Err: err}
}

func (c *Coordinator) transition(kind string, from, to State) {
	for _, h := range c.hooks {
		h(kind, from, to)
	}
}

func (c *Coordinator) finish(kind string, from, to State) {
	c.transition(kind, from, to)
	metrics.MutationsTotal.WithLabelValues(kind, string(to)).Inc()
}
