package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MutationsTotal counts coordinator runs by kind and terminal state
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagine_chat",
			Subsystem: "sync",
			Name:      "mutations_total",
			Help:      "Mutations by kind and terminal state",
		},
		[]string{"kind", "state"},
	)

	// MutationDuration measures the remote phase of mutations
	MutationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imagine_chat",
			Subsystem: "sync",
			Name:      "mutation_remote_seconds",
			Help:      "Duration of the remote call of a mutation",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	// CacheRefetchTotal counts background refetches triggered by invalidation
	CacheRefetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagine_chat",
			Subsystem: "cache",
			Name:      "refetch_total",
			Help:      "Background refetches by outcome",
		},
		[]string{"outcome"},
	)

	// CacheLookupsTotal counts read-through lookups
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagine_chat",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Read-through lookups by result",
		},
		[]string{"result"},
	)

	// AssistantMessagesTotal counts orchestrator outcomes
	AssistantMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagine_chat",
			Subsystem: "ai",
			Name:      "assistant_messages_total",
			Help:      "Assistant messages persisted by branch and outcome",
		},
		[]string{"branch", "outcome"},
	)

	// GenerationDuration measures completion and image generation calls
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imagine_chat",
			Subsystem: "ai",
			Name:      "generation_seconds",
			Help:      "Duration of completion and image generation calls",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"branch"},
	)

	// CascadeStepsTotal counts soft-delete cascade steps
	CascadeStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagine_chat",
			Subsystem: "softdelete",
			Name:      "cascade_steps_total",
			Help:      "Soft-delete cascade steps by entity and outcome",
		},
		[]string{"entity", "outcome"},
	)

	// RequestsTotal counts HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagine_chat",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

// Outcome labels
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeFallback   = "fallback"
	OutcomeSuperseded = "superseded"
	OutcomeHit        = "hit"
	OutcomeMiss       = "miss"
)
