package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters for board mutations.
type Metrics struct {
	CardsMoved       prometheus.Counter
	CardsEdited      prometheus.Counter
	NoChanges        prometheus.Counter
	Rebalances       prometheus.Counter
	AuditEntries     prometheus.Counter
	MutationErrors   *prometheus.CounterVec
	OptimisticRevert prometheus.Counter
}

// New creates and registers all board metrics.
func New() *Metrics {
	return &Metrics{
		CardsMoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boardkit_cards_moved_total",
			Help: "Total number of committed card moves",
		}),
		CardsEdited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boardkit_cards_edited_total",
			Help: "Total number of committed card field edits",
		}),
		NoChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boardkit_mutations_no_changes_total",
			Help: "Mutations short-circuited because no field actually changed",
		}),
		Rebalances: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boardkit_lane_rebalances_total",
			Help: "Lane position rebalances performed inside mutation transactions",
		}),
		AuditEntries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boardkit_audit_entries_total",
			Help: "Audit entries committed alongside mutations",
		}),
		MutationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "boardkit_mutation_errors_total",
			Help: "Failed mutations by error code",
		}, []string{"code"}),
		OptimisticRevert: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boardkit_optimistic_reverts_total",
			Help: "Client-side optimistic updates reverted after a failed persistence call",
		}),
	}
}
