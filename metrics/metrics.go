// Package metrics exposes prometheus counters for tree mutation and
// pruning activity, registered the way iavl-v1's tree command wires its
// costor_index_tree_leaf_count counter via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the counters one Tree instance reports. ConstLabels
// distinguish multiple trees sharing one process registry.
type Metrics struct {
	Inserts      prometheus.Counter
	Updates      prometheus.Counter
	Removes      prometheus.Counter
	OrphansEmitted prometheus.Counter
	NodesPruned  prometheus.Counter
	Prunes       prometheus.Counter
}

// New registers a fresh set of counters in the default prometheus registry,
// tagged with labels (typically a "tree" or "backend" name) so multiple
// instances can share it. All instances in one process must use the same
// set of label names with distinct values; New panics on a differing set
// of label names or on an exact repeat of an earlier label set.
func New(labels map[string]string) *Metrics {
	return &Metrics{
		Inserts: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "iavlplus_inserts_total",
			Help:        "number of Insert calls that created a new leaf",
			ConstLabels: labels,
		}),
		Updates: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "iavlplus_updates_total",
			Help:        "number of Insert calls that updated an existing leaf",
			ConstLabels: labels,
		}),
		Removes: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "iavlplus_removes_total",
			Help:        "number of Remove calls that removed an existing leaf",
			ConstLabels: labels,
		}),
		OrphansEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "iavlplus_orphans_emitted_total",
			Help:        "number of orphan records written",
			ConstLabels: labels,
		}),
		NodesPruned: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "iavlplus_nodes_pruned_total",
			Help:        "number of nodes deleted by Prune",
			ConstLabels: labels,
		}),
		Prunes: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "iavlplus_prunes_total",
			Help:        "number of Prune calls",
			ConstLabels: labels,
		}),
	}
}
