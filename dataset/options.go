// Package dataset implements the top-level Dataset handle spec §6.2
// describes: the single façade composing schema, store, txn, query,
// scalarindex, vectorindex, relate, and maintenance into the operations
// an application actually calls (create/open/checkout, add/delete/
// update/upsert, scan/knn_search/full_text_search, index management, and
// maintenance). Every method here is a thin composition over those
// packages; none of them re-implement storage, planning, or indexing.
package dataset

import (
	"runtime"
	"sync"

	"go.uber.org/automaxprocs/maxprocs"

	cflog "github.com/contextframe/contextframe/log"
	"github.com/contextframe/contextframe/metrics"
	"github.com/contextframe/contextframe/scalarindex"
)

// Options configures Open/Create. The zero value is usable: every field
// defaults as documented below.
type Options struct {
	// CacheEntries sizes the store's decoded-column LRU cache (store.Open).
	// Zero defaults to 256.
	CacheEntries int

	// Concurrency bounds the shared workpool.Pool driving fragment encode
	// and blob-handle resolution fan-out (spec §5). Zero defaults to
	// GOMAXPROCS as resolved by automaxprocs; Open (not withDefaults)
	// fills this in, since it must run after setGOMAXPROCS adjusts the
	// runtime's view of available cores.
	Concurrency int

	// FragmentTargetRows is how many records AddMany batches into a single
	// fragment before starting a new one. Zero defaults to 4096.
	FragmentTargetRows int

	// Tokenize configures FTS indexes created with CreateFTSIndex's
	// default options. Zero value uses scalarindex.DefaultTokenizeOptions().
	Tokenize scalarindex.TokenizeOptions

	Logger  cflog.Logger
	Metrics *metrics.Registry
}

func (o Options) withDefaults() Options {
	if o.CacheEntries <= 0 {
		o.CacheEntries = 256
	}
	if o.FragmentTargetRows <= 0 {
		o.FragmentTargetRows = 4096
	}
	if o.Logger == nil {
		o.Logger = cflog.Global()
	}
	if (o.Tokenize == scalarindex.TokenizeOptions{}) {
		o.Tokenize = scalarindex.DefaultTokenizeOptions()
	}
	return o
}

// setGOMAXPROCS invokes automaxprocs.Set exactly once per process, the
// way a long-lived server process (rather than a short CLI invocation)
// wants GOMAXPROCS resolved against a container's cgroup quota rather
// than the host's full core count. Errors are swallowed: on a host
// without cgroup limits (or outside a container entirely) this is a
// harmless no-op, never a reason to fail Open.
var setGOMAXPROCSOnce sync.Once

func setGOMAXPROCS(log cflog.Logger) {
	setGOMAXPROCSOnce.Do(func() {
		_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
			log.Debugf(format, args...)
		}))
	})
}

// withConcurrencyDefault fills Concurrency from the runtime's current
// GOMAXPROCS when unset. Callers must invoke this after setGOMAXPROCS so
// the default reflects automaxprocs' cgroup-aware adjustment rather than
// the host's raw core count.
func (o Options) withConcurrencyDefault() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.GOMAXPROCS(0)
	}
	return o
}
