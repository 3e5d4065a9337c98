// Package live keeps the aggregated dashboard snapshot fresh.
//
// Change listeners on the status, project, and customer collections each
// request a full re-aggregation; there is no incremental update path. The
// requests funnel through a single runner goroutine with a one-slot kick
// channel, so any number of triggers arriving while a pass is running
// collapse into exactly one follow-up pass. Publishing is guarded by a
// generation number so a pass that somehow finishes late can never overwrite
// a newer snapshot.
package live

import (
	"context"
	"log"
	"sync"
	"time"

	"foreman/api/internal/aggregate"
	"foreman/api/internal/store"
)

// Snapshot is the output of one aggregation pass: every row across all
// screen folders plus the entity lists the pass was decorated from. Slices
// are shared between readers and must be treated as read-only.
type Snapshot struct {
	Rows        []aggregate.Row
	Projects    []store.Project
	Customers   []store.Customer
	Generation  uint64
	RefreshedAt time.Time
}

// State holds the latest published snapshot.
type State struct {
	mu        sync.RWMutex
	snap      Snapshot
	nextGen   uint64
	published uint64
}

func NewState() *State {
	return &State{}
}

// BeginPass reserves the generation number for a pass about to run.
func (s *State) BeginPass() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGen++
	return s.nextGen
}

// Publish installs a pass result. It reports false, leaving the state
// untouched, when a newer pass already published.
func (s *State) Publish(gen uint64, rows []aggregate.Row, projects []store.Project, customers []store.Customer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen <= s.published {
		return false
	}
	s.published = gen
	s.snap = Snapshot{
		Rows:        rows,
		Projects:    projects,
		Customers:   customers,
		Generation:  gen,
		RefreshedAt: time.Now(),
	}
	return true
}

// Current returns the latest snapshot. The zero snapshot (generation 0)
// means no pass has completed yet.
func (s *State) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Watcher serializes aggregation passes.
type Watcher struct {
	run  func(ctx context.Context) error
	kick chan struct{}
}

func NewWatcher(run func(ctx context.Context) error) *Watcher {
	return &Watcher{
		run:  run,
		kick: make(chan struct{}, 1),
	}
}

// Kick requests a pass. Non-blocking; requests made while a pass is running
// coalesce into one follow-up.
func (w *Watcher) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Run executes one pass immediately, then one per kick, until ctx ends.
// Pass failures are logged; the next trigger retries naturally.
func (w *Watcher) Run(ctx context.Context) {
	if err := w.run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("live: initial pass: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.kick:
			if err := w.run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("live: pass: %v", err)
			}
		}
	}
}

// Forward turns signals from a change listener into kicks. It returns when
// ctx ends or the source channel closes.
func (w *Watcher) Forward(ctx context.Context, signals <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				return
			}
			w.Kick()
		}
	}
}
