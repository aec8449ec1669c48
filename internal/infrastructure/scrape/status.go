package scrape

import (
	"fmt"
	"sync"
	"time"

	"github.com/shoplens/backend/internal/domain"
)

const maxRecordedErrors = 20

type statusState struct {
	nextID     int
	active     map[int]*domain.ScrapeRun
	order      []int
	last       *domain.ScrapeRun
	totalRuns  int
	refreshing bool
}

// StatusTracker owns scrape status. All mutations are messages handled by a
// single goroutine; readers only ever see copies from Snapshot.
type StatusTracker struct {
	ops       chan func(*statusState)
	done      chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

// NewStatusTracker starts the owner goroutine
func NewStatusTracker() *StatusTracker {
	t := &StatusTracker{
		ops:  make(chan func(*statusState)),
		done: make(chan struct{}),
		now:  time.Now,
	}
	go t.run()
	return t
}

func (t *StatusTracker) run() {
	state := &statusState{active: make(map[int]*domain.ScrapeRun)}
	for {
		select {
		case op := <-t.ops:
			op(state)
		case <-t.done:
			return
		}
	}
}

// do runs op on the owner goroutine and waits for it; it is a no-op after Close
func (t *StatusTracker) do(op func(*statusState)) {
	finished := make(chan struct{})
	select {
	case t.ops <- func(s *statusState) { op(s); close(finished) }:
		<-finished
	case <-t.done:
	}
}

// Begin registers a new run and returns its id
func (t *StatusTracker) Begin(query string, totalSources int) int {
	started := t.now().UTC()
	id := 0
	t.do(func(s *statusState) {
		s.nextID++
		id = s.nextID
		s.active[id] = &domain.ScrapeRun{Query: query, StartedAt: started, TotalSources: totalSources}
		s.order = append(s.order, id)
	})
	return id
}

// Record adds one source outcome to run id
func (t *StatusTracker) Record(id int, res domain.SourceResult) {
	t.do(func(s *statusState) {
		run, ok := s.active[id]
		if !ok {
			return
		}
		if res.OK {
			run.SuccessfulSources++
			run.Listings += res.Count
			return
		}
		run.FailedSources++
		if res.Error != "" && len(run.Errors) < maxRecordedErrors {
			run.Errors = append(run.Errors, fmt.Sprintf("%s: %s", res.SourceID, res.Error))
		}
	})
}

// Finish closes run id; sources that never reported are counted as abandoned
func (t *StatusTracker) Finish(id int) {
	completed := t.now().UTC()
	t.do(func(s *statusState) {
		run, ok := s.active[id]
		if !ok {
			return
		}
		run.CompletedAt = &completed
		run.AbandonedSources = run.TotalSources - run.SuccessfulSources - run.FailedSources
		if run.AbandonedSources < 0 {
			run.AbandonedSources = 0
		}
		delete(s.active, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		s.last = run
		s.totalRuns++
	})
}

// TryStartRefresh marks an inventory refresh as running. It returns false
// when one is already in progress.
func (t *StatusTracker) TryStartRefresh() bool {
	started := false
	t.do(func(s *statusState) {
		if s.refreshing {
			return
		}
		s.refreshing = true
		started = true
	})
	return started
}

// EndRefresh clears the inventory refresh flag
func (t *StatusTracker) EndRefresh() {
	t.do(func(s *statusState) { s.refreshing = false })
}

// Snapshot returns a copy of the current status
func (t *StatusTracker) Snapshot() domain.ScrapeStatus {
	var snap domain.ScrapeStatus
	t.do(func(s *statusState) {
		snap.ActiveRuns = len(s.active)
		snap.Running = snap.ActiveRuns > 0 || s.refreshing
		snap.Refreshing = s.refreshing
		snap.TotalRuns = s.totalRuns
		if n := len(s.order); n > 0 {
			snap.Current = copyRun(s.active[s.order[n-1]])
		}
		snap.Last = copyRun(s.last)
	})
	return snap
}

// Close stops the owner goroutine
func (t *StatusTracker) Close() {
	t.closeOnce.Do(func() { close(t.done) })
}

func copyRun(r *domain.ScrapeRun) *domain.ScrapeRun {
	if r == nil {
		return nil
	}
	c := *r
	if r.CompletedAt != nil {
		completed := *r.CompletedAt
		c.CompletedAt = &completed
	}
	c.Errors = append([]string(nil), r.Errors...)
	return &c
}
