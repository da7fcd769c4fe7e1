// Package poller drives periodic refreshes of the engine's view while a
// session is active.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quicknotes/internal/domain"

	"github.com/golang/glog"
)

// Source fetches the authoritative list of an owner's notes.
type Source interface {
	List(ctx context.Context, ownerKey string) ([]domain.Note, error)
}

// Sink receives fetch outcomes. reconcile.Engine satisfies it.
type Sink interface {
	ApplyRefresh(ownerKey string, records []domain.Note) error
	RefreshFailed(ownerKey string, err error)
}

type State int

const (
	StateIdle State = iota
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Config struct {
	Interval time.Duration // default 5s
	Timeout  time.Duration // per fetch, default 10s
	Metrics  *Metrics
}

func DefaultConfig() *Config {
	return &Config{
		Interval: 5 * time.Second,
		Timeout:  10 * time.Second,
	}
}

type Status struct {
	State       State
	OwnerKey    string
	Generation  uint64
	LastSuccess time.Time
	Fetches     int
	Failures    int
	Discarded   int
}

// Scheduler polls Source for the active owner and feeds the result to Sink.
// Each activation starts a new generation; responses belonging to an older
// generation are dropped. Fetches are not serialized, so a slow response can
// land after a newer one and win.
type Scheduler struct {
	source   Source
	sink     Sink
	interval time.Duration
	timeout  time.Duration
	metrics  *Metrics
	ctx      context.Context

	mu          sync.Mutex
	state       State
	owner       string
	generation  uint64
	stopCh      chan struct{}
	lastSuccess time.Time
	fetches     int
	failures    int
	discarded   int

	loops    sync.WaitGroup
	inflight sync.WaitGroup
}

func New(ctx context.Context, source Source, sink Sink, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &Scheduler{
		source:   source,
		sink:     sink,
		interval: config.Interval,
		timeout:  config.Timeout,
		metrics:  config.Metrics,
		ctx:      ctx,
	}
}

// SetOwner activates polling for ownerKey, or goes idle when it is empty.
// Switching owners is an idle transition followed by an active one.
func (s *Scheduler) SetOwner(ownerKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ownerKey == s.owner {
		return
	}
	s.stopLocked()
	s.owner = ownerKey
	if ownerKey == "" {
		return
	}

	s.generation++
	s.state = StateActive
	s.stopCh = make(chan struct{})
	s.loops.Add(1)
	go s.loop(s.generation, ownerKey, s.stopCh)

	s.metrics.setActive(true)
	glog.Infof("[poller] polling every %s for %q (generation %d)", s.interval, ownerKey, s.generation)
}

// Stop goes idle and waits for the ticker goroutine to exit. Fetches still in
// flight finish on their own and are discarded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.owner = ""
	s.mu.Unlock()

	s.loops.Wait()
}

// Refresh starts a fetch right away without waiting for the next tick. It
// reports false when there is no active owner.
func (s *Scheduler) Refresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return false
	}
	s.fetch(s.generation, s.owner)
	return true
}

// Wait blocks until every fetch started so far has been handled.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:       s.state,
		OwnerKey:    s.owner,
		Generation:  s.generation,
		LastSuccess: s.lastSuccess,
		Fetches:     s.fetches,
		Failures:    s.failures,
		Discarded:   s.discarded,
	}
}

func (s *Scheduler) stopLocked() {
	if s.state == StateIdle {
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	s.state = StateIdle
	// orphan whatever is still in flight
	s.generation++
	s.metrics.setActive(false)
	glog.Infof("[poller] stopped polling for %q", s.owner)
}

func (s *Scheduler) loop(generation uint64, ownerKey string, stop <-chan struct{}) {
	defer s.loops.Done()

	s.fetch(generation, ownerKey)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.fetch(generation, ownerKey)
		}
	}
}

func (s *Scheduler) fetch(generation uint64, ownerKey string) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		started := time.Now()
		records, err := s.source.List(ctx, ownerKey)

		// The generation check and the hand-off to the sink happen under the
		// same lock SetOwner takes, so nothing from an old generation reaches
		// the sink once SetOwner has returned.
		s.mu.Lock()
		defer s.mu.Unlock()

		s.fetches++
		if generation != s.generation {
			s.discarded++
			s.metrics.fetched("stale", started)
			glog.V(1).Infof("[poller] discarding response for %q from generation %d", ownerKey, generation)
			return
		}
		if err != nil {
			s.failures++
			s.metrics.fetched("failed", started)
			glog.Warningf("[poller] fetch for %q failed: %v", ownerKey, err)
			s.sink.RefreshFailed(ownerKey, err)
			return
		}
		if err := s.sink.ApplyRefresh(ownerKey, records); err != nil {
			s.discarded++
			s.metrics.fetched("stale", started)
			glog.V(1).Infof("[poller] sink rejected refresh for %q: %v", ownerKey, err)
			return
		}
		s.lastSuccess = time.Now()
		s.metrics.fetched("ok", started)
		glog.V(2).Infof("[poller] refreshed %d notes for %q", len(records), ownerKey)
	}()
}
