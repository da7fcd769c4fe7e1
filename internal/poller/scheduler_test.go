package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quicknotes/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu    sync.Mutex
	calls map[string]int
	list  func(ctx context.Context, ownerKey string) ([]domain.Note, error)
}

func (f *fakeSource) List(ctx context.Context, ownerKey string) ([]domain.Note, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[ownerKey]++
	f.mu.Unlock()

	if f.list != nil {
		return f.list(ctx, ownerKey)
	}
	return []domain.Note{{ID: ownerKey + "-1", OwnerID: ownerKey}}, nil
}

func (f *fakeSource) count(ownerKey string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ownerKey]
}

type fakeSink struct {
	mu      sync.Mutex
	applied []string
	failed  []string
	reject  bool
}

func (f *fakeSink) ApplyRefresh(ownerKey string, records []domain.Note) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return errors.New("stale")
	}
	f.applied = append(f.applied, ownerKey)
	return nil
}

func (f *fakeSink) RefreshFailed(ownerKey string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, ownerKey)
}

func (f *fakeSink) appliedOwners() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...)
}

func (f *fakeSink) failures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.failed)
}

func newTestScheduler(t *testing.T, source Source, sink Sink, interval time.Duration) *Scheduler {
	t.Helper()
	s := New(context.Background(), source, sink, &Config{
		Interval: interval,
		Timeout:  time.Second,
		Metrics:  NewMetrics(prometheus.NewRegistry()),
	})
	t.Cleanup(func() {
		s.Stop()
		s.Wait()
	})
	return s
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 5*time.Second, config.Interval)
	assert.Equal(t, 10*time.Second, config.Timeout)

	s := New(context.Background(), &fakeSource{}, &fakeSink{}, &Config{})
	assert.Equal(t, 5*time.Second, s.interval)
	assert.Equal(t, StateIdle, s.Status().State)
}

func TestSetOwner_FetchesImmediately(t *testing.T) {
	source, sink := &fakeSource{}, &fakeSink{}
	s := newTestScheduler(t, source, sink, time.Hour)

	s.SetOwner("alice")

	require.Eventually(t, func() bool { return len(sink.appliedOwners()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"alice"}, sink.appliedOwners())

	status := s.Status()
	assert.Equal(t, StateActive, status.State)
	assert.Equal(t, "alice", status.OwnerKey)
	assert.False(t, status.LastSuccess.IsZero())
}

func TestSetOwner_SameKeyKeepsGeneration(t *testing.T) {
	s := newTestScheduler(t, &fakeSource{}, &fakeSink{}, time.Hour)

	s.SetOwner("alice")
	generation := s.Status().Generation
	s.SetOwner("alice")

	assert.Equal(t, generation, s.Status().Generation)
}

func TestTicksWhileActive(t *testing.T) {
	source, sink := &fakeSource{}, &fakeSink{}
	s := newTestScheduler(t, source, sink, 10*time.Millisecond)

	s.SetOwner("alice")

	require.Eventually(t, func() bool { return len(sink.appliedOwners()) >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestFailureKeepsTicking(t *testing.T) {
	source := &fakeSource{list: func(ctx context.Context, ownerKey string) ([]domain.Note, error) {
		return nil, errors.New("connection refused")
	}}
	sink := &fakeSink{}
	s := newTestScheduler(t, source, sink, 10*time.Millisecond)

	s.SetOwner("alice")

	require.Eventually(t, func() bool { return sink.failures() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateActive, s.Status().State)
	assert.Empty(t, sink.appliedOwners())
	assert.GreaterOrEqual(t, s.Status().Failures, 3)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	source := &fakeSource{list: func(ctx context.Context, ownerKey string) ([]domain.Note, error) {
		if ownerKey == "alice" {
			<-release
		}
		return []domain.Note{{ID: "n", OwnerID: ownerKey}}, nil
	}}
	sink := &fakeSink{}
	s := newTestScheduler(t, source, sink, time.Hour)

	s.SetOwner("alice")
	require.Eventually(t, func() bool { return source.count("alice") == 1 }, time.Second, 5*time.Millisecond)

	s.SetOwner("bob")
	require.Eventually(t, func() bool { return len(sink.appliedOwners()) == 1 }, time.Second, 5*time.Millisecond)

	close(release)
	s.Wait()

	assert.Equal(t, []string{"bob"}, sink.appliedOwners())
	assert.Equal(t, 1, s.Status().Discarded)
}

func TestStopGoesIdle(t *testing.T) {
	source, sink := &fakeSource{}, &fakeSink{}
	s := newTestScheduler(t, source, sink, 5*time.Millisecond)

	s.SetOwner("alice")
	require.Eventually(t, func() bool { return len(sink.appliedOwners()) >= 1 }, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Wait()
	calls := source.count("alice")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, source.count("alice"), "no fetch after Stop")

	status := s.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.Empty(t, status.OwnerKey)
}

func TestSetOwnerEmptyGoesIdle(t *testing.T) {
	source, sink := &fakeSource{}, &fakeSink{}
	s := newTestScheduler(t, source, sink, time.Hour)

	s.SetOwner("alice")
	s.SetOwner("")

	assert.Equal(t, StateIdle, s.Status().State)
	s.Wait()
	for _, owner := range sink.appliedOwners() {
		assert.Equal(t, "alice", owner)
	}
}

func TestSinkRejectionCountsAsDiscarded(t *testing.T) {
	sink := &fakeSink{reject: true}
	s := newTestScheduler(t, &fakeSource{}, sink, time.Hour)

	s.SetOwner("alice")

	require.Eventually(t, func() bool { return s.Status().Discarded == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Status().LastSuccess.IsZero())
}

func TestRefresh(t *testing.T) {
	source, sink := &fakeSource{}, &fakeSink{}
	s := newTestScheduler(t, source, sink, time.Hour)

	assert.False(t, s.Refresh(), "idle scheduler has nothing to refresh")

	s.SetOwner("alice")
	require.Eventually(t, func() bool { return len(sink.appliedOwners()) == 1 }, time.Second, 5*time.Millisecond)

	require.True(t, s.Refresh())
	s.Wait()
	assert.Equal(t, []string{"alice", "alice"}, sink.appliedOwners())
	assert.Equal(t, 2, source.count("alice"))
}
