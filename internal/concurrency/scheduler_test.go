package concurrency_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/gamedolphin/gafferchallenge/internal/concurrency"
	"github.com/gamedolphin/gafferchallenge/internal/mlog"
)

type fakeAffinity struct {
	mu     sync.Mutex
	pinned []int
	unpins int
}

func (f *fakeAffinity) Pin(cpu int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned = append(f.pinned, cpu)
	return nil
}

func (f *fakeAffinity) Unpin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpins++
	return nil
}

func TestParsePolicy(t *testing.T) {
	p, err := concurrency.ParsePolicy("Pinned")
	require.NoError(t, err)
	assert.Equal(t, concurrency.Pinned, p)

	p, err = concurrency.ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, concurrency.Shared, p)

	_, err = concurrency.ParsePolicy("numa")
	assert.Error(t, err)
}

func TestSharedPolicyDoesNotPin(t *testing.T) {
	aff := &fakeAffinity{}
	s := concurrency.NewScheduler(concurrency.Shared, concurrency.WithAffinity(aff), concurrency.WithLogger(mlog.Nop()))

	var ran sync.WaitGroup
	ran.Add(3)
	for i := 0; i < 3; i++ {
		p := s.Go("task", concurrency.RunnerFunc(func() error { ran.Done(); return nil }))
		assert.Equal(t, i, p.Worker)
		assert.Equal(t, -1, p.CPU)
	}
	require.NoError(t, s.Wait())
	assert.Empty(t, aff.pinned)
}

func TestPinnedPolicyRoundRobin(t *testing.T) {
	aff := &fakeAffinity{}
	s := concurrency.NewScheduler(concurrency.Pinned,
		concurrency.WithAffinity(aff), concurrency.WithCPUs(2), concurrency.WithLogger(mlog.Nop()))

	var cpus []int
	for i := 0; i < 5; i++ {
		cpus = append(cpus, s.Go("task", concurrency.RunnerFunc(func() error { return nil })).CPU)
	}
	require.NoError(t, s.Wait())

	assert.Equal(t, []int{0, 1, 0, 1, 0}, cpus)
	assert.ElementsMatch(t, []int{0, 1, 0, 1, 0}, aff.pinned)
	assert.Equal(t, 5, aff.unpins)
}

func TestWaitAggregatesErrors(t *testing.T) {
	s := concurrency.NewScheduler(concurrency.Shared, concurrency.WithLogger(mlog.Nop()))
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	s.Go("a", concurrency.RunnerFunc(func() error { return errA }))
	s.Go("b", concurrency.RunnerFunc(func() error { return errB }))
	s.Go("ok", concurrency.RunnerFunc(func() error { return nil }))
	s.Go("boom", concurrency.RunnerFunc(func() error { panic("boom") }))

	err := s.Wait()
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Len(t, multierr.Errors(err), 3)
	assert.Contains(t, err.Error(), "boom")
}
