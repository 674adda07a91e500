// File: internal/concurrency/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/gamedolphin/gafferchallenge/affinity"
	"github.com/gamedolphin/gafferchallenge/api"
	"github.com/gamedolphin/gafferchallenge/internal/mlog"
)

// Policy is the worker assignment policy.
type Policy int

const (
	// Shared runs every task as a plain goroutine.
	Shared Policy = iota
	// Pinned locks every task to its own OS thread bound round-robin to a CPU.
	Pinned
)

// ParsePolicy maps a config name onto a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(name) {
	case "", "shared":
		return Shared, nil
	case "pinned":
		return Pinned, nil
	}
	return Shared, errors.Wrapf(api.ErrInvalidConfig, "unknown worker policy %q", name)
}

func (p Policy) String() string {
	if p == Pinned {
		return "pinned"
	}
	return "shared"
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithAffinity replaces the thread pinner, mainly for tests.
func WithAffinity(a api.Affinity) Option {
	return func(s *Scheduler) { s.affinity = a }
}

// WithCPUs sets how many CPUs pinned slots rotate over.
func WithCPUs(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.cpus = n
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l *mlog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// Scheduler starts tasks under a Policy and collects their errors.
type Scheduler struct {
	policy   Policy
	affinity api.Affinity
	cpus     int
	log      *mlog.Logger

	mu   sync.Mutex
	next int
	errs error
	wg   sync.WaitGroup
}

// NewScheduler creates a scheduler for policy.
func NewScheduler(policy Policy, opts ...Option) *Scheduler {
	s := &Scheduler{
		policy:   policy,
		affinity: affinity.Pinner{},
		cpus:     runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = mlog.New("scheduler")
	}
	return s
}

// Policy reports the active policy.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// Go starts r in its own goroutine and returns the slot it was given.
func (s *Scheduler) Go(name string, r api.Runner) api.Placement {
	s.mu.Lock()
	slot := s.next
	s.next++
	s.mu.Unlock()

	p := api.Placement{Worker: slot, CPU: -1}
	if s.policy == Pinned {
		p.CPU = slot % s.cpus
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if p.CPU >= 0 {
			if err := s.affinity.Pin(p.CPU); err != nil {
				s.log.Warnf("%s: pin to cpu %d failed, running unpinned: %v", name, p.CPU, err)
			} else {
				defer func() { _ = s.affinity.Unpin() }()
			}
		}
		s.log.Debugf("%s started (%s)", name, p)
		if err := s.run(r); err != nil {
			s.mu.Lock()
			s.errs = multierr.Append(s.errs, errors.WithMessage(err, name))
			s.mu.Unlock()
		}
	}()
	return p
}

func (s *Scheduler) run(r api.Runner) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.Run()
}

// Wait blocks until every started task returned and reports their combined error.
func (s *Scheduler) Wait() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs
}

// RunnerFunc adapts a function to api.Runner.
type RunnerFunc func() error

// Run calls f.
func (f RunnerFunc) Run() error { return f() }
