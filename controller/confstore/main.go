// Package confstore holds the mutable polling configuration of the
// controller: the per-kind intervals and the per-host scheduling flags.
//
// All reads return copies. No reference escapes the store.
package confstore

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/opengrid/gridctl/core/periodictask"
)

type (
	T struct {
		mu        sync.RWMutex
		intervals periodictask.Intervals
		hosts     map[string]*hostFlags
	}

	hostFlags struct {
		scheduleEnabled bool
		activeOnlyTasks bool
	}
)

// New allocates a store seeded with the default intervals.
func New() *T {
	return &T{
		intervals: periodictask.DefaultIntervals(),
		hosts:     make(map[string]*hostFlags),
	}
}

// SetInterval sets the polling interval of a task kind.
func (t *T) SetInterval(kind periodictask.T, d time.Duration) error {
	if kind == periodictask.Invalid {
		return errors.New("invalid task kind")
	}
	if d <= 0 {
		return errors.Errorf("invalid interval %s for task %s", d, kind)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.intervals[kind]; !ok {
		return errors.Errorf("unknown task kind %d", kind)
	}
	t.intervals[kind] = d
	return nil
}

// Interval returns the polling interval of a task kind.
func (t *T) Interval(kind periodictask.T) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.intervals[kind]
}

// Intervals returns a copy of the interval table, cheap enough for the
// scheduler to cache per pass.
func (t *T) Intervals() periodictask.Intervals {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m := make(periodictask.Intervals, len(t.intervals))
	for k, v := range t.intervals {
		m[k] = v
	}
	return m
}

// AddHost creates the flag row of a host. Flags default to false: the
// host is not polled until scheduling is enabled.
func (t *T) AddHost(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.hosts[host]; ok {
		return
	}
	t.hosts[host] = &hostFlags{}
}

// RemoveHost destroys the flag row of a host.
func (t *T) RemoveHost(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.hosts, host)
}

// Hosts returns the sorted host names with a flag row.
func (t *T) Hosts() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l := make([]string, 0, len(t.hosts))
	for host := range t.hosts {
		l = append(l, host)
	}
	sort.Strings(l)
	return l
}

// SetScheduleEnabled flags a host for periodic polling.
func (t *T) SetScheduleEnabled(host string, v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if flags, ok := t.hosts[host]; ok {
		flags.scheduleEnabled = v
	}
}

// ScheduleEnabled returns the periodic polling flag of a host.
func (t *T) ScheduleEnabled(host string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if flags, ok := t.hosts[host]; ok {
		return flags.scheduleEnabled
	}
	return false
}

// SetActiveOnlyTasks flags a host for active-only task polling.
func (t *T) SetActiveOnlyTasks(host string, v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if flags, ok := t.hosts[host]; ok {
		flags.activeOnlyTasks = v
	}
}

// ActiveOnlyTasks returns the active-only task polling flag of a host.
func (t *T) ActiveOnlyTasks(host string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if flags, ok := t.hosts[host]; ok {
		return flags.activeOnlyTasks
	}
	return false
}
