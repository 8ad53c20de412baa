// Package periodicsched implements the periodic-tasks scheduler.
//
// One goroutine wakes every 200ms, reads the configuration store and
// inserts due polling jobs into each eligible host worker queue. At most
// one job per (host, kind) is in flight, enforced by the slot pending
// flag. Completions are reported back from the worker goroutine via
// onPeriodicDone, which is the only path clearing pending.
package periodicsched

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opengrid/gridctl/controller/confstore"
	"github.com/opengrid/gridctl/controller/handlerreg"
	"github.com/opengrid/gridctl/controller/hostworker"
	"github.com/opengrid/gridctl/core/periodictask"
	"github.com/opengrid/gridctl/core/rpc"
	"github.com/opengrid/gridctl/util/funcopt"
)

type (
	T struct {
		log      zerolog.Logger
		cfg      *confstore.T
		registry *handlerreg.T
		tick     time.Duration

		ctx    context.Context
		cancel context.CancelFunc
		wg     sync.WaitGroup

		mu      sync.Mutex
		slots   map[string]map[periodictask.T]*slot
		states  map[string]*pollState
		workers map[string]*hostworker.T

		nudge chan struct{}
	}

	// slot tracks one (host, kind) polling task. A zero lastExecution
	// makes the task due on the first pass after enabling.
	slot struct {
		lastExecution time.Time
		pending       bool
	}

	// pollState carries the last seen sequence numbers echoed back to
	// the daemon on incremental polls.
	pollState struct {
		messagesSeqno uint64
		noticesSeqno  uint64
	}
)

// New allocates a scheduler. Start launches its loop.
func New(cfg *confstore.T, registry *handlerreg.T, opts ...funcopt.O) *T {
	t := &T{
		log:      log.Logger.With().Str("name", "periodicsched").Logger(),
		cfg:      cfg,
		registry: registry,
		tick:     200 * time.Millisecond,
		slots:    make(map[string]map[periodictask.T]*slot),
		states:   make(map[string]*pollState),
		workers:  make(map[string]*hostworker.T),
		nudge:    make(chan struct{}, 1),
	}
	if err := funcopt.Apply(t, opts...); err != nil {
		t.log.Error().Err(err).Msg("periodicsched funcopt.Apply")
		return nil
	}
	return t
}

// WithLogger sets the scheduler logger.
func WithLogger(l zerolog.Logger) funcopt.O {
	return funcopt.F(func(i interface{}) error {
		t := i.(*T)
		t.log = l
		return nil
	})
}

// WithTick sets the loop cadence. Intended for tests.
func WithTick(d time.Duration) funcopt.O {
	return funcopt.F(func(i interface{}) error {
		t := i.(*T)
		t.tick = d
		return nil
	})
}

// Start launches the scheduler loop.
func (t *T) Start() {
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.wg.Add(1)
	go t.loop()
}

// Stop quiesces the scheduler and waits for its loop to return.
// Idempotent.
func (t *T) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	t.wg.Wait()
}

// AddHost initializes the polling state of a host. The host is not
// polled until scheduling is enabled in the configuration store.
func (t *T) AddHost(host string, worker *hostworker.T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.slots[host]; ok {
		return
	}
	hostSlots := make(map[periodictask.T]*slot, len(periodictask.All))
	for _, kind := range periodictask.All {
		hostSlots[kind] = &slot{}
	}
	t.slots[host] = hostSlots
	t.states[host] = &pollState{}
	t.workers[host] = worker
}

// RemoveHost erases the polling state of a host. Jobs already queued in
// the worker complete or are cancelled during worker shutdown; their
// post-execution callback tolerates the missing state.
func (t *T) RemoveHost(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.slots, host)
	delete(t.states, host)
	delete(t.workers, host)
}

// RescheduleNow rewinds the last execution of one (host, kind) slot and
// wakes the loop, so the task fires on the next pass. A nudge racing a
// pending slot is dropped: the in-flight job already converges the
// local view, and its completion stamps the slot anew. Unknown host or
// kind is a no-op.
func (t *T) RescheduleNow(host string, kind periodictask.T) {
	t.mu.Lock()
	if hostSlots, ok := t.slots[host]; ok {
		if s, ok := hostSlots[kind]; ok {
			s.lastExecution = time.Time{}
		}
	}
	t.mu.Unlock()
	select {
	case t.nudge <- struct{}{}:
	default:
	}
}

func (t *T) loop() {
	defer t.wg.Done()
	t.log.Info().Msg("loop started")
	defer t.log.Info().Msg("loop stopped")

	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	pass := 0
	var intervals periodictask.Intervals

	for {
		// refresh the interval cache once per second to amortize
		// configuration locking
		if pass == 0 {
			intervals = t.cfg.Intervals()
		}
		pass = (pass + 1) % 5

		t.schedulePass(intervals)

		select {
		case <-ticker.C:
		case <-t.nudge:
		case <-t.ctx.Done():
			return
		}
	}
}

// schedulePass queues one job for every due slot of every eligible
// host.
func (t *T) schedulePass(intervals periodictask.Intervals) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for host, hostSlots := range t.slots {
		if !t.cfg.ScheduleEnabled(host) {
			continue
		}
		for kind, s := range hostSlots {
			if s.pending {
				continue
			}
			if now.Before(s.lastExecution.Add(intervals[kind])) {
				continue
			}
			t.schedule(host, kind, s)
		}
	}
}

// schedule marks the slot pending and queues the polling job. Callers
// hold the scheduler lock.
func (t *T) schedule(host string, kind periodictask.T, s *slot) {
	s.pending = true

	var req rpc.Request
	switch kind {
	case periodictask.CCStatus:
		req = rpc.GetCCStatusRequest{}
	case periodictask.ClientState:
		req = rpc.GetClientStateRequest{}
	case periodictask.DiskUsage:
		req = rpc.GetDiskUsageRequest{}
	case periodictask.FileTransfers:
		req = rpc.GetFileTransfersRequest{}
	case periodictask.Messages:
		req = rpc.GetMessagesRequest{Seqno: t.states[host].messagesSeqno}
	case periodictask.Notices:
		req = rpc.GetNoticesRequest{Seqno: t.states[host].noticesSeqno}
	case periodictask.ProjectStatus:
		req = rpc.GetProjectStatusRequest{}
	case periodictask.Statistics:
		req = rpc.GetStatisticsRequest{}
	case periodictask.Tasks:
		req = rpc.GetTasksRequest{ActiveOnly: t.cfg.ActiveOnlyTasks(host)}
	default:
		s.pending = false
		return
	}

	job := hostworker.NewPeriodicJob(kind, req,
		func(resp rpc.Response, status rpc.Status) {
			t.publish(host, kind, req, resp, status)
		},
		func(resp rpc.Response, status rpc.Status) {
			t.onPeriodicDone(host, kind, resp, status)
		},
	)
	if err := t.workers[host].Schedule(job); err != nil {
		t.log.Debug().Err(err).Msgf("schedule %s on %s", kind, host)
	}
	periodicScheduled.WithLabelValues(kind.String()).Inc()
}

// publish dispatches a completed poll to the observers. Runs on the
// worker goroutine.
func (t *T) publish(host string, kind periodictask.T, req rpc.Request, resp rpc.Response, status rpc.Status) {
	switch status {
	case rpc.StatusOK:
		t.registry.ForEachPeriodicTaskHandler(func(h handlerreg.PeriodicTaskHandler) {
			h.OnPeriodicResult(host, kind, resp)
		})
	case rpc.StatusParseError, rpc.StatusClientError:
		t.registry.ForEachHostHandler(func(h handlerreg.HostHandler) {
			h.OnHostError(host, rpc.NewError(req, status, ""))
		})
	}
	// disconnections are broadcast once by the worker, cancellations
	// need no report
}

// onPeriodicDone updates the slot after a poll completes. Runs on the
// worker goroutine, briefly under the scheduler lock. A missing slot
// races benignly with host removal and is ignored.
func (t *T) onPeriodicDone(host string, kind periodictask.T, resp rpc.Response, status rpc.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	hostSlots, ok := t.slots[host]
	if !ok {
		return
	}
	s, ok := hostSlots[kind]
	if !ok {
		return
	}
	s.lastExecution = time.Now()
	s.pending = false
	periodicCompleted.WithLabelValues(kind.String(), status.String()).Inc()

	if status != rpc.StatusOK {
		return
	}
	switch kind {
	case periodictask.Messages:
		if r, ok := resp.(*rpc.MessagesResponse); ok {
			if seqno := r.LastSeqno(); seqno > 0 {
				t.states[host].messagesSeqno = seqno
			}
		}
	case periodictask.Notices:
		if r, ok := resp.(*rpc.NoticesResponse); ok {
			if seqno := r.LastSeqno(); seqno > 0 {
				t.states[host].noticesSeqno = seqno
			}
		}
	}
}
