// Package hostworker implements the per-host serial job executor.
//
// A worker owns the rpc connection of one host and drains an unbounded
// FIFO queue from a dedicated goroutine. Jobs never tear down the
// worker: a failed exchange is reported through the job completion
// adapter and, for disconnections, through the handler registry.
package hostworker

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opengrid/gridctl/controller/handlerreg"
	"github.com/opengrid/gridctl/core/rpc"
	"github.com/opengrid/gridctl/util/durationlog"
	"github.com/opengrid/gridctl/util/funcopt"
)

type (
	// AuthState is the authorization state of the host connection.
	AuthState int

	T struct {
		host     string
		client   rpc.Client
		registry *handlerreg.T
		log      zerolog.Logger

		ctx    context.Context
		cancel context.CancelFunc
		wg     sync.WaitGroup

		mu        sync.Mutex
		queue     []*Job
		closed    bool
		errored   bool
		authState AuthState

		wake chan struct{}

		execWarn time.Duration
	}
)

const (
	Unauthenticated AuthState = iota
	Authorized
	AuthorizationFailed
)

var (
	// ErrClosed is returned by Schedule on a worker already shut down.
	ErrClosed = errors.New("host worker is closed")
)

// New allocates a worker for host and starts its queue goroutine. The
// worker owns client and closes it on shutdown.
func New(host string, client rpc.Client, registry *handlerreg.T, opts ...funcopt.O) *T {
	t := &T{
		host:     host,
		client:   client,
		registry: registry,
		log:      log.Logger.With().Str("name", "hostworker").Str("host", host).Logger(),
		wake:     make(chan struct{}, 1),
		execWarn: 10 * time.Second,
	}
	if err := funcopt.Apply(t, opts...); err != nil {
		t.log.Error().Err(err).Msg("hostworker funcopt.Apply")
		return nil
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.wg.Add(1)
	go t.loop()
	return t
}

// WithLogger sets the worker logger.
func WithLogger(l zerolog.Logger) funcopt.O {
	return funcopt.F(func(i interface{}) error {
		t := i.(*T)
		t.log = l
		return nil
	})
}

// WithExecWarnDuration sets the duration above which an in-flight job
// is reported wedged.
func WithExecWarnDuration(d time.Duration) funcopt.O {
	return funcopt.F(func(i interface{}) error {
		t := i.(*T)
		t.execWarn = d
		return nil
	})
}

// Host returns the host identifier the worker serves.
func (t *T) Host() string {
	return t.host
}

// AuthState returns the authorization state of the host.
func (t *T) AuthState() AuthState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.authState
}

// Connect dials the daemon. Synchronous, may block for seconds on an
// unresponsive address. Called once, never under a controller lock.
func (t *T) Connect(ctx context.Context, url string, port int) error {
	if err := t.client.Connect(ctx, url, port); err != nil {
		return err
	}
	t.log.Info().Msgf("connected to %s:%d", url, port)
	return nil
}

// Authorize queues the password handshake. The outcome is broadcast via
// the handler registry.
func (t *T) Authorize(password string) error {
	job := newFuncJob(
		func(ctx context.Context, client rpc.Client) (rpc.Response, rpc.Status) {
			err := client.Authorize(ctx, password)
			switch {
			case err == nil:
				return nil, rpc.StatusOK
			case errors.Is(err, rpc.ErrUnauthorized):
				return nil, rpc.StatusClientError
			case ctx.Err() != nil:
				return nil, rpc.StatusCancelled
			default:
				return nil, rpc.StatusDisconnected
			}
		},
		func(_ rpc.Response, status rpc.Status) {
			switch status {
			case rpc.StatusOK:
				t.setAuthState(Authorized)
				t.registry.ForEachHostHandler(func(h handlerreg.HostHandler) {
					h.OnHostAuthorized(t.host)
				})
			case rpc.StatusClientError:
				t.setAuthState(AuthorizationFailed)
				t.registry.ForEachHostHandler(func(h handlerreg.HostHandler) {
					h.OnHostAuthorizationFailed(t.host)
				})
			}
		},
	)
	return t.Schedule(job)
}

// Schedule appends a job to the queue. On a closed worker the job is
// completed with StatusCancelled and ErrClosed is returned, so no
// promise leaks.
func (t *T) Schedule(j *Job) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		j.drop()
		return ErrClosed
	}
	t.queue = append(t.queue, j)
	t.mu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
	jobsScheduled.Inc()
	return nil
}

// ScheduleNow is Schedule. The name signals the ad-hoc command intent:
// there is no scheduling delay at this layer, all jobs run in arrival
// order.
func (t *T) ScheduleNow(j *Job) error {
	return t.Schedule(j)
}

// Shutdown closes the queue, cancels the in-flight exchange, drains the
// backlog with StatusCancelled completions, waits for the queue
// goroutine and closes the connection. Idempotent.
func (t *T) Shutdown() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.wg.Wait()
		return
	}
	t.closed = true
	t.mu.Unlock()
	t.cancel()
	t.wg.Wait()
	if err := t.client.Close(); err != nil {
		t.log.Debug().Err(err).Msg("close connection")
	}
	t.log.Info().Msg("shutdown")
}

func (t *T) setAuthState(s AuthState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.authState = s
}

func (t *T) pop() *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return nil
	}
	j := t.queue[0]
	t.queue = t.queue[1:]
	return j
}

// drain completes every queued job with StatusCancelled.
func (t *T) drain() {
	for {
		j := t.pop()
		if j == nil {
			return
		}
		t.log.Debug().Msgf("cancel %s", j)
		j.drop()
		jobsExecuted.WithLabelValues(rpc.StatusCancelled.String()).Inc()
	}
}

// noteDisconnected broadcasts the error-state transition once.
func (t *T) noteDisconnected(j *Job) {
	t.mu.Lock()
	first := !t.errored
	t.errored = true
	t.mu.Unlock()
	if !first {
		return
	}
	t.log.Warn().Msgf("disconnected while executing %s", j)
	t.registry.ForEachHostHandler(func(h handlerreg.HostHandler) {
		h.OnHostError(t.host, rpc.NewError(j.req, rpc.StatusDisconnected, ""))
	})
}

func (t *T) loop() {
	defer t.wg.Done()

	watchDuration := &durationlog.T{Log: t.log}
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	beginExec := make(chan interface{})
	endExec := make(chan bool)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		watchDuration.WarnExceeded(watchCtx, beginExec, endExec, t.execWarn, "job")
	}()

	for {
		j := t.pop()
		if j == nil {
			select {
			case <-t.wake:
				continue
			case <-t.ctx.Done():
				t.drain()
				return
			}
		}
		if t.ctx.Err() != nil {
			j.drop()
			t.drain()
			return
		}
		beginExec <- j
		resp, status := j.execute(t.ctx, t.client)
		endExec <- true
		j.complete(resp, status)
		jobsExecuted.WithLabelValues(status.String()).Inc()
		if status == rpc.StatusDisconnected {
			t.noteDisconnected(j)
		}
		if j.post != nil {
			j.post(resp, status)
		}
	}
}
