// Package controller implements the multi-host controller core.
//
// A controller manages the connections to one or more remote compute
// daemons. User commands are queued to per-host serial workers and
// return write-once promises; a background scheduler polls every host
// for state refreshes at configurable intervals. Lifecycle events and
// polling results are dispatched to registered handlers from arbitrary
// goroutines.
package controller

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opengrid/gridctl/controller/confstore"
	"github.com/opengrid/gridctl/controller/handlerreg"
	"github.com/opengrid/gridctl/controller/hostworker"
	"github.com/opengrid/gridctl/controller/periodicsched"
	"github.com/opengrid/gridctl/core/periodictask"
	"github.com/opengrid/gridctl/core/rpc"
	"github.com/opengrid/gridctl/util/funcopt"
	"github.com/opengrid/gridctl/util/promise"
)

type (
	T struct {
		log zerolog.Logger

		ctx    context.Context
		cancel context.CancelFunc

		mu            sync.Mutex
		shutdown      bool
		hosts         map[string]*hostworker.T
		pendingLogins map[string]string

		registry *handlerreg.T
		cfg      *confstore.T
		sched    *periodicsched.T

		// wgMu orders wg.Add against the final wg.Wait; it is never
		// held while taking mu, so spawning from a handler callback
		// cannot deadlock
		wgMu     sync.Mutex
		draining bool
		wg       sync.WaitGroup

		newClient func(host string) rpc.Client
		schedTick time.Duration
	}
)

// New allocates a controller and starts its periodic-tasks scheduler.
func New(opts ...funcopt.O) *T {
	t := &T{
		log:           log.Logger.With().Str("name", "controller").Logger(),
		hosts:         make(map[string]*hostworker.T),
		pendingLogins: make(map[string]string),
		newClient: func(host string) rpc.Client {
			return rpc.NewDialClient()
		},
	}
	if err := funcopt.Apply(t, opts...); err != nil {
		t.log.Error().Err(err).Msg("controller funcopt.Apply")
		return nil
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.registry = handlerreg.New(handlerreg.WithLogger(t.log))
	t.cfg = confstore.New()
	schedOpts := []funcopt.O{periodicsched.WithLogger(t.log)}
	if t.schedTick > 0 {
		schedOpts = append(schedOpts, periodicsched.WithTick(t.schedTick))
	}
	t.sched = periodicsched.New(t.cfg, t.registry, schedOpts...)
	t.sched.Start()
	return t
}

// WithLogger sets the controller logger, inherited by its components.
func WithLogger(l zerolog.Logger) funcopt.O {
	return funcopt.F(func(i interface{}) error {
		t := i.(*T)
		t.log = l
		return nil
	})
}

// WithClientFactory sets the connection factory. Intended for tests and
// alternate transports.
func WithClientFactory(fn func(host string) rpc.Client) funcopt.O {
	return funcopt.F(func(i interface{}) error {
		t := i.(*T)
		t.newClient = fn
		return nil
	})
}

// WithSchedulerTick sets the scheduler loop cadence. Intended for
// tests.
func WithSchedulerTick(d time.Duration) funcopt.O {
	return funcopt.F(func(i interface{}) error {
		t := i.(*T)
		t.schedTick = d
		return nil
	})
}

// RegisterHostHandler subscribes a handler to host lifecycle events.
func (t *T) RegisterHostHandler(h handlerreg.HostHandler) {
	t.registry.RegisterHostHandler(h)
}

// DeregisterHostHandler unsubscribes a host handler. Must complete
// before the handler is destroyed.
func (t *T) DeregisterHostHandler(h handlerreg.HostHandler) {
	t.registry.DeregisterHostHandler(h)
}

// RegisterPeriodicTaskHandler subscribes a handler to polling results.
func (t *T) RegisterPeriodicTaskHandler(h handlerreg.PeriodicTaskHandler) {
	t.registry.RegisterPeriodicTaskHandler(h)
}

// DeregisterPeriodicTaskHandler unsubscribes a periodic task handler.
func (t *T) DeregisterPeriodicTaskHandler(h handlerreg.PeriodicTaskHandler) {
	t.registry.DeregisterPeriodicTaskHandler(h)
}

// AddHost registers a host and connects to it in the background. On
// success OnHostConnected is broadcast, on failure OnHostError. A
// remove racing the connect may let the late broadcast fire after
// OnHostRemoved.
func (t *T) AddHost(host, url string, port int) error {
	return t.addHost(host, url, port, "")
}

// AddHostWithPassword is AddHost plus an automatic authorization once
// the host is connected.
func (t *T) AddHostWithPassword(host, url string, port int, password string) error {
	if err := checkNotEmpty(password, "password"); err != nil {
		return err
	}
	return t.addHost(host, url, port, password)
}

func (t *T) addHost(host, url string, port int, password string) error {
	if err := checkNotEmpty(host, "host name"); err != nil {
		return err
	}
	if err := checkNotEmpty(url, "url to host"); err != nil {
		return err
	}

	t.mu.Lock()
	if t.shutdown {
		t.mu.Unlock()
		return ErrShutdown
	}
	if _, ok := t.hosts[host]; ok {
		t.mu.Unlock()
		return AlreadyRegisteredError{Host: host}
	}
	worker := hostworker.New(host, t.newClient(host), t.registry,
		hostworker.WithLogger(t.log.With().Str("host", host).Logger()))
	t.cfg.AddHost(host)
	t.hosts[host] = worker
	// periodic tasks are not scheduled until enabled in the configuration
	t.sched.AddHost(host, worker)
	if password != "" {
		t.pendingLogins[host] = password
	}
	t.registry.ForEachHostHandler(func(h handlerreg.HostHandler) {
		h.OnHostAdded(host)
	})
	t.mu.Unlock()

	// connect asynchronously because the connect may block for a long
	// time (see man 2 connect)
	t.goTracked(func() {
		if err := worker.Connect(t.ctx, url, port); err != nil {
			t.log.Warn().Err(err).Msgf("connect host %s", host)
			t.registry.ForEachHostHandler(func(h handlerreg.HostHandler) {
				h.OnHostError(host, errors.Wrapf(ErrConnection, "host %s", host))
			})
			return
		}
		t.registry.ForEachHostHandler(func(h handlerreg.HostHandler) {
			h.OnHostConnected(host)
		})
		t.authorizePendingLogin(host)
	})
	return nil
}

// goTracked runs fn in a goroutine awaited by Shutdown. Returns false
// once the final wait began.
func (t *T) goTracked(fn func()) bool {
	t.wgMu.Lock()
	defer t.wgMu.Unlock()
	if t.draining {
		return false
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
	return true
}

// authorizePendingLogin runs the authorization remembered by
// AddHostWithPassword. The password is forgotten after use.
func (t *T) authorizePendingLogin(host string) {
	t.mu.Lock()
	password, ok := t.pendingLogins[host]
	delete(t.pendingLogins, host)
	worker, known := t.hosts[host]
	shutdown := t.shutdown
	t.mu.Unlock()
	if !ok || !known || shutdown {
		return
	}
	if err := worker.Authorize(password); err != nil {
		t.log.Debug().Err(err).Msgf("authorize host %s", host)
	}
}

// AuthorizeHost queues the password handshake on a connected host. The
// outcome is broadcast as OnHostAuthorized or
// OnHostAuthorizationFailed.
func (t *T) AuthorizeHost(host, password string) error {
	if err := checkNotEmpty(host, "host name"); err != nil {
		return err
	}
	if err := checkNotEmpty(password, "password"); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shutdown {
		return ErrShutdown
	}
	worker, ok := t.hosts[host]
	if !ok {
		return UnknownHostError{Host: host}
	}
	return worker.Authorize(password)
}

// HasHost reports whether a host is registered.
func (t *T) HasHost(host string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.hosts[host]
	return ok
}

// Hosts returns the sorted registered host names.
func (t *T) Hosts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := make([]string, 0, len(t.hosts))
	for host := range t.hosts {
		l = append(l, host)
	}
	sort.Strings(l)
	return l
}

// RemoveHost synchronously removes a host: scheduler state erased,
// worker queue drained with cancellations, record dropped,
// OnHostRemoved broadcast. Must not be called from inside a handler
// callback; use AsyncRemoveHost there.
func (t *T) RemoveHost(host string) error {
	if err := checkNotEmpty(host, "host name"); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shutdown {
		return ErrShutdown
	}
	if _, ok := t.hosts[host]; !ok {
		return UnknownHostError{Host: host}
	}
	t.removeHost(host)
	return nil
}

// AsyncRemoveHost removes a host from a background goroutine, for
// callers running inside a handler callback that would otherwise
// self-deadlock. A host already removed when the goroutine runs is
// treated as success.
func (t *T) AsyncRemoveHost(host string) error {
	if err := checkNotEmpty(host, "host name"); err != nil {
		return err
	}
	ok := t.goTracked(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.shutdown {
			return
		}
		if _, ok := t.hosts[host]; !ok {
			t.log.Debug().Msgf("async remove host %s: already gone", host)
			return
		}
		t.removeHost(host)
	})
	if !ok {
		return ErrShutdown
	}
	return nil
}

// removeHost runs the removal sequence. Callers hold the controller
// lock. The scheduler forgets the host before the worker shuts down, so
// no post-execution callback can land on a dangling slot.
func (t *T) removeHost(host string) {
	worker := t.hosts[host]
	t.sched.RemoveHost(host)
	worker.Shutdown()
	delete(t.hosts, host)
	delete(t.pendingLogins, host)
	t.registry.ForEachHostHandler(func(h handlerreg.HostHandler) {
		h.OnHostRemoved(host)
	})
	t.cfg.RemoveHost(host)
}

// Shutdown quiesces the scheduler, removes every host and waits for the
// background goroutines. No handler is invoked afterwards. Idempotent.
func (t *T) Shutdown() error {
	t.mu.Lock()
	if t.shutdown {
		t.mu.Unlock()
		return nil
	}
	t.shutdown = true
	t.mu.Unlock()

	t.cancel()
	t.sched.Stop()

	t.mu.Lock()
	for len(t.hosts) > 0 {
		for host := range t.hosts {
			t.removeHost(host)
			break
		}
	}
	t.mu.Unlock()

	t.wgMu.Lock()
	t.draining = true
	t.wgMu.Unlock()
	t.wg.Wait()
	t.log.Info().Msg("shutdown")
	return nil
}

// SetPeriodicTaskInterval sets the polling interval of a task kind.
func (t *T) SetPeriodicTaskInterval(kind periodictask.T, d time.Duration) error {
	if kind == periodictask.Invalid {
		return errors.Wrap(ErrInvalidArgument, "invalid task kind")
	}
	if d <= 0 {
		return errors.Wrapf(ErrInvalidArgument, "invalid interval %s", d)
	}
	return t.cfg.SetInterval(kind, d)
}

// PeriodicTaskInterval returns the polling interval of a task kind.
func (t *T) PeriodicTaskInterval(kind periodictask.T) (time.Duration, error) {
	if kind == periodictask.Invalid {
		return 0, errors.Wrap(ErrInvalidArgument, "invalid task kind")
	}
	return t.cfg.Interval(kind), nil
}

// SetSchedulePeriodicTasks enables or disables the periodic polling of
// a host.
func (t *T) SetSchedulePeriodicTasks(host string, v bool) error {
	if err := checkNotEmpty(host, "host name"); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shutdown {
		return ErrShutdown
	}
	if _, ok := t.hosts[host]; !ok {
		return UnknownHostError{Host: host}
	}
	t.cfg.SetScheduleEnabled(host, v)
	return nil
}

// SetActiveOnlyTasks restricts the task polling of a host to active
// tasks, and nudges the task poll so the view converges.
func (t *T) SetActiveOnlyTasks(host string, v bool) error {
	if err := checkNotEmpty(host, "host name"); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shutdown {
		return ErrShutdown
	}
	if _, ok := t.hosts[host]; !ok {
		return UnknownHostError{Host: host}
	}
	t.cfg.SetActiveOnlyTasks(host, v)
	t.sched.RescheduleNow(host, periodictask.Tasks)
	return nil
}

// RescheduleNow forces the next execution of one periodic task to the
// current scheduler tick. Unknown host or kind is a no-op.
func (t *T) RescheduleNow(host string, kind periodictask.T) error {
	if err := checkNotEmpty(host, "host name"); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shutdown {
		return ErrShutdown
	}
	t.sched.RescheduleNow(host, kind)
	return nil
}

// FileTransferOp runs a file transfer operation and nudges the transfer
// poll.
func (t *T) FileTransferOp(host string, op rpc.FileTransferOp, masterURL, filename string) (*promise.P[bool], error) {
	if err := checkNotEmpty(host, "host name"); err != nil {
		return nil, err
	}
	if err := checkNotEmpty(masterURL, "master url"); err != nil {
		return nil, err
	}
	if err := checkNotEmpty(filename, "filename"); err != nil {
		return nil, err
	}
	req := rpc.FileTransferOpRequest{FileTransferOp: op, MasterURL: masterURL, Filename: filename}
	return submit(t, host, req, successAdapter, periodictask.FileTransfers), nil
}

// ProjectOp runs a project operation and nudges the project poll.
func (t *T) ProjectOp(host string, op rpc.ProjectOp, masterURL string) (*promise.P[bool], error) {
	if err := checkNotEmpty(host, "host name"); err != nil {
		return nil, err
	}
	if err := checkNotEmpty(masterURL, "master url"); err != nil {
		return nil, err
	}
	req := rpc.ProjectOpRequest{ProjectOp: op, MasterURL: masterURL}
	return submit(t, host, req, successAdapter, periodictask.ProjectStatus), nil
}

// TaskOp runs a task operation and nudges the task poll.
func (t *T) TaskOp(host string, op rpc.TaskOp, masterURL, taskName string) (*promise.P[bool], error) {
	if err := checkNotEmpty(host, "host name"); err != nil {
		return nil, err
	}
	if err := checkNotEmpty(masterURL, "master url"); err != nil {
		return nil, err
	}
	if err := checkNotEmpty(taskName, "task name"); err != nil {
		return nil, err
	}
	req := rpc.TaskOpRequest{TaskOp: op, MasterURL: masterURL, Name: taskName}
	return submit(t, host, req, successAdapter, periodictask.Tasks), nil
}

// LoadGlobalPreferences fetches a global preferences document.
func (t *T) LoadGlobalPreferences(host string, mode rpc.PrefsMode) (*promise.P[rpc.GlobalPreferences], error) {
	if err := checkNotEmpty(host, "host name"); err != nil {
		return nil, err
	}
	req := rpc.GetGlobalPrefsRequest{Mode: mode}
	return submit(t, host, req, func(resp rpc.Response) (rpc.GlobalPreferences, error) {
		r, ok := resp.(*rpc.GlobalPrefsResponse)
		if !ok {
			return rpc.GlobalPreferences{}, errors.Errorf("unexpected response type %T", resp)
		}
		return r.Preferences, nil
	}, periodictask.Invalid), nil
}

// SaveGlobalPreferences writes the global preferences override.
func (t *T) SaveGlobalPreferences(host string, prefs rpc.GlobalPreferences, mask rpc.GlobalPreferencesMask) (*promise.P[bool], error) {
	if err := checkNotEmpty(host, "host name"); err != nil {
		return nil, err
	}
	req := rpc.SetGlobalPrefsRequest{Preferences: prefs, Mask: mask}
	return submit(t, host, req, successAdapter, periodictask.Invalid), nil
}

// ReadGlobalPrefsOverride makes the daemon reload its preferences
// override file.
func (t *T) ReadGlobalPrefsOverride(host string) (*promise.P[bool], error) {
	if err := checkNotEmpty(host, "host name"); err != nil {
		return nil, err
	}
	return submit(t, host, rpc.ReadGlobalPrefsOverrideRequest{}, successAdapter, periodictask.Invalid), nil
}

// SetRunMode sets the task activity mode of a host.
func (t *T) SetRunMode(host string, mode rpc.RunMode) (*promise.P[bool], error) {
	if err := checkRunMode(host, mode); err != nil {
		return nil, err
	}
	return submit(t, host, rpc.SetRunModeRequest{Mode: mode}, successAdapter, periodictask.Invalid), nil
}

// SetGpuMode sets the gpu activity mode of a host.
func (t *T) SetGpuMode(host string, mode rpc.RunMode) (*promise.P[bool], error) {
	if err := checkRunMode(host, mode); err != nil {
		return nil, err
	}
	return submit(t, host, rpc.SetGpuModeRequest{Mode: mode}, successAdapter, periodictask.Invalid), nil
}

// SetNetworkMode sets the network activity mode of a host.
func (t *T) SetNetworkMode(host string, mode rpc.RunMode) (*promise.P[bool], error) {
	if err := checkRunMode(host, mode); err != nil {
		return nil, err
	}
	return submit(t, host, rpc.SetNetworkModeRequest{Mode: mode}, successAdapter, periodictask.Invalid), nil
}

// submit binds a command job to a fresh promise and queues it on the
// target host worker, nudging the related periodic task when one is
// named. Submission failures settle the promise, so it is never
// orphaned.
func submit[R any](t *T, host string, req rpc.Request, adapt func(rpc.Response) (R, error), nudge periodictask.T) *promise.P[R] {
	p := promise.New[R]()
	job := hostworker.NewCommandJob(req, func(resp rpc.Response, status rpc.Status) {
		if status != rpc.StatusOK {
			p.Fail(rpc.NewError(req, status, ""))
			return
		}
		v, err := adapt(resp)
		if err != nil {
			p.Fail(err)
			return
		}
		p.Fulfill(v)
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shutdown {
		p.Fail(ErrShutdown)
		return p
	}
	worker, ok := t.hosts[host]
	if !ok {
		p.Fail(UnknownHostError{Host: host})
		return p
	}
	if err := worker.ScheduleNow(job); err != nil {
		p.Fail(errors.Wrap(ErrShutdown, err.Error()))
		return p
	}
	if nudge != periodictask.Invalid {
		t.sched.RescheduleNow(host, nudge)
	}
	return p
}

func successAdapter(resp rpc.Response) (bool, error) {
	r, ok := resp.(*rpc.SuccessResponse)
	if !ok {
		return false, errors.Errorf("unexpected response type %T", resp)
	}
	return r.Success, nil
}

func checkRunMode(host string, mode rpc.RunMode) error {
	if err := checkNotEmpty(host, "host name"); err != nil {
		return err
	}
	if mode.String() == "" {
		return errors.Wrap(ErrInvalidArgument, "invalid run mode")
	}
	return nil
}

func checkNotEmpty(value, what string) error {
	if value == "" {
		return errors.Wrap(ErrInvalidArgument, "missing "+what)
	}
	return nil
}
