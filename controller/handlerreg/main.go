// Package handlerreg implements the observer registry of the controller.
//
// Handlers are borrowed, never owned: the caller keeps them alive and
// must deregister before destroying them. Callbacks are invoked from
// arbitrary goroutines and must not call back into the registry.
package handlerreg

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opengrid/gridctl/core/periodictask"
	"github.com/opengrid/gridctl/core/rpc"
	"github.com/opengrid/gridctl/util/funcopt"
)

type (
	// HostHandler observes the host lifecycle events.
	HostHandler interface {
		OnHostAdded(host string)
		OnHostConnected(host string)
		OnHostAuthorized(host string)
		OnHostAuthorizationFailed(host string)
		OnHostError(host string, err error)
		OnHostRemoved(host string)
	}

	// PeriodicTaskHandler observes the periodic polling results. It is
	// invoked from the worker goroutine that produced the data.
	PeriodicTaskHandler interface {
		OnPeriodicResult(host string, kind periodictask.T, result rpc.Response)
	}

	T struct {
		mu               sync.RWMutex
		log              zerolog.Logger
		slowWarn         time.Duration
		hostHandlers     map[HostHandler]struct{}
		periodicHandlers map[PeriodicTaskHandler]struct{}
	}
)

// New allocates a registry.
func New(opts ...funcopt.O) *T {
	t := &T{
		log:              log.Logger.With().Str("name", "handlerreg").Logger(),
		slowWarn:         time.Second,
		hostHandlers:     make(map[HostHandler]struct{}),
		periodicHandlers: make(map[PeriodicTaskHandler]struct{}),
	}
	if err := funcopt.Apply(t, opts...); err != nil {
		t.log.Error().Err(err).Msg("handlerreg funcopt.Apply")
		return nil
	}
	return t
}

// WithLogger sets the registry logger.
func WithLogger(l zerolog.Logger) funcopt.O {
	return funcopt.F(func(i interface{}) error {
		t := i.(*T)
		t.log = l
		return nil
	})
}

// WithSlowWarnDuration sets the duration above which a handler callback
// is reported slow.
func WithSlowWarnDuration(d time.Duration) funcopt.O {
	return funcopt.F(func(i interface{}) error {
		t := i.(*T)
		t.slowWarn = d
		return nil
	})
}

// RegisterHostHandler adds a host handler. Registering the same handler
// twice is a no-op.
func (t *T) RegisterHostHandler(h HostHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hostHandlers[h] = struct{}{}
}

// DeregisterHostHandler removes a host handler. Removing an unknown
// handler is a no-op.
func (t *T) DeregisterHostHandler(h HostHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.hostHandlers, h)
}

// RegisterPeriodicTaskHandler adds a periodic task handler.
func (t *T) RegisterPeriodicTaskHandler(h PeriodicTaskHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.periodicHandlers[h] = struct{}{}
}

// DeregisterPeriodicTaskHandler removes a periodic task handler.
func (t *T) DeregisterPeriodicTaskHandler(h PeriodicTaskHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.periodicHandlers, h)
}

// ForEachHostHandler invokes fn for each registered host handler.
// Broadcasts may run concurrently; registration mutation excludes them.
func (t *T) ForEachHostHandler(fn func(HostHandler)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for h := range t.hostHandlers {
		begin := time.Now()
		fn(h)
		if d := time.Since(begin); d > t.slowWarn {
			t.log.Warn().Msgf("slow host handler: %s", d)
		}
	}
}

// ForEachPeriodicTaskHandler invokes fn for each registered periodic
// task handler.
func (t *T) ForEachPeriodicTaskHandler(fn func(PeriodicTaskHandler)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for h := range t.periodicHandlers {
		begin := time.Now()
		fn(h)
		if d := time.Since(begin); d > t.slowWarn {
			t.log.Warn().Msgf("slow periodic task handler: %s", d)
		}
	}
}
