package hostworker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opengrid/gridctl/controller/handlerreg"
	"github.com/opengrid/gridctl/core/rpc"
)

type (
	fakeClient struct {
		mu       sync.Mutex
		executed []rpc.Request
		execute  func(ctx context.Context, req rpc.Request) (rpc.Response, rpc.Status)
		authErr  error
		closed   bool
	}

	recordingHandler struct {
		mu         sync.Mutex
		authorized []string
		authFailed []string
		errors     []error
	}
)

func (c *fakeClient) Connect(context.Context, string, int) error {
	return nil
}

func (c *fakeClient) Authorize(context.Context, string) error {
	return c.authErr
}

func (c *fakeClient) Execute(ctx context.Context, req rpc.Request) (rpc.Response, rpc.Status) {
	c.mu.Lock()
	c.executed = append(c.executed, req)
	c.mu.Unlock()
	if c.execute != nil {
		return c.execute(ctx, req)
	}
	return &rpc.SuccessResponse{Success: true}, rpc.StatusOK
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) executedOps() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := make([]string, 0, len(c.executed))
	for _, req := range c.executed {
		l = append(l, req.Op())
	}
	return l
}

func (h *recordingHandler) OnHostAdded(string)     {}
func (h *recordingHandler) OnHostConnected(string) {}

func (h *recordingHandler) OnHostAuthorized(host string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authorized = append(h.authorized, host)
}

func (h *recordingHandler) OnHostAuthorizationFailed(host string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authFailed = append(h.authFailed, host)
}

func (h *recordingHandler) OnHostError(_ string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, err)
}

func (h *recordingHandler) OnHostRemoved(string) {}

func waitCondition(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, "condition not reached within "+timeout.String())
}

func TestExecutesInArrivalOrder(t *testing.T) {
	client := &fakeClient{}
	worker := New(t.Name(), client, handlerreg.New())
	defer worker.Shutdown()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		job := NewCommandJob(rpc.GetCCStatusRequest{}, func(rpc.Response, rpc.Status) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
		require.NoError(t, worker.Schedule(job))
	}
	wg.Wait()
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestShutdownDrainsQueue(t *testing.T) {
	// the in-flight exchange blocks until the worker context is
	// cancelled
	client := &fakeClient{
		execute: func(ctx context.Context, _ rpc.Request) (rpc.Response, rpc.Status) {
			<-ctx.Done()
			return nil, rpc.StatusCancelled
		},
	}
	worker := New(t.Name(), client, handlerreg.New())

	var mu sync.Mutex
	statuses := make([]rpc.Status, 0, 5)
	for i := 0; i < 5; i++ {
		job := NewCommandJob(rpc.GetCCStatusRequest{}, func(_ rpc.Response, status rpc.Status) {
			mu.Lock()
			statuses = append(statuses, status)
			mu.Unlock()
		})
		require.NoError(t, worker.Schedule(job))
	}

	done := make(chan struct{})
	go func() {
		worker.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, statuses, 5)
	for _, status := range statuses {
		require.Equal(t, rpc.StatusCancelled, status)
	}
	require.True(t, client.closed)
}

func TestScheduleAfterShutdown(t *testing.T) {
	worker := New(t.Name(), &fakeClient{}, handlerreg.New())
	worker.Shutdown()

	var status rpc.Status
	job := NewCommandJob(rpc.GetCCStatusRequest{}, func(_ rpc.Response, s rpc.Status) {
		status = s
	})
	require.ErrorIs(t, worker.Schedule(job), ErrClosed)
	require.Equal(t, rpc.StatusCancelled, status)
}

func TestShutdownIsIdempotent(t *testing.T) {
	worker := New(t.Name(), &fakeClient{}, handlerreg.New())
	worker.Shutdown()
	worker.Shutdown()
}

func TestAuthorizeBroadcastsAuthorized(t *testing.T) {
	registry := handlerreg.New()
	handler := &recordingHandler{}
	registry.RegisterHostHandler(handler)
	worker := New(t.Name(), &fakeClient{}, registry)
	defer worker.Shutdown()

	require.NoError(t, worker.Authorize("secret"))
	waitCondition(t, time.Second, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.authorized) == 1
	})
	require.Equal(t, Authorized, worker.AuthState())
}

func TestAuthorizeBroadcastsFailure(t *testing.T) {
	registry := handlerreg.New()
	handler := &recordingHandler{}
	registry.RegisterHostHandler(handler)
	worker := New(t.Name(), &fakeClient{authErr: rpc.ErrUnauthorized}, registry)
	defer worker.Shutdown()

	require.NoError(t, worker.Authorize("bad"))
	waitCondition(t, time.Second, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.authFailed) == 1
	})
	require.Equal(t, AuthorizationFailed, worker.AuthState())
}

func TestDisconnectionIsReportedOnce(t *testing.T) {
	registry := handlerreg.New()
	handler := &recordingHandler{}
	registry.RegisterHostHandler(handler)
	client := &fakeClient{
		execute: func(context.Context, rpc.Request) (rpc.Response, rpc.Status) {
			return nil, rpc.StatusDisconnected
		},
	}
	worker := New(t.Name(), client, registry)
	defer worker.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		job := NewCommandJob(rpc.GetCCStatusRequest{}, func(rpc.Response, rpc.Status) {
			wg.Done()
		})
		require.NoError(t, worker.Schedule(job))
	}
	wg.Wait()

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Len(t, handler.errors, 1)
}

func TestFailedJobDoesNotStopTheWorker(t *testing.T) {
	var calls int
	var mu sync.Mutex
	client := &fakeClient{
		execute: func(_ context.Context, req rpc.Request) (rpc.Response, rpc.Status) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return nil, rpc.StatusClientError
			}
			return &rpc.SuccessResponse{Success: true}, rpc.StatusOK
		},
	}
	worker := New(t.Name(), client, handlerreg.New())
	defer worker.Shutdown()

	statuses := make(chan rpc.Status, 2)
	for i := 0; i < 2; i++ {
		job := NewCommandJob(rpc.GetCCStatusRequest{}, func(_ rpc.Response, status rpc.Status) {
			statuses <- status
		})
		require.NoError(t, worker.Schedule(job))
	}
	require.Equal(t, rpc.StatusClientError, <-statuses)
	require.Equal(t, rpc.StatusOK, <-statuses)
}
