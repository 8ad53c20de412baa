package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opengrid/gridctl/core/periodictask"
	"github.com/opengrid/gridctl/core/rpc"
)

type (
	fakeClient struct {
		mu         sync.Mutex
		connectErr error
		requests   []rpc.Request
		respond    func(ctx context.Context, req rpc.Request) (rpc.Response, rpc.Status)
	}

	lifecycleRecorder struct {
		mu     sync.Mutex
		events []string
		c      chan string
	}

	periodicRecorder struct {
		mu      sync.Mutex
		results map[periodictask.T]int
		c       chan periodictask.T
	}
)

func (c *fakeClient) Connect(_ context.Context, _ string, _ int) error {
	return c.connectErr
}

func (c *fakeClient) Authorize(context.Context, string) error { return nil }
func (c *fakeClient) Close() error                            { return nil }

func (c *fakeClient) Execute(ctx context.Context, req rpc.Request) (rpc.Response, rpc.Status) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	respond := c.respond
	c.mu.Unlock()
	if respond != nil {
		return respond(ctx, req)
	}
	switch req.(type) {
	case rpc.GetMessagesRequest:
		return &rpc.MessagesResponse{}, rpc.StatusOK
	case rpc.GetNoticesRequest:
		return &rpc.NoticesResponse{}, rpc.StatusOK
	case rpc.GetTasksRequest:
		return &rpc.TasksResponse{}, rpc.StatusOK
	case rpc.GetCCStatusRequest:
		return &rpc.CCStatusResponse{}, rpc.StatusOK
	case rpc.GetClientStateRequest:
		return &rpc.ClientStateResponse{}, rpc.StatusOK
	case rpc.GetDiskUsageRequest:
		return &rpc.DiskUsageResponse{}, rpc.StatusOK
	case rpc.GetFileTransfersRequest:
		return &rpc.FileTransfersResponse{}, rpc.StatusOK
	case rpc.GetProjectStatusRequest:
		return &rpc.ProjectStatusResponse{}, rpc.StatusOK
	case rpc.GetStatisticsRequest:
		return &rpc.StatisticsResponse{}, rpc.StatusOK
	default:
		return &rpc.SuccessResponse{Success: true}, rpc.StatusOK
	}
}

func (c *fakeClient) countOf(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, req := range c.requests {
		if req.Op() == op {
			n++
		}
	}
	return n
}

func newLifecycleRecorder() *lifecycleRecorder {
	return &lifecycleRecorder{c: make(chan string, 256)}
}

func (h *lifecycleRecorder) record(ev string) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	select {
	case h.c <- ev:
	default:
	}
}

func (h *lifecycleRecorder) OnHostAdded(host string)               { h.record("added:" + host) }
func (h *lifecycleRecorder) OnHostConnected(host string)           { h.record("connected:" + host) }
func (h *lifecycleRecorder) OnHostAuthorized(host string)          { h.record("authorized:" + host) }
func (h *lifecycleRecorder) OnHostAuthorizationFailed(host string) { h.record("authfailed:" + host) }
func (h *lifecycleRecorder) OnHostError(host string, _ error)      { h.record("error:" + host) }
func (h *lifecycleRecorder) OnHostRemoved(host string)             { h.record("removed:" + host) }

func (h *lifecycleRecorder) countOf(ev string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e == ev {
			n++
		}
	}
	return n
}

func (h *lifecycleRecorder) waitFor(t *testing.T, ev string, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-h.c:
			if e == ev {
				return
			}
		case <-deadline:
			t.Fatalf("no %s event within %s", ev, timeout)
		}
	}
}

func newPeriodicRecorder() *periodicRecorder {
	return &periodicRecorder{
		results: make(map[periodictask.T]int),
		c:       make(chan periodictask.T, 256),
	}
}

func (h *periodicRecorder) OnPeriodicResult(_ string, kind periodictask.T, _ rpc.Response) {
	h.mu.Lock()
	h.results[kind]++
	h.mu.Unlock()
	select {
	case h.c <- kind:
	default:
	}
}

func (h *periodicRecorder) waitFor(t *testing.T, kind periodictask.T, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case k := <-h.c:
			if k == kind {
				return
			}
		case <-deadline:
			t.Fatalf("no %s result within %s", kind, timeout)
		}
	}
}

type testRig struct {
	ctrl     *T
	client   *fakeClient
	hosts    *lifecycleRecorder
	periodic *periodicRecorder
}

func newTestRig(t *testing.T) *testRig {
	r := &testRig{
		client:   &fakeClient{},
		hosts:    newLifecycleRecorder(),
		periodic: newPeriodicRecorder(),
	}
	r.ctrl = New(WithClientFactory(func(string) rpc.Client {
		return r.client
	}))
	r.ctrl.RegisterHostHandler(r.hosts)
	r.ctrl.RegisterPeriodicTaskHandler(r.periodic)
	t.Cleanup(func() {
		require.NoError(t, r.ctrl.Shutdown())
	})
	return r
}

func TestAddPollRemove(t *testing.T) {
	r := newTestRig(t)

	require.NoError(t, r.ctrl.AddHost("h", "127.0.0.1", 31416))
	require.True(t, r.ctrl.HasHost("h"))
	require.Equal(t, []string{"h"}, r.ctrl.Hosts())
	require.Equal(t, 1, r.hosts.countOf("added:h"))
	r.hosts.waitFor(t, "connected:h", time.Second)

	require.NoError(t, r.ctrl.SetPeriodicTaskInterval(periodictask.Tasks, time.Second))
	require.NoError(t, r.ctrl.SetSchedulePeriodicTasks("h", true))
	r.periodic.waitFor(t, periodictask.Tasks, 2*time.Second)

	require.NoError(t, r.ctrl.RemoveHost("h"))
	require.False(t, r.ctrl.HasHost("h"))
	require.Equal(t, 1, r.hosts.countOf("removed:h"))

	// no further results after removal
	time.Sleep(100 * time.Millisecond)
	r.periodic.mu.Lock()
	n := r.periodic.results[periodictask.Tasks]
	r.periodic.mu.Unlock()
	time.Sleep(300 * time.Millisecond)
	r.periodic.mu.Lock()
	defer r.periodic.mu.Unlock()
	require.Equal(t, n, r.periodic.results[periodictask.Tasks])
}

func TestDuplicateAdd(t *testing.T) {
	r := newTestRig(t)
	require.NoError(t, r.ctrl.AddHost("h", "127.0.0.1", 31416))
	err := r.ctrl.AddHost("h", "127.0.0.2", 31416)
	var dup AlreadyRegisteredError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "h", dup.Host)
	require.True(t, r.ctrl.HasHost("h"))
}

func TestConnectFailureIsReported(t *testing.T) {
	r := newTestRig(t)
	r.client.connectErr = context.DeadlineExceeded
	require.NoError(t, r.ctrl.AddHost("h", "127.0.0.1", 31416))
	r.hosts.waitFor(t, "error:h", time.Second)
	// the record stays until the user removes it
	require.True(t, r.ctrl.HasHost("h"))
}

func TestTaskOpFansOut(t *testing.T) {
	r := newTestRig(t)
	require.NoError(t, r.ctrl.AddHost("h", "127.0.0.1", 31416))
	r.hosts.waitFor(t, "connected:h", time.Second)

	// a long interval keeps the periodic task quiet after its initial
	// run, so the poll observed below comes from the nudge
	require.NoError(t, r.ctrl.SetPeriodicTaskInterval(periodictask.Tasks, time.Hour))
	require.NoError(t, r.ctrl.SetSchedulePeriodicTasks("h", true))
	r.periodic.waitFor(t, periodictask.Tasks, time.Second)
	polls := r.client.countOf("get_results")

	p, err := r.ctrl.TaskOp("h", rpc.TaskAbort, "http://u/", "wu1")
	require.NoError(t, err)
	ok, err := p.Result()
	require.NoError(t, err)
	require.True(t, ok)

	begin := time.Now()
	r.periodic.waitFor(t, periodictask.Tasks, time.Second)
	require.Less(t, time.Since(begin), 400*time.Millisecond)
	require.Greater(t, r.client.countOf("get_results"), polls)
	require.Equal(t, 1, r.client.countOf("abort_result"))
}

func TestActiveOnlyTasksNudges(t *testing.T) {
	r := newTestRig(t)
	require.NoError(t, r.ctrl.AddHost("h", "127.0.0.1", 31416))
	require.NoError(t, r.ctrl.SetPeriodicTaskInterval(periodictask.Tasks, time.Hour))
	require.NoError(t, r.ctrl.SetSchedulePeriodicTasks("h", true))
	r.periodic.waitFor(t, periodictask.Tasks, time.Second)

	require.NoError(t, r.ctrl.SetActiveOnlyTasks("h", true))
	r.periodic.waitFor(t, periodictask.Tasks, time.Second)
}

func TestShutdownDrainsPromises(t *testing.T) {
	r := newTestRig(t)
	r.client.respond = func(ctx context.Context, _ rpc.Request) (rpc.Response, rpc.Status) {
		<-ctx.Done()
		return nil, rpc.StatusCancelled
	}
	require.NoError(t, r.ctrl.AddHost("h", "127.0.0.1", 31416))
	r.hosts.waitFor(t, "connected:h", time.Second)

	promises := make([]interface{ Done() <-chan struct{} }, 0, 5)
	for i := 0; i < 5; i++ {
		p, err := r.ctrl.ProjectOp("h", rpc.ProjectUpdate, "http://u/")
		require.NoError(t, err)
		promises = append(promises, p)
	}

	done := make(chan struct{})
	go func() {
		require.NoError(t, r.ctrl.Shutdown())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return")
	}

	for _, p := range promises {
		select {
		case <-p.Done():
		default:
			t.Fatal("promise not settled by shutdown")
		}
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	r := newTestRig(t)
	require.NoError(t, r.ctrl.Shutdown())
	require.NoError(t, r.ctrl.Shutdown())
}

func TestOperationsAfterShutdown(t *testing.T) {
	r := newTestRig(t)
	require.NoError(t, r.ctrl.AddHost("h", "127.0.0.1", 31416))
	require.NoError(t, r.ctrl.Shutdown())

	require.ErrorIs(t, r.ctrl.AddHost("h2", "127.0.0.1", 31416), ErrShutdown)
	require.ErrorIs(t, r.ctrl.RemoveHost("h"), ErrShutdown)
	require.ErrorIs(t, r.ctrl.AuthorizeHost("h", "pw"), ErrShutdown)
	require.ErrorIs(t, r.ctrl.SetSchedulePeriodicTasks("h", true), ErrShutdown)

	p, err := r.ctrl.TaskOp("h", rpc.TaskAbort, "http://u/", "wu1")
	require.NoError(t, err)
	_, err = p.Result()
	require.ErrorIs(t, err, ErrShutdown)
}

func TestInvalidArguments(t *testing.T) {
	r := newTestRig(t)
	require.ErrorIs(t, r.ctrl.AddHost("", "127.0.0.1", 31416), ErrInvalidArgument)
	require.ErrorIs(t, r.ctrl.AddHost("h", "", 31416), ErrInvalidArgument)
	require.ErrorIs(t, r.ctrl.AddHostWithPassword("h", "127.0.0.1", 31416, ""), ErrInvalidArgument)
	require.ErrorIs(t, r.ctrl.AuthorizeHost("", "pw"), ErrInvalidArgument)
	require.ErrorIs(t, r.ctrl.AuthorizeHost("h", ""), ErrInvalidArgument)
	require.ErrorIs(t, r.ctrl.RemoveHost(""), ErrInvalidArgument)
	require.ErrorIs(t, r.ctrl.AsyncRemoveHost(""), ErrInvalidArgument)
	require.ErrorIs(t, r.ctrl.SetSchedulePeriodicTasks("", true), ErrInvalidArgument)
	require.ErrorIs(t, r.ctrl.SetPeriodicTaskInterval(periodictask.Invalid, time.Second), ErrInvalidArgument)
	require.ErrorIs(t, r.ctrl.SetPeriodicTaskInterval(periodictask.Tasks, 0), ErrInvalidArgument)

	_, err := r.ctrl.TaskOp("h", rpc.TaskAbort, "", "wu1")
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = r.ctrl.TaskOp("h", rpc.TaskAbort, "http://u/", "")
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = r.ctrl.FileTransferOp("h", rpc.FileTransferRetry, "http://u/", "")
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = r.ctrl.SetRunMode("h", rpc.RunModeInvalid)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUnknownHost(t *testing.T) {
	r := newTestRig(t)
	var unknown UnknownHostError

	require.ErrorAs(t, r.ctrl.RemoveHost("nope"), &unknown)
	require.ErrorAs(t, r.ctrl.AuthorizeHost("nope", "pw"), &unknown)
	require.ErrorAs(t, r.ctrl.SetSchedulePeriodicTasks("nope", true), &unknown)
	require.ErrorAs(t, r.ctrl.SetActiveOnlyTasks("nope", true), &unknown)

	p, err := r.ctrl.ProjectOp("nope", rpc.ProjectUpdate, "http://u/")
	require.NoError(t, err)
	_, err = p.Result()
	require.ErrorAs(t, err, &unknown)

	// a nudge on an unknown host is a no-op
	require.NoError(t, r.ctrl.RescheduleNow("nope", periodictask.Tasks))
}

func TestIntervalRoundTrip(t *testing.T) {
	r := newTestRig(t)
	require.NoError(t, r.ctrl.SetPeriodicTaskInterval(periodictask.Notices, 5*time.Second))
	d, err := r.ctrl.PeriodicTaskInterval(periodictask.Notices)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, d)
}

func TestAsyncRemoveHost(t *testing.T) {
	r := newTestRig(t)
	require.NoError(t, r.ctrl.AddHost("h", "127.0.0.1", 31416))
	require.NoError(t, r.ctrl.AsyncRemoveHost("h"))
	r.hosts.waitFor(t, "removed:h", time.Second)
	require.False(t, r.ctrl.HasHost("h"))

	// removing a host that is already gone is a success
	require.NoError(t, r.ctrl.AsyncRemoveHost("h"))
	time.Sleep(50 * time.Millisecond)
}

func TestAddHostWithPasswordAuthorizes(t *testing.T) {
	r := newTestRig(t)
	require.NoError(t, r.ctrl.AddHostWithPassword("h", "127.0.0.1", 31416, "secret"))
	r.hosts.waitFor(t, "connected:h", time.Second)
	r.hosts.waitFor(t, "authorized:h", time.Second)
}

func TestRemoveRacingConnect(t *testing.T) {
	// a slow connect must not wedge an immediate removal
	release := make(chan struct{})
	slow := &slowConnectClient{release: release}
	ctrl := New(WithClientFactory(func(string) rpc.Client { return slow }))
	defer func() {
		close(release)
		require.NoError(t, ctrl.Shutdown())
	}()
	require.NoError(t, ctrl.AddHost("h", "127.0.0.1", 31416))
	require.NoError(t, ctrl.RemoveHost("h"))
	require.False(t, ctrl.HasHost("h"))
}

type slowConnectClient struct {
	release chan struct{}
}

func (c *slowConnectClient) Connect(ctx context.Context, _ string, _ int) error {
	select {
	case <-c.release:
	case <-ctx.Done():
	}
	return ctx.Err()
}

func (c *slowConnectClient) Authorize(context.Context, string) error { return nil }
func (c *slowConnectClient) Close() error                            { return nil }

func (c *slowConnectClient) Execute(context.Context, rpc.Request) (rpc.Response, rpc.Status) {
	return nil, rpc.StatusDisconnected
}
