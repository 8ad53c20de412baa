package hostworker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/opengrid/gridctl/core/periodictask"
	"github.com/opengrid/gridctl/core/rpc"
)

type (
	// Job is a unit of work queued to a host worker. Command jobs carry
	// a completion adapter closing over the caller promise. Periodic
	// jobs additionally carry a post-execution hook notifying the
	// scheduler.
	Job struct {
		id       uuid.UUID
		kind     periodictask.T
		req      rpc.Request
		run      func(ctx context.Context, client rpc.Client) (rpc.Response, rpc.Status)
		complete func(resp rpc.Response, status rpc.Status)
		post     func(resp rpc.Response, status rpc.Status)
	}
)

// NewCommandJob returns a job executing req and feeding the outcome to
// the complete adapter. The queue takes ownership: complete is invoked
// exactly once, with StatusCancelled if the job is dropped.
func NewCommandJob(req rpc.Request, complete func(rpc.Response, rpc.Status)) *Job {
	return &Job{
		id:       uuid.New(),
		req:      req,
		complete: complete,
	}
}

// NewPeriodicJob returns a polling job for kind. post is invoked after
// complete, from the worker goroutine, or from the Schedule caller when
// the worker is already closed.
func NewPeriodicJob(kind periodictask.T, req rpc.Request, complete, post func(rpc.Response, rpc.Status)) *Job {
	return &Job{
		id:       uuid.New(),
		kind:     kind,
		req:      req,
		complete: complete,
		post:     post,
	}
}

// newFuncJob returns a job running fn instead of a request execution.
// Used for the authorization sequence.
func newFuncJob(fn func(ctx context.Context, client rpc.Client) (rpc.Response, rpc.Status), complete func(rpc.Response, rpc.Status)) *Job {
	return &Job{
		id:       uuid.New(),
		run:      fn,
		complete: complete,
	}
}

// Kind returns the periodic task kind, or periodictask.Invalid for
// command jobs.
func (j *Job) Kind() periodictask.T {
	return j.kind
}

func (j *Job) String() string {
	if j.kind != periodictask.Invalid {
		return fmt.Sprintf("periodic job %s %s", j.kind, j.id)
	}
	if j.req != nil {
		return fmt.Sprintf("command job %s %s", j.req.Op(), j.id)
	}
	return fmt.Sprintf("job %s", j.id)
}

// execute runs the job payload against the client.
func (j *Job) execute(ctx context.Context, client rpc.Client) (rpc.Response, rpc.Status) {
	if j.run != nil {
		return j.run(ctx, client)
	}
	return client.Execute(ctx, j.req)
}

// drop completes the job with StatusCancelled so its promise is not
// orphaned, and lets the post-execution hook clear its pending slot.
func (j *Job) drop() {
	j.complete(nil, rpc.StatusCancelled)
	if j.post != nil {
		j.post(nil, rpc.StatusCancelled)
	}
}
