package hostworker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridctl_hostworker_jobs_scheduled_total",
		Help: "Number of jobs accepted by host worker queues.",
	})

	jobsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridctl_hostworker_jobs_executed_total",
		Help: "Number of jobs completed by host workers, by status.",
	}, []string{"status"})
)
