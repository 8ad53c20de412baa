package periodicsched

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	periodicScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridctl_periodic_jobs_scheduled_total",
		Help: "Number of periodic jobs queued, by task kind.",
	}, []string{"kind"})

	periodicCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridctl_periodic_jobs_completed_total",
		Help: "Number of periodic jobs completed, by task kind and status.",
	}, []string{"kind", "status"})
)
