package metrics

import "time"

// JobStarted should be called when a job begins processing
func JobStarted(jobType string) {
	JobsInFlight.WithLabelValues(jobType).Inc()
}

// JobCompleted records a successful job completion
func JobCompleted(jobType string, duration time.Duration) {
	JobsInFlight.WithLabelValues(jobType).Dec()
	JobsTotal.WithLabelValues(jobType, "completed").Inc()
	JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// JobFailed records a job failure. retrying is false once the job will not run again.
func JobFailed(jobType string, retrying bool) {
	JobsInFlight.WithLabelValues(jobType).Dec()
	JobsTotal.WithLabelValues(jobType, "failed").Inc()
	if retrying {
		JobRetriesTotal.WithLabelValues(jobType).Inc()
	}
}
