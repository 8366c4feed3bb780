package camunda

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"clinic-workers/internal/common/config"
	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/common/metrics"
	"clinic-workers/internal/common/observability"
)

// JobHandler completes or fails the job itself.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

type Worker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// NewWorker opens a job worker for taskType. The shared zbc client is owned by
// the caller and is not closed by Stop.
func NewWorker(client zbc.Client, taskType string, wc config.WorkerConfig, handler JobHandler, obs *observability.Observability, log logger.Logger) *Worker {
	log = log.WithFields(map[string]interface{}{"taskType": taskType})

	builder := client.NewJobWorker().
		JobType(taskType).
		Handler(func(c worker.JobClient, job entities.Job) {
			start := time.Now()
			handler.Handle(c, job)
			elapsed := time.Since(start)
			metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
			obs.RecordJobProcessed(context.Background(), taskType, "handled")
			obs.RecordJobDuration(context.Background(), taskType, elapsed, "handled")
		}).
		MaxJobsActive(maxJobs(wc.MaxJobsActive))
	if wc.Timeout > 0 {
		builder = builder.Timeout(config.GetDuration(wc.Timeout))
	}

	log.Info("worker started", map[string]interface{}{"maxJobsActive": maxJobs(wc.MaxJobsActive)})
	return &Worker{worker: builder.Open(), logger: log, taskType: taskType}
}

func maxJobs(n int) int {
	if n <= 0 {
		return 5
	}
	return n
}

func (w *Worker) Stop() {
	w.logger.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}
