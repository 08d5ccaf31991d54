// Package worker consumes summarize tasks from asynq and hands them to the
// job lifecycle.
package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/DocChat/internal/logger"
	"github.com/dharsanguruparan/DocChat/internal/queue"
)

// JobProcessor runs the processing attempt for one job and records the
// outcome itself.
type JobProcessor interface {
	Process(ctx context.Context, jobID string)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	jobs JobProcessor
	log  *logger.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(jobs JobProcessor, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Nop()
	}
	return &Processor{jobs: jobs, log: log.With("component", "worker")}
}

// Handler registers the summarize job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.SummarizeJobTask, p.handleSummarize)
	return mux
}

func (p *Processor) handleSummarize(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseSummarizeTask(task)
	if err != nil {
		p.log.Error("task.decode_failed", "type", task.Type(), "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	// Outcomes live on the job record; asynq never retries a job.
	p.jobs.Process(ctx, payload.JobID)
	return nil
}
