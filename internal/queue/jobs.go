// Package queue schedules job processing through asynq so a separate worker
// process can pick it up.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// SummarizeJobTask is enqueued once per submitted job.
	SummarizeJobTask = "job:summarize"
)

// SummarizePayload names the job a worker should process. Everything else is
// read back from the job store.
type SummarizePayload struct {
	JobID string `json:"job_id"`
}

// NewSummarizeTask builds the task for jobID.
func NewSummarizeTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(SummarizePayload{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(SummarizeJobTask, data), nil
}

// ParseSummarizeTask decodes a task built by NewSummarizeTask.
func ParseSummarizeTask(task *asynq.Task) (SummarizePayload, error) {
	var payload SummarizePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.JobID == "" {
		return payload, errors.New("decode payload: missing job_id")
	}
	return payload, nil
}

// enqueuer is the part of *asynq.Client the scheduler needs.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler enqueues one summarize task per job. Each job gets exactly one
// attempt, so retries are disabled and the job id doubles as the task id.
type Scheduler struct {
	client  enqueuer
	queue   string
	timeout time.Duration
}

// NewScheduler wraps an asynq client. An empty queue name uses asynq's
// default queue; a positive timeout bounds each processing attempt.
func NewScheduler(client *asynq.Client, queueName string, timeout time.Duration) *Scheduler {
	return &Scheduler{client: client, queue: queueName, timeout: timeout}
}

// Schedule enqueues processing for jobID.
func (s *Scheduler) Schedule(ctx context.Context, jobID string) error {
	task, err := NewSummarizeTask(jobID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.MaxRetry(0), asynq.TaskID(jobID)}
	if s.queue != "" {
		opts = append(opts, asynq.Queue(s.queue))
	}
	if s.timeout > 0 {
		opts = append(opts, asynq.Timeout(s.timeout))
	}
	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue summarize task: %w", err)
	}
	return nil
}
