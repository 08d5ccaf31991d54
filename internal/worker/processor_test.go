package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DocChat/internal/queue"
)

type recordingJobs struct {
	ids []string
}

func (r *recordingJobs) Process(_ context.Context, id string) {
	r.ids = append(r.ids, id)
}

func TestHandlerProcessesJob(t *testing.T) {
	jobs := &recordingJobs{}
	p := NewProcessor(jobs, nil)
	task, err := queue.NewSummarizeTask("job-7")
	require.NoError(t, err)

	require.NoError(t, p.Handler().ProcessTask(context.Background(), task))
	assert.Equal(t, []string{"job-7"}, jobs.ids)
}

func TestHandlerSkipsRetryOnBadPayload(t *testing.T) {
	jobs := &recordingJobs{}
	p := NewProcessor(jobs, nil)

	err := p.Handler().ProcessTask(context.Background(), asynq.NewTask(queue.SummarizeJobTask, []byte("nope")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.Empty(t, jobs.ids)
}
