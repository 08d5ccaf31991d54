// Package lifecycle owns the job state machine: it accepts submissions,
// schedules one processing attempt per job and records every outcome.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/DocChat/internal/blob"
	"github.com/dharsanguruparan/DocChat/internal/jobstore"
	"github.com/dharsanguruparan/DocChat/internal/logger"
	"github.com/dharsanguruparan/DocChat/internal/model"
)

// ErrNoDocument fails jobs submitted without a file.
var ErrNoDocument = errors.New("no document attached to job")

// errTerminal aborts a failure write on a job that already finished.
var errTerminal = errors.New("job already finished")

// TextExtractor turns a stored document into text.
type TextExtractor interface {
	Extract(ctx context.Context, ref string) (string, error)
}

// Summarizer produces a summary of document text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Scheduler runs Process for a job id independently of the caller.
type Scheduler interface {
	Schedule(ctx context.Context, jobID string) error
}

// Upload is a document attached to a submission.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Controller drives jobs from PENDING to SUCCESS or FAILED.
type Controller struct {
	store      jobstore.Store
	blobs      blob.Store
	extractor  TextExtractor
	summarizer Summarizer
	scheduler  Scheduler
	log        *logger.Logger
	now        func() time.Time
}

// New builds a Controller.
func New(store jobstore.Store, blobs blob.Store, extractor TextExtractor, summarizer Summarizer, scheduler Scheduler, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{
		store:      store,
		blobs:      blobs,
		extractor:  extractor,
		summarizer: summarizer,
		scheduler:  scheduler,
		log:        log.With("component", "lifecycle"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit stores the optional upload, creates a PENDING job and schedules its
// processing. It returns as soon as the job is scheduled.
func (c *Controller) Submit(ctx context.Context, upload *Upload) (*model.Job, error) {
	job := &model.Job{ID: uuid.NewString(), Status: model.StatusPending}
	if upload != nil {
		ref := blob.DocumentKey(job.ID, upload.Filename)
		if err := c.blobs.Put(ctx, ref, upload.Body, upload.Size, upload.ContentType); err != nil {
			return nil, fmt.Errorf("store document: %w", err)
		}
		job.DocumentRef = ref
		job.DocumentName = upload.Filename
	}
	if err := c.store.Create(ctx, job); err != nil {
		if job.HasDocument() {
			_ = c.blobs.Delete(ctx, job.DocumentRef)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	c.log.Info("job.submitted", "job_id", job.ID, "document", job.DocumentName)

	if err := c.scheduler.Schedule(ctx, job.ID); err != nil {
		c.log.Error("job.schedule_failed", "job_id", job.ID, "error", err)
		c.fail(ctx, job.ID, fmt.Errorf("could not schedule processing: %w", err))
		if current, getErr := c.store.Get(ctx, job.ID); getErr == nil {
			return current, nil
		}
	}
	return job.Clone(), nil
}

// Process runs the single processing attempt for a job. Every failure is
// recorded on the job; nothing is returned to the caller.
func (c *Controller) Process(ctx context.Context, id string) {
	log := c.log.With("job_id", id)
	defer func() {
		if r := recover(); r != nil {
			log.Error("job.process.panic", "panic", r)
			c.fail(ctx, id, fmt.Errorf("%w: %v", errPanic, r))
		}
	}()

	job, err := c.store.Update(ctx, id, func(j *model.Job) error {
		return j.Transition(model.StatusProcessing, "", c.now())
	})
	switch {
	case errors.Is(err, jobstore.ErrNotFound):
		log.Info("job.process.gone")
		return
	case errors.Is(err, model.ErrInvalidTransition):
		// A second delivery for a job that already had its attempt.
		log.Warn("job.process.skipped", "error", err)
		return
	case err != nil:
		log.Error("job.process.mark_processing_failed", "error", err)
		c.fail(ctx, id, err)
		return
	}
	start := time.Now()
	log.Info("job.process.start", "document", job.DocumentName)

	if !job.HasDocument() {
		c.fail(ctx, id, ErrNoDocument)
		return
	}
	text, err := c.extractor.Extract(ctx, job.DocumentRef)
	if err != nil {
		c.fail(ctx, id, err)
		return
	}
	summary, err := c.summarizer.Summarize(ctx, text)
	if err != nil {
		c.fail(ctx, id, err)
		return
	}
	_, err = c.store.Update(ctx, id, func(j *model.Job) error {
		return j.Transition(model.StatusSuccess, summary, c.now())
	})
	if errors.Is(err, jobstore.ErrNotFound) {
		log.Info("job.process.gone_before_success")
		return
	}
	if err != nil {
		c.fail(ctx, id, err)
		return
	}
	log.Info("job.process.success", "text_len", len(text), "summary_len", len(summary), "elapsed_ms", time.Since(start).Milliseconds())
}

// fail records cause on the job. It re-reads the record by id so a job
// deleted mid-processing, or one that already finished, is left alone.
func (c *Controller) fail(ctx context.Context, id string, cause error) {
	msg := Describe(cause)
	// The attempt's context may be done already; the failure must still land.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	_, err := c.store.Update(writeCtx, id, func(j *model.Job) error {
		if j.IsTerminal() {
			return errTerminal
		}
		return j.Transition(model.StatusFailed, msg, c.now())
	})
	switch {
	case err == nil:
		c.log.Warn("job.failed", "job_id", id, "reason", msg, "error", cause)
	case errors.Is(err, jobstore.ErrNotFound):
		c.log.Info("job.failed.gone", "job_id", id, "reason", msg)
	case errors.Is(err, errTerminal):
		c.log.Warn("job.failed.already_finished", "job_id", id, "reason", msg)
	default:
		c.log.Error("job.failed.write_error", "job_id", id, "reason", msg, "error", err)
	}
}

// Delete removes the job record and then its document. A missing document
// is not an error.
func (c *Controller) Delete(ctx context.Context, id string) error {
	job, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	if job.HasDocument() {
		if err := c.blobs.Delete(ctx, job.DocumentRef); err != nil && !errors.Is(err, blob.ErrNotFound) {
			c.log.Warn("job.delete.blob_error", "job_id", id, "error", err)
		}
	}
	c.log.Info("job.deleted", "job_id", id)
	return nil
}
