// Package chat answers follow-up questions about a summarized document.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dharsanguruparan/DocChat/internal/jobstore"
	"github.com/dharsanguruparan/DocChat/internal/logger"
	"github.com/dharsanguruparan/DocChat/internal/model"
)

var (
	// ErrNotReady is returned for jobs that have not finished successfully or
	// carry no document.
	ErrNotReady = errors.New("job is not ready for chat")
	// ErrInternal hides extraction and upstream failures from callers.
	ErrInternal = errors.New("chat failed")
	// ErrInvalidHistory rejects turns with an unknown role or blank content.
	ErrInvalidHistory = errors.New("invalid chat history")
	// ErrEmptyPrompt rejects a blank prompt.
	ErrEmptyPrompt = errors.New("prompt must not be empty")
)

// JobReader looks up the job a chat refers to.
type JobReader interface {
	Get(ctx context.Context, id string) (*model.Job, error)
}

// TextExtractor turns the job's stored document into text.
type TextExtractor interface {
	Extract(ctx context.Context, ref string) (string, error)
}

// Converser sends a grounded conversation to the completion service.
type Converser interface {
	Converse(ctx context.Context, documentText string, history []model.ChatTurn, prompt string) (string, error)
}

// Orchestrator runs chat requests synchronously within the caller's request.
type Orchestrator struct {
	jobs      JobReader
	extractor TextExtractor
	converser Converser
	log       *logger.Logger
}

// New builds an Orchestrator. A nil logger discards output.
func New(jobs JobReader, extractor TextExtractor, converser Converser, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{jobs: jobs, extractor: extractor, converser: converser, log: log.With("component", "chat")}
}

// Chat replies to prompt in the context of the job's document. The document
// is extracted again on every call.
func (o *Orchestrator) Chat(ctx context.Context, jobID, prompt string, history []model.ChatTurn) (string, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return "", err
		}
		o.log.Error("chat.lookup_failed", "job_id", jobID, "error", err)
		return "", ErrInternal
	}
	if job.Status != model.StatusSuccess || !job.HasDocument() {
		return "", fmt.Errorf("%w: status %s", ErrNotReady, job.Status)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	for i, turn := range history {
		if !model.ValidRole(turn.Role) {
			return "", fmt.Errorf("%w: turn %d has role %q", ErrInvalidHistory, i, turn.Role)
		}
		if strings.TrimSpace(turn.Content) == "" {
			return "", fmt.Errorf("%w: turn %d has no content", ErrInvalidHistory, i)
		}
	}

	text, err := o.extractor.Extract(ctx, job.DocumentRef)
	if err != nil {
		o.log.Error("chat.extract_failed", "job_id", jobID, "error", err)
		return "", ErrInternal
	}
	reply, err := o.converser.Converse(ctx, text, history, prompt)
	if err != nil {
		o.log.Error("chat.converse_failed", "job_id", jobID, "error", err)
		return "", ErrInternal
	}
	o.log.Info("chat.reply", "job_id", jobID, "history_len", len(history), "reply_len", len(reply))
	return reply, nil
}
