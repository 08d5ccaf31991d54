package lifecycle

import (
	"context"
	"errors"
	"strings"

	"github.com/dharsanguruparan/DocChat/internal/completion"
	"github.com/dharsanguruparan/DocChat/internal/extract"
)

// MaxFailureLength bounds the failure description stored in a job result.
const MaxFailureLength = 500

var errPanic = errors.New("unexpected processing error")

// Describe turns a processing error into the human-readable text stored on a
// FAILED job: one line, at most MaxFailureLength characters.
func Describe(err error) string {
	var (
		ee  *extract.ExtractionError
		ue  *completion.UpstreamError
		msg string
	)
	switch {
	case err == nil:
		msg = "Processing failed."
	case errors.Is(err, ErrNoDocument):
		msg = "No document attached to job."
	case isTimeout(err):
		msg = "Processing timed out."
	case errors.As(err, &ee):
		msg = "Text extraction failed: " + ee.Error()
	case errors.As(err, &ue):
		msg = "Summarization failed: " + ue.Error()
	case errors.Is(err, errPanic):
		msg = "Unexpected processing error: " + strings.TrimPrefix(err.Error(), errPanic.Error()+": ")
	default:
		msg = "Processing failed: " + err.Error()
	}
	msg = strings.Join(strings.Fields(msg), " ")
	if completion.Truncate(msg, MaxFailureLength) != msg {
		msg = completion.Truncate(msg, MaxFailureLength-3) + "..."
	}
	return msg
}

// isTimeout reports an expired attempt deadline or an HTTP client timeout,
// including when wrapped by an UpstreamError.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
