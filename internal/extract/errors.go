package extract

import (
	"errors"
	"fmt"
)

// Kind classifies why a document could not be turned into text.
type Kind string

const (
	UnsupportedFormat Kind = "unsupported_format"
	EmptyContent      Kind = "empty_content"
	Malformed         Kind = "malformed"
	Unavailable       Kind = "unavailable"
)

// ExtractionError reports a document that is present but unusable.
type ExtractionError struct {
	Kind   Kind
	Format string
	Err    error
}

func (e *ExtractionError) Error() string {
	switch e.Kind {
	case UnsupportedFormat:
		return fmt.Sprintf("unsupported file type %q for text extraction", e.Format)
	case EmptyContent:
		return "no text could be extracted from the document"
	case Unavailable:
		return fmt.Sprintf("document could not be read: %v", e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("malformed %s document: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("malformed %s document", e.Format)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an ExtractionError of kind k.
func IsKind(err error, k Kind) bool {
	var ee *ExtractionError
	return errors.As(err, &ee) && ee.Kind == k
}
