package profile

import (
	"errors"
	"fmt"
)

// ExtractionError reports that the extractor failed or timed out. No
// profile state was changed.
type ExtractionError struct {
	BrandID string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("profile: extraction failed for %s: %v", e.BrandID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsExtractionFailed reports whether err came from a failed extraction.
func IsExtractionFailed(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}
