package train

import "github.com/pkg/errors"

// Error taxonomy. Configuration errors are fatal before any expensive work;
// ErrLoaderExhausted is the expected end of an epoch's batch stream.
var (
	ErrConfiguration = errors.New("configuration error")

	ErrEmptyScope      = errors.New("empty weighting scope")
	ErrMalformedScene  = errors.New("malformed scene instance")
	ErrLoaderExhausted = errors.New("batch loader exhausted")
	ErrNoProgress      = errors.New("no epoch completed")
	ErrWorkerTimeout   = errors.New("timed out waiting for batch producer")
	ErrNotConfigured   = errors.New("not configured")
)

// ErrInvalidFold and ErrNoInputFiles are configuration errors: errors.Is matches
// both the specific error and ErrConfiguration.
var (
	ErrInvalidFold  = &configError{msg: "invalid validation fold"}
	ErrNoInputFiles = &configError{msg: "no input files"}
)

type configError struct {
	msg string
}

func (e *configError) Error() string { return e.msg }

// Unwrap exposes ErrConfiguration to errors.Is.
func (e *configError) Unwrap() error { return ErrConfiguration }
