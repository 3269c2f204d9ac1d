package batch

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrJobNotPending  = errors.New("job is not pending")
	ErrJobNotFinished = errors.New("job has not finished")
	ErrWrongJobType   = errors.New("operation not valid for job type")
)

// DiscoveryError reports an unusable input root. It is returned from Submit
// and no job is created.
type DiscoveryError struct {
	Root string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovering files in %s: %v", e.Root, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ParseError is an item failure decoding certificate material.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parsing %s: %v", e.Path, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// ConversionError is an item failure re-encoding or writing converted output.
type ConversionError struct {
	Path string
	Err  error
}

func (e *ConversionError) Error() string { return fmt.Sprintf("converting %s: %v", e.Path, e.Err) }
func (e *ConversionError) Unwrap() error { return e.Err }

// ExtractionError is an item failure deriving or writing a public key.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting public key from %s: %v", e.Path, e.Err)
}
func (e *ExtractionError) Unwrap() error { return e.Err }

// KeystoreError is an item failure appending to the truststore.
type KeystoreError struct {
	Path  string
	Alias string
	Err   error
}

func (e *KeystoreError) Error() string {
	return fmt.Sprintf("importing %s as %q: %v", e.Path, e.Alias, e.Err)
}
func (e *KeystoreError) Unwrap() error { return e.Err }
