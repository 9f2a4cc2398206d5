package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the pipeline. Every one of them aborts a run;
// callers classify with errors.Is.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrParse           = errors.New("parse error")
	ErrExternalService = errors.New("external service error")
	ErrTimeout         = errors.New("timeout")
	ErrNotFound        = errors.New("not found")
	ErrAuth            = errors.New("auth error")
)

// ParseError keeps the raw text that failed to parse so it can be inspected.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse JSON from model output: %v\n%s", e.Err, e.Raw)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// ServiceError is a non-success response from an external API.
type ServiceError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

func (e *ServiceError) Unwrap() error {
	return ErrExternalService
}

// ExternalError tags a transport-level failure against an external service.
func ExternalError(service string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExternalService, service, err)
}
