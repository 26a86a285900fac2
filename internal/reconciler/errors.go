package reconciler

import (
	"errors"
	"fmt"

	"github.com/dukerupert/mesa/internal/domain"
)

// ErrMissingSignature is wrapped by a SignatureError when the request
// carried no signature header at all.
var ErrMissingSignature = errors.New("reconciler: missing signature")

// SignatureError means the payload could not be trusted. Nothing was parsed
// and nothing was written.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("bad signature: %v", e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

// DomainError maps to a 400 so the provider does not keep redelivering the same bytes.
func (e *SignatureError) DomainError() error {
	return domain.WrapError(e, domain.EINVALID, "webhook.verify", "bad signature")
}

// ValidationError is a well-signed event missing an identifier it cannot be
// applied without.
type ValidationError struct {
	EventID   string
	EventType string
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("event %s (%s): %s: %s", e.EventID, e.EventType, e.Field, e.Reason)
}

func (e *ValidationError) DomainError() error {
	return domain.WrapError(e, domain.EINVALID, "webhook.validate", e.Reason)
}

// IntegrityFault means a write scoped by a key expected to be unique touched
// more than one record.
type IntegrityFault struct {
	EventID   string
	EventType string
	Key       string
	Value     string
	Rows      int64
}

func (e *IntegrityFault) Error() string {
	return fmt.Sprintf("integrity fault: event %s (%s) updated %d records for %s=%s",
		e.EventID, e.EventType, e.Rows, e.Key, e.Value)
}

func (e *IntegrityFault) DomainError() error {
	return domain.WrapError(e, domain.EINTEGRITY, "webhook.apply", "lookup key matched more than one record")
}

// AsDomainError converts any error returned by Ingest or Dispatch into a
// domain.Error so the HTTP layer can pick a status code.
func AsDomainError(err error) error {
	if err == nil {
		return nil
	}

	var (
		sigErr   *SignatureError
		valErr   *ValidationError
		faultErr *IntegrityFault
	)
	switch {
	case errors.As(err, &sigErr):
		return sigErr.DomainError()
	case errors.As(err, &valErr):
		return valErr.DomainError()
	case errors.As(err, &faultErr):
		return faultErr.DomainError()
	}

	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Internal(err, "webhook.apply", "failed to apply event")
}
