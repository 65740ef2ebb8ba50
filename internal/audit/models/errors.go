package models

import (
	"context"
	"errors"
	"strings"

	dErrors "fcp-audit/pkg/domain-errors"
	"fcp-audit/pkg/platform/sentinel"
)

// ValidationError carries every violation found in one event.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "event is invalid, " + strings.Join(e.Details, ". ")
}

// NewValidationError wraps the collected violations with CodeValidation.
func NewValidationError(details []string) error {
	return dErrors.Wrap(&ValidationError{Details: details}, dErrors.CodeValidation, "")
}

// NewMalformedEnvelope reports a transport envelope that could not be decoded.
func NewMalformedEnvelope(layer string, err error) error {
	return dErrors.Wrap(err, dErrors.CodeMalformedEnvelope, "malformed envelope: "+layer)
}

// NewOperationTimeout marks a store call that exceeded its execution time limit.
func NewOperationTimeout(op string, err error) error {
	return dErrors.Wrap(err, dErrors.CodeTimeout, op)
}

// NewStorageError marks any other store failure.
func NewStorageError(op string, err error) error {
	return dErrors.Wrap(err, dErrors.CodeInternal, op)
}

// AsValidationError extracts the violation list from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// IsMalformedEnvelope reports a decode failure.
func IsMalformedEnvelope(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeMalformedEnvelope)
}

// IsOperationTimeout reports a store call that ran out of time.
func IsOperationTimeout(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeTimeout) || errors.Is(err, sentinel.ErrTimeout)
}

// IsFatal reports errors that will never succeed on redelivery.
func IsFatal(err error) bool {
	_, invalid := AsValidationError(err)
	return invalid || IsMalformedEnvelope(err)
}

// StoreError classifies a raw store failure as OperationTimeout or StorageError.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return NewOperationTimeout(op, err)
	}
	return NewStorageError(op, err)
}
