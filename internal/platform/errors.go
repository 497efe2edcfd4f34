package platform

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/temirov/repofleet/internal/credentials"
)

const (
	platformErrorTemplateConstant          = "%s: %s"
	platformErrorStatusTemplateConstant    = "%s: %s (status %d)"
	platformErrorDetailSeparatorConstant   = ": "
	validationErrorTemplateConstant        = "invalid %s %q: %s"
	validationErrorWithoutValueConstant    = "invalid %s: %s"
	unsupportedOperationTemplateConstant   = "%s is not supported by the %s platform"
	nonContractMethodTemplateConstant      = "%s exposes non-contract method %s"
	signatureMismatchTemplateConstant      = "%s.%s has signature %s, contract requires %s"
	notFoundMessageConstant                = "not found"
	badCredentialsMessageConstant          = "bad credentials"
	serviceUnavailableMessageConstant      = "service unavailable"
	genericPlatformErrorMessageConstant    = "platform error"
	unexpectedPlatformErrorMessageConstant = "unexpected platform error"
	validationSentinelMessageConstant      = "validation failed"
	unsupportedSentinelMessageConstant     = "operation not supported"
)

// ErrorKind is a member of the closed set platform failures are translated into.
type ErrorKind string

// Error kinds.
const (
	ErrorKindNotFound           ErrorKind = ErrorKind("not_found")
	ErrorKindBadCredentials     ErrorKind = ErrorKind("bad_credentials")
	ErrorKindServiceUnavailable ErrorKind = ErrorKind("service_unavailable")
	ErrorKindGeneric            ErrorKind = ErrorKind("platform_error")
	ErrorKindUnexpected         ErrorKind = ErrorKind("unexpected")
)

var (
	// ErrNotFound matches PlatformError values of kind ErrorKindNotFound.
	ErrNotFound             = errors.New(notFoundMessageConstant)
	// ErrBadCredentials matches PlatformError values of kind ErrorKindBadCredentials.
	ErrBadCredentials       = errors.New(badCredentialsMessageConstant)
	// ErrServiceUnavailable matches PlatformError values of kind ErrorKindServiceUnavailable.
	ErrServiceUnavailable   = errors.New(serviceUnavailableMessageConstant)
	// ErrGenericPlatform matches PlatformError values of kind ErrorKindGeneric.
	ErrGenericPlatform      = errors.New(genericPlatformErrorMessageConstant)
	// ErrUnexpectedPlatform matches PlatformError values of kind ErrorKindUnexpected.
	ErrUnexpectedPlatform   = errors.New(unexpectedPlatformErrorMessageConstant)
	// ErrValidation matches every ValidationError.
	ErrValidation           = errors.New(validationSentinelMessageConstant)
	// ErrUnsupportedOperation matches every UnsupportedOperationError.
	ErrUnsupportedOperation = errors.New(unsupportedSentinelMessageConstant)
)

var sentinelByKind = map[ErrorKind]error{
	ErrorKindNotFound:           ErrNotFound,
	ErrorKindBadCredentials:     ErrBadCredentials,
	ErrorKindServiceUnavailable: ErrServiceUnavailable,
	ErrorKindGeneric:            ErrGenericPlatform,
	ErrorKindUnexpected:         ErrUnexpectedPlatform,
}

// PlatformError is the only error type backends return for remote failures.
type PlatformError struct {
	Kind       ErrorKind
	Operation  Operation
	StatusCode int
	Message    string
	Cause      error
}

// Error renders the failure without credentials.
func (platformError *PlatformError) Error() string {
	description := sentinelByKind[platformError.Kind].Error()
	if len(platformError.Message) > 0 {
		description = description + platformErrorDetailSeparatorConstant + platformError.Message
	}
	if platformError.StatusCode > 0 {
		return fmt.Sprintf(platformErrorStatusTemplateConstant, platformError.Operation, description, platformError.StatusCode)
	}
	return fmt.Sprintf(platformErrorTemplateConstant, platformError.Operation, description)
}

// Unwrap exposes the backend-specific cause.
func (platformError *PlatformError) Unwrap() error {
	return platformError.Cause
}

// Is matches the sentinel of the error kind.
func (platformError *PlatformError) Is(target error) bool {
	return sentinelByKind[platformError.Kind] == target
}

// ClassifyStatus maps an HTTP status code to an error kind.
func ClassifyStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == http.StatusNotFound:
		return ErrorKindNotFound
	case statusCode == http.StatusUnauthorized:
		return ErrorKindBadCredentials
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusBadGateway,
		statusCode == http.StatusServiceUnavailable,
		statusCode == http.StatusGatewayTimeout:
		return ErrorKindServiceUnavailable
	case statusCode >= http.StatusBadRequest:
		return ErrorKindGeneric
	default:
		return ErrorKindUnexpected
	}
}

// TranslateStatus builds a PlatformError from an HTTP status code. A zero status
// code means no response was received and yields ErrorKindUnexpected.
func TranslateStatus(operation Operation, statusCode int, message string, cause error) *PlatformError {
	return NewPlatformError(ClassifyStatus(statusCode), operation, statusCode, message, cause)
}

// NewPlatformError builds a PlatformError of an explicit kind.
func NewPlatformError(kind ErrorKind, operation Operation, statusCode int, message string, cause error) *PlatformError {
	return &PlatformError{
		Kind:       kind,
		Operation:  operation,
		StatusCode: statusCode,
		Message:    credentials.Sanitize(strings.TrimSpace(message)),
		Cause:      cause,
	}
}

// ValidationError reports input rejected before any remote call.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

// Error describes the rejected value.
func (validationError ValidationError) Error() string {
	if len(validationError.Value) == 0 {
		return fmt.Sprintf(validationErrorWithoutValueConstant, validationError.Field, validationError.Message)
	}
	return fmt.Sprintf(validationErrorTemplateConstant, validationError.Field, validationError.Value, validationError.Message)
}

// Is matches ErrValidation.
func (validationError ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// UnsupportedOperationError reports a contract operation a backend does not implement.
type UnsupportedOperationError struct {
	Platform  string
	Operation Operation
}

// Error names the operation and platform.
func (unsupportedError UnsupportedOperationError) Error() string {
	return fmt.Sprintf(unsupportedOperationTemplateConstant, unsupportedError.Operation, unsupportedError.Platform)
}

// Is matches ErrUnsupportedOperation.
func (unsupportedError UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}

// NonContractMethodError reports a backend exposing an exported method outside the contract.
type NonContractMethodError struct {
	BackendType string
	Method      string
}

// Error names the offending method.
func (methodError NonContractMethodError) Error() string {
	return fmt.Sprintf(nonContractMethodTemplateConstant, methodError.BackendType, methodError.Method)
}

// SignatureMismatchError reports a contract operation declared with the wrong shape.
type SignatureMismatchError struct {
	BackendType string
	Method      string
	Actual      string
	Expected    string
}

// Error describes both signatures.
func (mismatchError SignatureMismatchError) Error() string {
	return fmt.Sprintf(signatureMismatchTemplateConstant, mismatchError.BackendType, mismatchError.Method, mismatchError.Actual, mismatchError.Expected)
}
