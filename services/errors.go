package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrorKind classifies a failure so callers can tell "you can't do this
// because X" apart from "something went wrong, try again".
type ErrorKind string

const (
	KindValidation  ErrorKind = "VALIDATION"
	KindNotFound    ErrorKind = "NOT_FOUND"
	KindPolicy      ErrorKind = "POLICY"
	KindConflict    ErrorKind = "CONFLICT"
	KindPersistence ErrorKind = "PERSISTENCE"
)

// GenericFailureMessage is shown for every persistence failure
const GenericFailureMessage = "일시적인 오류가 발생했습니다. 잠시 후 다시 시도해 주세요."

// ServiceError is the only error type the order engine returns to callers.
// Message is user facing; Err keeps the internal cause for logs.
type ServiceError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// withCause attaches an internal cause for logs
func (e *ServiceError) withCause(err error) *ServiceError {
	e.Err = err
	return e
}

func validationError(code, message string) *ServiceError {
	return &ServiceError{Kind: KindValidation, Code: code, Message: message}
}

func notFoundError(code, message string) *ServiceError {
	return &ServiceError{Kind: KindNotFound, Code: code, Message: message}
}

func policyError(code, message string) *ServiceError {
	return &ServiceError{Kind: KindPolicy, Code: code, Message: message}
}

func conflictError(code string, err error) *ServiceError {
	return &ServiceError{Kind: KindConflict, Code: code, Message: "다른 요청과 충돌했습니다. 다시 시도해 주세요.", Err: err}
}

func persistenceError(err error) *ServiceError {
	return &ServiceError{Kind: KindPersistence, Code: "PERSISTENCE_ERROR", Message: GenericFailureMessage, Err: err}
}

// KindOf returns the kind of err, treating unknown errors as persistence failures
func KindOf(err error) ErrorKind {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindPersistence
}

// CodeOf returns the error code of err, or "" for foreign errors
func CodeOf(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return ""
}

// IsConflict reports whether err is a retryable concurrency conflict
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// asServiceError passes service errors through and wraps everything else
// as a persistence failure.
func asServiceError(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	return persistenceError(err)
}

// isDuplicateKey detects unique violations on both postgres and sqlite
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "duplicate") ||
		strings.Contains(errMsg, "unique constraint")
}
