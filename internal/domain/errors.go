package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrEncoding      = fmt.Errorf("value cannot be canonically encoded")
	ErrAuditWrite    = fmt.Errorf("audit record write failed")
	ErrStore         = fmt.Errorf("record store operation failed")
	ErrConfigLoad    = fmt.Errorf("failed to load configuration")
	ErrTaskInvalid   = fmt.Errorf("task validation failed")
	ErrTaskExpired   = fmt.Errorf("task TTL expired")
	ErrTaskSignature = fmt.Errorf("task signature verification failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "ChainLogger.LogEvent")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeEncoding      ErrorCode = "ENCODING"
	CodeAuditWrite    ErrorCode = "AUDIT_WRITE"
	CodeStore         ErrorCode = "STORE"
	CodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	CodeTaskInvalid   ErrorCode = "TASK_INVALID"
	CodeTaskExpired   ErrorCode = "TASK_EXPIRED"
	CodeTaskSignature ErrorCode = "TASK_SIGNATURE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:      CodeNotFound,
	ErrInvalidInput:  CodeInvalidInput,
	ErrEncoding:      CodeEncoding,
	ErrAuditWrite:    CodeAuditWrite,
	ErrStore:         CodeStore,
	ErrConfigLoad:    CodeConfigLoad,
	ErrTaskInvalid:   CodeTaskInvalid,
	ErrTaskExpired:   CodeTaskExpired,
	ErrTaskSignature: CodeTaskSignature,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
