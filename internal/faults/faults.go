// Package faults defines the closed set of machine error codes KAIROS
// returns on its wire surfaces and the single error type that carries them.
package faults

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInvalidURI         = "INVALID_URI"
	CodeNotFound           = "NOT_FOUND"
	CodeDuplicateChain     = "DUPLICATE_CHAIN"
	CodeSimilarMemory      = "SIMILAR_MEMORY_FOUND"
	CodeNonceMismatch      = "NONCE_MISMATCH"
	CodeHashMismatch       = "HASH_MISMATCH"
	CodeProofInvalid       = "PROOF_INVALID"
	CodeMaxRetriesExceeded = "MAX_RETRIES_EXCEEDED"
	CodeUserDeclined       = "USER_DECLINED"
	CodeCapabilityRequired = "CAPABILITY_REQUIRED"
	CodeElicitationFailed  = "ELICITATION_FAILED"
	CodeStoreFailed        = "STORE_FAILED"
	CodeEmbeddingFailed    = "EMBEDDING_FAILED"
	CodeKVFailed           = "KV_FAILED"
	CodeInternal           = "INTERNAL"
)

// Error is the single error shape crossing package boundaries. Details is
// optional structured context that handlers serialize verbatim.
type Error struct {
	Code    string
	Message string
	Details map[string]any

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an error with the given code and formatted message.
func New(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a coded error.
func Wrap(cause error, code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithDetails returns e with the details map set.
func (e *Error) WithDetails(d map[string]any) *Error {
	e.Details = d
	return e
}

// CodeOf extracts the machine code, defaulting to INTERNAL for plain errors.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeInternal
}

// DetailsOf extracts structured details when present.
func DetailsOf(err error) map[string]any {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Details
	}
	return nil
}

// MessageOf extracts the human message without the code prefix.
func MessageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

// HTTPStatus maps a code to its transport status per the propagation rules:
// input and conflict errors are 4xx, upstream and internal are 5xx. Proof
// errors are 200 at the transport level because the state machine answers
// them with a structured must_obey envelope, not an HTTP failure.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidInput, CodeInvalidURI:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateChain, CodeSimilarMemory:
		return http.StatusConflict
	case CodeNonceMismatch, CodeHashMismatch, CodeProofInvalid,
		CodeMaxRetriesExceeded, CodeUserDeclined, CodeCapabilityRequired,
		CodeElicitationFailed:
		return http.StatusOK
	case CodeStoreFailed, CodeEmbeddingFailed, CodeKVFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsCode reports whether err carries the given machine code.
func IsCode(err error, code string) bool { return CodeOf(err) == code }
