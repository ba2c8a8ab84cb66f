// Package apperrors defines the tagged errors returned to API clients.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable tag serialized as "_tag" in error bodies
type Kind string

const (
	KindRequest            Kind = "RequestError"
	KindEmptyBody          Kind = "EmptyBody"
	KindSchemaViolation    Kind = "SchemaViolation"
	KindDuplicateIDInBatch Kind = "DuplicateIdInBatch"
	KindMissingParameter   Kind = "MissingParameter"
	KindNotFound           Kind = "NotFound"
	KindStorage            Kind = "StorageError"
	KindInvalidPhoneNumber Kind = "InvalidPhoneNumber"
	KindUnauthorized       Kind = "Unauthorized"
)

// Storage error subtypes
const (
	StorageUnexpected     = "unexpected"
	StorageRecordNotFound = "record-not-found"
)

// Error is a client-facing failure. Cause is logged, never serialized.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Fields  map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Body renders the structured response body
func (e *Error) Body() map[string]any {
	body := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		body[k] = v
	}
	body["_tag"] = string(e.Kind)
	body["message"] = e.Message
	return body
}

func Request(message string) *Error {
	return &Error{Kind: KindRequest, Message: message, Status: http.StatusBadRequest}
}

func EmptyBody() *Error {
	return &Error{Kind: KindEmptyBody, Message: "Empty request body is invalid.", Status: http.StatusBadRequest}
}

func SchemaViolation(message string, cause error) *Error {
	return &Error{Kind: KindSchemaViolation, Message: message, Status: http.StatusBadRequest, Cause: cause}
}

// DuplicateIDInBatch lists every externalId that occurs more than once
func DuplicateIDInBatch(ids []string) *Error {
	return &Error{
		Kind:    KindDuplicateIDInBatch,
		Message: "externalId values must be unique within a batch",
		Status:  http.StatusBadRequest,
		Fields:  map[string]any{"duplicateIds": ids},
	}
}

// JobExists rejects a submission whose job id is already in the tenant's ledger
func JobExists(jobID string, cause error) *Error {
	return &Error{
		Kind:    KindRequest,
		Message: fmt.Sprintf("A job with id '%s' already exists.", jobID),
		Status:  http.StatusConflict,
		Fields:  map[string]any{"jobId": jobID},
		Cause:   cause,
	}
}

func MissingParameter(name string) *Error {
	return &Error{
		Kind:    KindMissingParameter,
		Message: fmt.Sprintf("Missing required query parameter '%s'.", name),
		Status:  http.StatusBadRequest,
		Fields:  map[string]any{"parameter": name},
	}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Status: http.StatusNotFound}
}

// Storage wraps a storage-layer failure with its subtype
func Storage(typ string, message string, cause error) *Error {
	status := http.StatusInternalServerError
	if typ == StorageRecordNotFound {
		status = http.StatusNotFound
	}
	return &Error{
		Kind:    KindStorage,
		Message: message,
		Status:  status,
		Fields:  map[string]any{"type": typ},
		Cause:   cause,
	}
}

// InvalidPhoneNumber is recorded per record and never fails a request
func InvalidPhoneNumber(externalID string) *Error {
	return &Error{
		Kind:    KindInvalidPhoneNumber,
		Message: "phone number is not a valid E.164 number",
		Status:  http.StatusBadRequest,
		Fields:  map[string]any{"externalId": externalID},
	}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message, Status: http.StatusUnauthorized}
}

// As extracts an *Error from the chain
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsStorageType reports whether err is a StorageError of the given subtype
func IsStorageType(err error, typ string) bool {
	appErr, ok := As(err)
	if !ok || appErr.Kind != KindStorage {
		return false
	}
	return appErr.Fields["type"] == typ
}
