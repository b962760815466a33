// Package errors defines stable error codes and the structured error type
// shared by every locus subsystem.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ParseFailure indicates a single file could not be parsed
	ParseFailure ErrorCode = "PARSE_FAILURE"
	// RelationshipIntegrity indicates a relationship referenced a missing entity
	RelationshipIntegrity ErrorCode = "RELATIONSHIP_INTEGRITY"
	// ResolutionFailure indicates a cross-file reference could not be resolved
	ResolutionFailure ErrorCode = "RESOLUTION_FAILURE"
	// IndexNotBuilt indicates a query arrived before the index was built
	IndexNotBuilt ErrorCode = "INDEX_NOT_BUILT"
	// UnsupportedMode indicates an unknown search mode or relation kind
	UnsupportedMode ErrorCode = "UNSUPPORTED_MODE"
	// EntityNotFound indicates the requested entity id does not exist
	EntityNotFound ErrorCode = "ENTITY_NOT_FOUND"
	// SnapshotCorrupt indicates a persisted snapshot failed to load
	SnapshotCorrupt ErrorCode = "SNAPSHOT_CORRUPT"
	// SnapshotMissing indicates no snapshot exists for the repository yet
	SnapshotMissing ErrorCode = "SNAPSHOT_MISSING"
	// ConfigInvalid indicates configuration failed validation
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// BuildFailure indicates the graph build aborted entirely
	BuildFailure ErrorCode = "BUILD_FAILURE"
	// LockHeld indicates another process holds the index lock
	LockHeld ErrorCode = "LOCK_HELD"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a locus error with code, message, and optional cause.
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new Error.
func New(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf extracts the ErrorCode from err, walking the wrap chain.
// Returns InternalError for non-locus errors.
func CodeOf(err error) ErrorCode {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return InternalError
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}

// NewParseFailure wraps a per-file parse error.
func NewParseFailure(path string, cause error) *Error {
	return New(ParseFailure, fmt.Sprintf("failed to parse %s", path), cause)
}

// NewRelationshipIntegrity reports an edge with a missing endpoint.
func NewRelationshipIntegrity(relID, missingEntity string) *Error {
	return New(RelationshipIntegrity,
		fmt.Sprintf("relationship %s references missing entity %s", relID, missingEntity), nil)
}

// NewIndexNotBuilt reports a query against an unbuilt index.
// This is a programming error on the caller's side and must surface loudly.
func NewIndexNotBuilt(index string) *Error {
	return New(IndexNotBuilt, fmt.Sprintf("%s index queried before build", index), nil)
}

// NewUnsupportedMode reports an unknown search mode or relation kind.
func NewUnsupportedMode(mode string) *Error {
	return New(UnsupportedMode, fmt.Sprintf("unsupported mode %q", mode), nil)
}

// NewEntityNotFound reports a lookup for an unknown entity id.
func NewEntityNotFound(id string) *Error {
	return New(EntityNotFound, fmt.Sprintf("entity %s not found", id), nil)
}

// NewSnapshotCorrupt wraps a snapshot load failure.
func NewSnapshotCorrupt(path string, cause error) *Error {
	return New(SnapshotCorrupt, fmt.Sprintf("snapshot at %s is unreadable", path), cause)
}

// NewSnapshotMissing reports that no snapshot has been built yet.
func NewSnapshotMissing(path string) *Error {
	return New(SnapshotMissing, fmt.Sprintf("no snapshot at %s", path), nil)
}

// NewLockHeld reports that another process holds the index lock. A pid of
// zero means the holder could not be identified.
func NewLockHeld(path string, pid int) *Error {
	if pid > 0 {
		return New(LockHeld, fmt.Sprintf("index lock %s held by pid %d", path, pid), nil)
	}
	return New(LockHeld, fmt.Sprintf("index lock %s held by another process", path), nil)
}

// Remediation maps error codes to short operator hints shown by the CLI.
var Remediation = map[ErrorCode]string{
	IndexNotBuilt:   "run 'locus index' first",
	SnapshotMissing: "run 'locus index' to build the initial snapshot",
	SnapshotCorrupt: "run 'locus index --force' to rebuild the snapshot",
	LockHeld:        "another locus command is indexing this repository; retry when it finishes",
	ConfigInvalid:   "check .locus/config.json or run 'locus config list'",
}

// RemediationFor returns the operator hint for an error code, if any.
func RemediationFor(code ErrorCode) string {
	return Remediation[code]
}
