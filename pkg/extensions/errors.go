package extensions

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrInvalidArgument indicates a malformed or missing extension id list or action
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCourseNotFound indicates the course being modified does not exist
	ErrCourseNotFound = errors.New("course not found")

	// ErrConfigNotFound indicates the course has no config document to hold its registry
	ErrConfigNotFound = errors.New("course config not found")

	// ErrDescriptorNotFound indicates an extension type could not be found
	ErrDescriptorNotFound = errors.New("extension type not found")

	// ErrInvalidContentType indicates content was created with an unsupported type
	ErrInvalidContentType = errors.New("invalid content type")

	// ErrStoreFailure indicates the persistence collaborator failed
	ErrStoreFailure = errors.New("store failure")

	// ErrDocumentNotFound is returned by stores when an update matches nothing
	ErrDocumentNotFound = errors.New("document not found")

	// ErrObjectNotFound is returned by blob stores for a missing key
	ErrObjectNotFound = errors.New("object not found")
)

// ApplyError reports where an enable/disable run stopped.
type ApplyError struct {
	CourseID   string
	Action     Action
	Extension  string
	Location   string
	DocumentID string
	Err        error
}

func (e *ApplyError) Error() string {
	msg := fmt.Sprintf("%s extensions for course %s", e.Action, e.CourseID)
	if e.Extension != "" {
		msg += fmt.Sprintf(" (extension %s", e.Extension)
		if e.Location != "" {
			msg += fmt.Sprintf(", location %s", e.Location)
		}
		if e.DocumentID != "" {
			msg += fmt.Sprintf(", document %s", e.DocumentID)
		}
		msg += ")"
	}
	return fmt.Sprintf("%s failed: %v", msg, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// StoreError represents a failed read or write against the document store
type StoreError struct {
	Op      string
	DocType string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store operation %s failed for %s: %v", e.Op, e.DocType, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrStoreFailure) match any StoreError.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreFailure
}

func storeError(op, docType string, err error) error {
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, DocType: docType, Err: err}
}

// IsDomainError reports whether err is caused by the request rather than the infrastructure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrCourseNotFound) ||
		errors.Is(err, ErrConfigNotFound) ||
		errors.Is(err, ErrDescriptorNotFound) ||
		errors.Is(err, ErrInvalidContentType)
}
