package patch

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncatedFile indicates that a file is shorter than the byte range
	// a descriptor needs.
	ErrTruncatedFile = errors.New("file is truncated")
	// ErrUnrecognizedContent indicates that the bytes at a descriptor's
	// offset match neither its original nor its patched bytes.
	ErrUnrecognizedContent = errors.New("unrecognized content")
	// ErrNoBackupFound indicates that a restore was requested for a file
	// without a backup.
	ErrNoBackupFound = errors.New("no backup found")
	// ErrIOFailure is matched by every error caused by the operating system.
	// The underlying error is also available with errors.As.
	ErrIOFailure = errors.New("I/O failure")
	// ErrLocked indicates that another operation holds the file.
	ErrLocked = errors.New("file is locked by another operation")
	// ErrInvalidDescriptor indicates a descriptor or registry that breaks
	// its invariants.
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)

// An ioError is an operating system error tagged with ErrIOFailure.
type ioError struct {
	err error
}

func (e *ioError) Error() string {
	return e.err.Error()
}

func (e *ioError) Unwrap() []error {
	return []error{ErrIOFailure, e.err}
}

// ioFailure tags an operating system error with ErrIOFailure. Nil stays nil.
func ioFailure(err error) error {
	if err == nil || errors.Is(err, ErrIOFailure) {
		return err
	}
	return &ioError{err}
}

// A wrappedError is an error wrapped with a location for context.
type wrappedError struct {
	location string
	inner    error
}

func (e *wrappedError) Error() string {
	return fmt.Sprintf("%s: %v", e.location, e.inner)
}

func (e *wrappedError) Unwrap() error {
	return e.inner
}

// wrapError returns an error wrapped with a location for context.
func wrapError(e error, loc string) error {
	if e == nil {
		return nil
	}
	if we, ok := e.(*wrappedError); ok {
		return &wrappedError{
			location: loc + ": " + we.location,
			inner:    we.inner,
		}
	}
	return &wrappedError{
		location: loc,
		inner:    e,
	}
}

func wrapErrorf(e error, f string, a ...interface{}) error {
	return wrapError(e, fmt.Sprintf(f, a...))
}

func wrapErrorDescriptor(e error, i int, d Descriptor) error {
	return wrapErrorf(e, "descriptor %d at 0x%x", i, d.Offset)
}
