// Package generator renders the composite try-on image. Backends are
// interchangeable behind Generator; failures are classified so the
// orchestrator can decide between retrying, surfacing to the user, or failing
// the session. Output is never cached: identical inputs legitimately yield
// different images.
package generator

import (
	"context"
	"errors"
	"fmt"
)

// Generator produces a composite image from a subject photo, a garment photo
// and an instruction.
type Generator interface {
	Generate(ctx context.Context, subjectPath, garmentPath, prompt string) ([]byte, error)
}

// FailureKind classifies generation errors.
type FailureKind int

const (
	// KindTransient covers network errors, timeouts and 5xx responses.
	// Retryable with the same prompt.
	KindTransient FailureKind = iota
	// KindBlocked is a safety/policy refusal. Not retryable with the same
	// prompt; Message is shown to the user.
	KindBlocked
	// KindMalformed is a successful call that returned no image data.
	KindMalformed
)

// Error is a classified generation failure.
type Error struct {
	Kind    FailureKind
	Message string // user-facing for KindBlocked
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generate: %s: %v", e.Message, e.Err)
	}
	return "generate: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind FailureKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// IsBlocked reports whether err is a safety refusal.
func IsBlocked(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindBlocked
}

// IsTransient reports whether err is worth retrying. Unclassified errors
// (including context deadlines) count as transient.
func IsTransient(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == KindTransient
	}
	return true
}

// IsMalformed reports whether the backend answered without an image.
func IsMalformed(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindMalformed
}

// UserMessage extracts the user-facing explanation of a blocked generation.
func UserMessage(err error) string {
	var ge *Error
	if errors.As(err, &ge) && ge.Message != "" {
		return ge.Message
	}
	return "Image generation failed. Please try a different photo."
}
