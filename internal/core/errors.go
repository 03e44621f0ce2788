package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredential is returned when a client is built without an API key.
	ErrInvalidCredential = errors.New("invalid credential: api key is empty")
	// ErrProtocolViolation marks a response body that could not be decoded.
	ErrProtocolViolation = errors.New("malformed response from voice service")
	// ErrIOFailure marks a local file read or write failure.
	ErrIOFailure = errors.New("local file i/o failure")
)

// NetworkError reports a failed remote call. Status is zero when no
// HTTP response was received.
type NetworkError struct {
	Err     error
	Message string
	Status  int
}

func (e *NetworkError) Error() string {
	if e.Status == 0 {
		if e.Err != nil {
			return fmt.Sprintf("network failure: %v", e.Err)
		}

		return "network failure: " + e.Message
	}

	if e.Message == "" {
		return fmt.Sprintf("voice service returned status %d", e.Status)
	}

	return fmt.Sprintf("voice service returned status %d: %s", e.Status, e.Message)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Reason classifies a ValidationError.
type Reason string

// Validation reasons, in the order the request builder checks them.
const (
	ReasonEmptyText        Reason = "EmptyText"
	ReasonNoStyleSelected  Reason = "NoStyleSelected"
	ReasonUnknownVoice     Reason = "UnknownVoice"
	ReasonUnsupportedStyle Reason = "UnsupportedStyle"
)

var reasonMessages = map[Reason]string{
	ReasonEmptyText:        "please enter some text",
	ReasonNoStyleSelected:  "please select a style",
	ReasonUnknownVoice:     "voice not found",
	ReasonUnsupportedStyle: "style is not offered by the selected voice",
}

// ValidationError is returned when a synthesis request cannot be built.
type ValidationError struct {
	Reason Reason
}

func (e *ValidationError) Error() string {
	msg, ok := reasonMessages[e.Reason]
	if !ok {
		msg = string(e.Reason)
	}

	return "validation failed: " + msg
}

// Is matches any ValidationError when the target has no reason, and
// otherwise only one with the same reason.
func (e *ValidationError) Is(target error) bool {
	var other *ValidationError
	if !errors.As(target, &other) {
		return false
	}

	return other.Reason == "" || other.Reason == e.Reason
}

// ReasonOf returns the validation reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Reason, true
	}

	return "", false
}
