package engine

import (
	"errors"
	"fmt"
)

// ErrIneligible is matched by every rejected submission.
var ErrIneligible = errors.New("intent rejected")

var (
	ErrSessionActive   = errors.New("a game is already running for this group")
	ErrSessionNotFound = errors.New("no game is running for this group")
	ErrAlreadyPaused   = errors.New("game is already paused")
	ErrNotPaused       = errors.New("game is not paused")
)

// Reason says why a submission was rejected.
type Reason int

const (
	NotEligible Reason = iota + 1
	WrongPhase
	AlreadyActed
	SessionPaused
	PowerConsumed
	InvalidTarget
)

var reasonMessages = map[Reason]string{
	NotEligible:   "you cannot do that",
	WrongPhase:    "that action is not open right now",
	AlreadyActed:  "you already acted",
	SessionPaused: "the game is paused",
	PowerConsumed: "your power is spent",
	InvalidTarget: "invalid target",
}

func (r Reason) String() string {
	if m, ok := reasonMessages[r]; ok {
		return m
	}
	return "rejected"
}

// IneligibleError is returned by the collector for any refused intent.
type IneligibleError struct {
	Reason Reason
	Detail string
}

func (e *IneligibleError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
	}
	return e.Reason.String()
}

func (e *IneligibleError) Is(target error) bool { return target == ErrIneligible }

func reject(r Reason, detail string) error {
	return &IneligibleError{Reason: r, Detail: detail}
}

// RejectionReason extracts the Reason from err, or 0 if err is not a rejection.
func RejectionReason(err error) Reason {
	var ie *IneligibleError
	if errors.As(err, &ie) {
		return ie.Reason
	}
	return 0
}

// ConfigurationError means the session was set up wrong. It ends the session.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}
