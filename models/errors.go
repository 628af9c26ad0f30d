// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "errors"

// Sentinel errors for rejected operations. Callers classify with
// errors.Is; every one of these means "rejected, no state change".
var (
	// ErrNotAuthorized: the acting user may not perform this operation
	// (non-creator closing a poll, non-super-admin managing admins).
	ErrNotAuthorized = errors.New("not authorized")

	// ErrValidation: input rejected before any persistence.
	ErrValidation = errors.New("validation failed")

	// ErrCapacityFull: a "going" RSVP would exceed the event capacity.
	ErrCapacityFull = errors.New("event is at capacity")

	// ErrPollClosed: vote or close attempted on an already-closed poll.
	ErrPollClosed = errors.New("poll is closed")

	// ErrEventClosed: RSVP attempted on a closed event.
	ErrEventClosed = errors.New("event is closed")

	ErrNotFound = errors.New("not found")
)
