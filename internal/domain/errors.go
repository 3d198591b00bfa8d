package domain

import "errors"

var (
	// ErrInvalidField is returned when a field write is missing a required
	// attribute or carries an out-of-range value. The store is left unchanged.
	ErrInvalidField = errors.New("invalid field")

	// ErrInvalidScan is returned for a scan request without an image.
	ErrInvalidScan = errors.New("invalid scan request")

	// ErrNoField is returned by operations that need a registered field.
	ErrNoField = errors.New("no field registered")

	// ErrQuotaExceeded means a scan was already accepted for today's civil date.
	ErrQuotaExceeded = errors.New("daily scan quota exceeded")

	// ErrClassifierUnavailable marks a transient delivery failure: the remote
	// classifier could not be reached or answered with a server error.
	ErrClassifierUnavailable = errors.New("scan classifier unavailable")

	// ErrSubmissionDropped marks a queued submission that exhausted its
	// delivery attempts.
	ErrSubmissionDropped = errors.New("scan submission dropped")

	// ErrDrainInProgress is returned when a queue drain is requested while
	// another one is still running.
	ErrDrainInProgress = errors.New("queue drain already in progress")

	// ErrInvalidLocation is returned for an unusable place label, search text
	// or coordinate pair.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrPlaceNotFound is returned when geocoding yields no match.
	ErrPlaceNotFound = errors.New("place not found")
)
