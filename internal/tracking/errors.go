package tracking

import (
	"errors"

	"backend-runtracker/internal/location"
)

var (
	// ErrPermissionDenied is the location package's error so callers can test
	// for either.
	ErrPermissionDenied = location.ErrPermissionDenied
	ErrNotRecording     = errors.New("run session is not recording")
	ErrNotReset         = errors.New("run session must be reset before starting again")
	ErrSessionClosed    = errors.New("run session closed")
)
