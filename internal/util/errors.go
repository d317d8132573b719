package util

import "errors"

var (
	ErrNoInstructionLog    = errors.New("no experiment instructions recorded yet")
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidSession      = errors.New("invalid session token")
	ErrUnsupportedDriver   = errors.New("unsupported database driver")
	ErrUnsupportedArchive  = errors.New("unsupported archive type")
	ErrMissingParticipant  = errors.New("participant id is empty")
	ErrArchiveNotAvailable = errors.New("archive provider not configured")
)
