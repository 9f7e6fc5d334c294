package services

import "errors"

// Service errors
var (
	// Input errors
	ErrInvalidInput = errors.New("invalid input")
	ErrUnknownKind  = errors.New("unknown analysis kind")

	// Task errors
	ErrTaskBusy       = errors.New("analysis is already running for this subject")
	ErrNothingToRetry = errors.New("no retry is pending")
)
