package models

import "errors"

var (
	ErrEmptySymbol        = errors.New("observation symbol is empty")
	ErrNotFound           = errors.New("not found")
	ErrPipelineStopped    = errors.New("ingest pipeline stopped")
	ErrThrottled          = errors.New("observation rate limit exceeded")
	ErrInvalidObservation = errors.New("invalid observation")
)
