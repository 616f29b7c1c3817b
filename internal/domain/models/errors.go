package models

import "errors"

// Store errors shared by every persistence implementation.
var (
	ErrBatchNotFound  = errors.New("waste batch not found")
	ErrBatchExists    = errors.New("waste batch already exists")
	ErrMatchNotFound  = errors.New("ai match not found")
	ErrDuplicateMatch = errors.New("ai match already recorded for this generation")
	// ErrStatusConflict means the batch left pending (or moved to another generation)
	// before the conditional transition ran.
	ErrStatusConflict = errors.New("waste batch is no longer pending for this generation")
)
