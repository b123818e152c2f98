package ledger

import (
	"errors"

	"studyhub/internal/services"
)

var (
	// ErrNotFound indicates the job does not exist.
	ErrNotFound = services.ErrNotFound
	// ErrTerminal indicates the job already reached a terminal status.
	ErrTerminal = errors.New("job is in a terminal status")
	// ErrActive indicates the job has not reached a terminal status yet.
	ErrActive = errors.New("job is still pending or running")
	// ErrInvalidStage indicates a stage result for a stage the job never requested.
	ErrInvalidStage = errors.New("stage was not requested for this job")
	// ErrInvalidTransition indicates a status change the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
