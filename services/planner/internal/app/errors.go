package app

import "errors"

var (
	ErrMessagesRequired = errors.New("messages array is required")
	ErrOwnerRequired    = errors.New("owner required")

	// ErrProjectNotFound is also returned for projects owned by someone else,
	// so ids cannot be probed.
	ErrProjectNotFound = errors.New("project not found")

	ErrFloorNotFound  = errors.New("floor not found")
	ErrAreaNotFound   = errors.New("public area not found")
	ErrDuplicateLevel = errors.New("a floor already exists on this level")
	ErrInvalidDesign  = errors.New("invalid design change")

	// ErrNotPublished means the change was saved but the pipeline was not told.
	ErrNotPublished = errors.New("design change saved but recalculation could not be requested")

	ErrArchiveUnavailable = errors.New("model archive not configured")
)
