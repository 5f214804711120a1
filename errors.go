package ccng

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("ccng: no store configured")
	ErrStoreClosed     = errors.New("ccng: store closed")
	ErrMigrationFailed = errors.New("ccng: migration failed")

	// Not found errors.
	ErrOperationNotFound = errors.New("ccng: operation not found")
	ErrBindingNotFound   = errors.New("ccng: binding not found")

	// Conflict errors.
	ErrOperationAlreadyExists = errors.New("ccng: operation already exists")
	ErrBindingAlreadyExists   = errors.New("ccng: binding already exists")

	// State errors.
	ErrInvalidState      = errors.New("ccng: invalid state transition")
	ErrOperationTerminal = errors.New("ccng: operation already terminal")
)
