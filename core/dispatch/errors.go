package dispatch

import "errors"

var (
	// ErrUnauthorized is returned when the operator token is missing, invalid,
	// expired, or not in the operator namespace.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTargetNotFound is returned when the vehicle is not connected.
	ErrTargetNotFound = errors.New("target vehicle not connected")
	// ErrCommandNotFound is returned when no connected vehicle holds the command.
	ErrCommandNotFound = errors.New("command not found")
	// ErrInvalidCommand is returned when a dispatch carries no command type.
	ErrInvalidCommand = errors.New("command type is required")
)
