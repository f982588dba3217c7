package controlplane

import "errors"

// Sentinel errors for control plane operations.
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidJob        = errors.New("job name and command are required")
	ErrInvalidStatus     = errors.New("unknown job status")
	ErrCommandNotAllowed = errors.New("command not allowed by connector")
)
