package update

import (
	"errors"
	"fmt"
)

// Fetch failure kinds. All of them are recoverable: the next scheduled check
// simply tries again.
var (
	ErrHostUnresolvable = errors.New("version service host cannot be resolved")
	ErrProtocolDrift    = errors.New("latest version not found in response, has the version API changed?")
	ErrTimeout          = errors.New("version check timed out")
)

// RemoteError is returned when the version service answers with a non-success
// status. Body holds the error response text.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("version service returned status %d", e.StatusCode)
	}
	return e.Body
}
