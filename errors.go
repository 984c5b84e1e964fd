package rwaccess

import (
	"fmt"
	"time"
)

// TimeoutError is delivered via [Downstream.Error] when a request waited
// longer than its configured timeout for access to be granted. The wrapped
// operation is never started.
type TimeoutError struct {
	// Timeout is the configured wait timeout of the request.
	Timeout time.Duration

	// Write indicates the request was for write (exclusive) access.
	Write bool
}

func (x *TimeoutError) Error() string {
	kind := `read`
	if x.Write {
		kind = `write`
	}
	return fmt.Sprintf(`rwaccess: could not acquire %s access within %s`, kind, x.Timeout)
}
