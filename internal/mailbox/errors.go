package mailbox

import (
	"errors"
	"fmt"
)

// ConnectionError indicates that a mailbox session could not be
// opened: bad credentials, network or TLS failure, or a timeout. It
// is retried only at the next scheduled scan.
type ConnectionError struct {
	Account string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mailbox connection failed for %s: %v", e.Account, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err (or any error in its chain)
// is a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
