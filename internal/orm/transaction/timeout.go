package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout runs attempt with a context that expires after timeout. An
// attempt cut short by the deadline reports ErrTransactionTimeout.
func (m *Manager) WithTimeout(ctx context.Context, timeout time.Duration, attempt func(ctx context.Context) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := attempt(timeoutCtx)
	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: transaction exceeded %v: %v", ErrTransactionTimeout, timeout, err)
		}
		return err
	}
	return nil
}
