package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"evoloop/domain"
)

// wrapDBErr classifies a database failure. Timeouts, cancelled contexts and
// dead connections surface as domain.ErrStoreUnavailable so callers can tell
// transient infrastructure trouble from a missing row.
func wrapDBErr(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
