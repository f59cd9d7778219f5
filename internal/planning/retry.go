package planning

import (
	"context"

	"github.com/colthorp/planning-cli-go/internal/core"
)

// MaxAttempts bounds pipeline attempts per request.
const MaxAttempts = 2

// Acquirer runs one acquisition attempt.
type Acquirer interface {
	Acquire(ctx context.Context, key string, explicit bool) error
}

// Invalidator drops the cached session.
type Invalidator interface {
	Invalidate()
}

// RunWithRetry runs acq once and, only if it fails with SessionRejected,
// invalidates the session and runs it one more time. Every other failure,
// and a second failure of any kind, is returned unchanged.
func RunWithRetry(ctx context.Context, acq Acquirer, inv Invalidator, key string, explicit bool) error {
	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		err = acq.Acquire(ctx, key, explicit)
		if err == nil {
			return nil
		}
		if attempt == MaxAttempts || !core.IsKind(err, core.KindSessionRejected) {
			return err
		}
		inv.Invalidate()
	}
	return err
}
