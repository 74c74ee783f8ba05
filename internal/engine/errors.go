package engine

import (
	"errors"

	"github.com/l1jgo/entitysync/internal/entity"
)

var (
	// ErrNotFound: the (id, type) pair or data key does not exist.
	ErrNotFound = entity.ErrNotFound
	// ErrInvalidArgument: malformed parameters, rejected before any mutation.
	ErrInvalidArgument = entity.ErrInvalidArgument
	// ErrUnavailable is returned by a Deliverer that cannot accept a batch
	// right now. The worker retries with backoff instead of dropping it.
	ErrUnavailable = errors.New("network layer unavailable")
	// ErrViewerGone is returned by a Deliverer when the viewer has no live
	// connection. The batch is dropped along with the viewer's sync state.
	ErrViewerGone = errors.New("viewer not connected")
	// ErrStopped: the engine is shutting down or stopped.
	ErrStopped = errors.New("engine stopped")
)
