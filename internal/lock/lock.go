// Package lock provides keyed mutual exclusion for trigger processing.
package lock

import (
	"context"
	"errors"
)

// ErrLeaseLost is the cancellation cause of a held lock's context once the
// lock can no longer be guaranteed.
var ErrLeaseLost = errors.New("lock lease lost")

// Locker serialises work on a key. Lock blocks until the key is free or ctx
// ends. The returned context is cancelled when the lock is released or lost,
// and work done under the lock should use it. The returned func releases the
// lock and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (context.Context, func(), error)
	Close() error
}
