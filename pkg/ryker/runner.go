package ryker

import (
	"context"
	"errors"

	"github.com/rustyonions/kernel/pkg/kerrors"
)

// Handler processes one dequeued message. An error is treated as a
// handler-local failure; it does not close the mailbox.
type Handler func(ctx context.Context, msg any) error

// ErrorHandler is notified of handler failures for logging/metrics;
// implementations must not block.
type ErrorHandler func(actor string, msg any, err error)

// Run drains m until ctx is cancelled or m is closed, invoking handle for
// each message. At most BatchMessages are processed before a cooperative
// yield back to the scheduler, bounding how long one mailbox can starve
// siblings sharing a worker.
func Run(ctx context.Context, m *Mailbox, handle Handler, onErr ErrorHandler) error {
	for {
		for i := 0; i < m.cfg.BatchMessages; i++ {
			msg, err := m.Recv(ctx)
			if err != nil {
				if errors.Is(err, kerrors.ErrClosed) || (ctx.Err() != nil) {
					return nil
				}
				if k, ok := kerrors.KindOf(err); ok && k == kerrors.Closed {
					return nil
				}
				continue
			}
			if herr := handle(ctx, msg); herr != nil && onErr != nil {
				onErr(m.cfg.Actor, msg, herr)
			}
		}
		yield()
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}
