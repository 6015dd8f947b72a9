// Package route implements the per-(route,worker-index) loop:
// repeatedly acquire two Connections, relay them, and recover from
// failures per a per-error-kind backoff policy.
package route

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/op/go-logging"

	"veloxid/banlist"
	"veloxid/endpoint"
	"veloxid/tunnel"
	"veloxid/wire"
)

// Worker runs one route's acquire/relay/reconnect loop forever until its
// context is cancelled.
type Worker struct {
	RouteName string
	Index     int
	A, B      *endpoint.Binding
	Bans      *banlist.List
	Log       *logging.Logger
}

// Run blocks until ctx is cancelled. Every error it encounters is local
// to one connection attempt; Run itself only returns when ctx is done.
func (w *Worker) Run(ctx context.Context) {
	tag := fmt.Sprintf("%s/%d", w.RouteName, w.Index)
	for {
		if ctx.Err() != nil {
			return
		}

		a, err := w.A.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.handle(ctx, tag, err, nil)
			continue
		}

		b, err := w.B.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = a.Close()
				return
			}
			w.handle(ctx, tag, err, a)
			continue
		}

		w.Log.Infof("%s: relaying", tag)
		// tunnel.Relay closes both connections on every return path,
		// success or error, so there is nothing left to close here.
		if err := tunnel.Relay(ctx, a, b); err != nil {
			w.Log.Warningf("%s: relay ended: %v", tag, err)
		}
	}
}

// handle implements the per-error-kind recovery policy. prev, if
// non-nil, is a Connection obtained before the failure: if the second
// endpoint in a pair fails to acquire, the first one must be closed
// before any backoff begins.
func (w *Worker) handle(ctx context.Context, tag string, err error, prev tunnel.Connection) {
	if prev != nil {
		_ = prev.Close()
	}

	switch {
	case errors.Is(err, wire.ErrConnectionRefused):
		w.Log.Warningf("%s: connection refused: %v", tag, err)
		sleep(ctx, 5*time.Second)

	case errors.Is(err, wire.ErrSecretRejected):
		w.Log.Warningf("%s: secret rejected by peer", tag)
		sleep(ctx, 30*time.Second)

	case errors.Is(err, wire.ErrNonceEarlyEOF):
		w.Log.Warningf("%s: nonce read hit EOF early (possible remote ban or port close)", tag)
		sleep(ctx, 15*time.Second)

	case isTimeoutWithIP(err):
		var te *wire.TimeoutError
		errors.As(err, &te)
		w.Log.Noticef("%s: handshake timeout from %s, banning", tag, te.IP)
		w.Bans.Insert(te.IP)

	case isSecretMismatch(err):
		var sm *wire.SecretMismatchError
		errors.As(err, &sm)
		w.Log.Noticef("%s: secret mismatch from %s, banning", tag, sm.IP)
		w.Bans.Insert(sm.IP)

	case errors.Is(err, wire.ErrConnAttemptFromBannedIP):
		// drop silently, retry immediately — no log spam for routine
		// repeat offenders.

	default:
		w.Log.Warningf("%s: %v", tag, err)
	}
}

func isTimeoutWithIP(err error) bool {
	var te *wire.TimeoutError
	return errors.As(err, &te)
}

func isSecretMismatch(err error) bool {
	var sm *wire.SecretMismatchError
	return errors.As(err, &sm)
}

// sleep waits for d or ctx cancellation, whichever comes first, so a
// shutdown signal interrupts backoff instead of delaying it.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
