package tunnel

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"veloxid/cipher"
	"veloxid/wire"
)

// Relay dispatches on the concrete types of a and b and runs the
// matching shape: Direct<->Direct, Tunnel<->Direct, or Tunnel<->Tunnel.
// It returns when either direction reaches a clean EOF, or with the I/O
// error of whichever direction failed first.
func Relay(ctx context.Context, a, b Connection) error {
	switch a := a.(type) {
	case Direct:
		switch b := b.(type) {
		case Direct:
			return Proxy(ctx, a, b)
		case Tunnel:
			return Run(ctx, b, a)
		}
	case Tunnel:
		switch b := b.(type) {
		case Direct:
			return Run(ctx, a, b)
		case Tunnel:
			return Join(ctx, a, b)
		}
	}
	return fmt.Errorf("tunnel: unsupported connection pair %T/%T", a, b)
}

// Proxy is the Direct<->Direct shape: a plain byte copy in both directions.
func Proxy(ctx context.Context, a, b Direct) error {
	return runPair(ctx,
		[]closer{a, b},
		func() error { return readWrite(a.Conn, b.Conn, nil) },
		func() error { return readWrite(b.Conn, a.Conn, nil) },
	)
}

// Run is the Tunnel<->Direct shape: decrypt tunnel->direct and encrypt
// direct->tunnel, both using the tunnel's own keystream. Two independent
// cipher instances are created from the same (secret, nonce) so each
// direction advances its own counter.
func Run(ctx context.Context, t Tunnel, d Direct) error {
	closers := []closer{t, d}
	owned := false
	defer func() {
		if !owned {
			closeAll(closers)
		}
	}()

	if t.Role == Inbound {
		if err := signalReady(t); err != nil {
			return err
		}
	}

	tunnelToTarget, err := cipher.New(t.Secret, t.Nonce)
	if err != nil {
		return err
	}
	targetToTunnel, err := cipher.New(t.Secret, t.Nonce)
	if err != nil {
		return err
	}

	owned = true
	return runPair(ctx,
		closers,
		func() error { return readWrite(t.Conn, d.Conn, []*cipher.Context{tunnelToTarget}) },
		func() error { return readWrite(d.Conn, t.Conn, []*cipher.Context{targetToTunnel}) },
	)
}

// Join is the Tunnel<->Tunnel shape: a byte traveling A->B is decrypted
// with A's keystream and re-encrypted with B's keystream before
// leaving, and symmetrically for B->A. Four cipher instances are used —
// one read and one write per tunnel — because both directions of a
// tunnel share a (secret, nonce) pair but must advance independently.
func Join(ctx context.Context, a, b Tunnel) error {
	closers := []closer{a, b}
	owned := false
	defer func() {
		if !owned {
			closeAll(closers)
		}
	}()

	if a.Role == Inbound {
		if err := signalReady(a); err != nil {
			return err
		}
	}
	if b.Role == Inbound {
		if err := signalReady(b); err != nil {
			return err
		}
	}

	aRead, err := cipher.New(a.Secret, a.Nonce)
	if err != nil {
		return err
	}
	aWrite, err := cipher.New(a.Secret, a.Nonce)
	if err != nil {
		return err
	}
	bRead, err := cipher.New(b.Secret, b.Nonce)
	if err != nil {
		return err
	}
	bWrite, err := cipher.New(b.Secret, b.Nonce)
	if err != nil {
		return err
	}

	owned = true
	return runPair(ctx,
		closers,
		func() error { return readWrite(a.Conn, b.Conn, []*cipher.Context{aRead, bWrite}) },
		func() error { return readWrite(b.Conn, a.Conn, []*cipher.Context{bRead, aWrite}) },
	)
}

func signalReady(t Tunnel) error {
	return wire.SignalReady(t.Conn)
}

type closer interface {
	Close() error
}

func closeAll(closers []closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}

// runPair spawns both directions, waits for the first to finish (error or
// clean EOF), and aborts the other by closing the underlying connections
// — Go has no task.abort(), so cancellation means closing the shared
// connections to unblock the sibling's pending Read. errgroup.Wait is
// used purely to know when both goroutines have actually returned, so
// runPair never leaves an orphan goroutine behind.
func runPair(ctx context.Context, closers []closer, dir1, dir2 func() error) error {
	results := make(chan error, 2)
	done := make(chan struct{})
	var closeOnce sync.Once
	closeOnceAll := func() {
		closeOnce.Do(func() { closeAll(closers) })
	}

	var g errgroup.Group
	// Each direction records its result before closing the connections, so
	// the sibling's close-induced error can never be reported as the first.
	g.Go(func() error {
		err := dir1()
		results <- err
		closeOnceAll()
		return nil
	})
	g.Go(func() error {
		err := dir2()
		results <- err
		closeOnceAll()
		return nil
	})
	go func() {
		select {
		case <-ctx.Done():
			closeOnceAll()
		case <-done:
		}
	}()

	first := <-results
	_ = g.Wait()
	close(done)
	return first
}
