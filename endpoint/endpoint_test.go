package endpoint

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"veloxid/banlist"
	"veloxid/tunnel"
	"veloxid/wire"
)

func TestBind_NoSecret(t *testing.T) {
	_, err := Bind(Spec{Name: "a", Mode: ModeTunnel, Direction: DirectionInbound, Port: 0}, banlist.New())
	if !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}

func TestAcquire_DirectYieldsDirectOnBothSides(t *testing.T) {
	in, err := Bind(Spec{Name: "in", Mode: ModeDirect, Direction: DirectionInbound, Host: "127.0.0.1", Port: 0}, banlist.New())
	if err != nil {
		t.Fatalf("Bind inbound: %v", err)
	}
	defer in.Close()

	port := in.listener.Addr().(*net.TCPAddr).Port
	out, err := Bind(Spec{Name: "out", Mode: ModeDirect, Direction: DirectionOutbound, Host: "127.0.0.1", Port: port}, banlist.New())
	if err != nil {
		t.Fatalf("Bind outbound: %v", err)
	}
	defer out.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	acceptCh := make(chan tunnel.Connection, 1)
	go func() {
		c, err := in.Acquire(ctx)
		if err != nil {
			t.Errorf("inbound Acquire: %v", err)
			return
		}
		acceptCh <- c
	}()

	dialed, err := out.Acquire(ctx)
	if err != nil {
		t.Fatalf("outbound Acquire: %v", err)
	}
	defer dialed.Close()

	accepted := <-acceptCh
	defer accepted.Close()

	if _, ok := dialed.(tunnel.Direct); !ok {
		t.Fatalf("dialed connection is %T, want tunnel.Direct", dialed)
	}
	if _, ok := accepted.(tunnel.Direct); !ok {
		t.Fatalf("accepted connection is %T, want tunnel.Direct", accepted)
	}
}

func TestAcquireInbound_BannedIPRejected(t *testing.T) {
	bans := banlist.New()
	in, err := Bind(Spec{Name: "in", Mode: ModeTunnel, Direction: DirectionInbound, Host: "127.0.0.1", Port: 0, Secret: "s3cret"}, bans)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer in.Close()

	port := in.listener.Addr().(*net.TCPAddr).Port
	bans.Insert("127.0.0.1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := in.Acquire(ctx)
		errCh <- err
	}()

	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(port), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	gotErr := <-errCh
	if !errors.Is(gotErr, wire.ErrConnAttemptFromBannedIP) {
		t.Fatalf("expected ErrConnAttemptFromBannedIP, got %v", gotErr)
	}
}

func TestAcquire_TunnelHandshakeAndReadyGate(t *testing.T) {
	bans := banlist.New()
	in, err := Bind(Spec{Name: "in", Mode: ModeTunnel, Direction: DirectionInbound, Host: "127.0.0.1", Port: 0, Secret: "shared"}, bans)
	if err != nil {
		t.Fatalf("Bind inbound: %v", err)
	}
	defer in.Close()

	port := in.listener.Addr().(*net.TCPAddr).Port
	out, err := Bind(Spec{Name: "out", Mode: ModeTunnel, Direction: DirectionOutbound, Host: "127.0.0.1", Port: port, Secret: "shared"}, bans)
	if err != nil {
		t.Fatalf("Bind outbound: %v", err)
	}
	defer out.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	inCh := make(chan tunnel.Connection, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := in.Acquire(ctx)
		if err != nil {
			errCh <- err
			return
		}
		inCh <- c
	}()

	outCh := make(chan tunnel.Connection, 1)
	outErrCh := make(chan error, 1)
	go func() {
		c, err := out.Acquire(ctx)
		if err != nil {
			outErrCh <- err
			return
		}
		outCh <- c
	}()

	var inboundTun tunnel.Tunnel
	select {
	case c := <-inCh:
		inboundTun = c.(tunnel.Tunnel)
	case err := <-errCh:
		t.Fatalf("inbound Acquire: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound handshake")
	}
	defer inboundTun.Close()

	// The outbound side must still be blocked on AwaitReady: nothing has
	// signalled readiness yet.
	select {
	case c := <-outCh:
		t.Fatalf("outbound Acquire returned early: %v", c)
	case err := <-outErrCh:
		t.Fatalf("outbound Acquire failed early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	if err := wire.SignalReady(inboundTun.Conn); err != nil {
		t.Fatalf("SignalReady: %v", err)
	}

	select {
	case c := <-outCh:
		outTun := c.(tunnel.Tunnel)
		defer outTun.Close()
		if outTun.Role != tunnel.Outbound {
			t.Fatalf("outbound role = %v, want Outbound", outTun.Role)
		}
		if inboundTun.Nonce != outTun.Nonce {
			t.Fatalf("nonce mismatch between inbound and outbound views")
		}
	case err := <-outErrCh:
		t.Fatalf("outbound Acquire: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound to observe readiness")
	}

	if inboundTun.Role != tunnel.Inbound {
		t.Fatalf("inbound role = %v, want Inbound", inboundTun.Role)
	}
}

