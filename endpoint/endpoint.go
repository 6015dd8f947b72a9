// Package endpoint turns a declarative endpoint descriptor into a
// reusable handle that produces tunnel.Connection values, either by
// accepting on a shared listener or by dialing afresh each time.
package endpoint

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"veloxid/banlist"
	"veloxid/cipher"
	"veloxid/tunnel"
	"veloxid/wire"
)

// Mode is whether an endpoint speaks the tunnel protocol or raw TCP.
type Mode int

const (
	ModeDirect Mode = iota
	ModeTunnel
)

// Direction is whether an endpoint accepts (inbound) or dials (outbound).
type Direction int

const (
	DirectionInbound Direction = iota
	DirectionOutbound
)

// Spec is the declarative description of one endpoint.
type Spec struct {
	Name      string
	Host      string // inbound: default "0.0.0.0"; outbound: dial host as given
	Port      int
	Mode      Mode
	Direction Direction
	Secret    string // required if Mode == ModeTunnel

	// MaxInFlight bounds how many connections accepted from an inbound
	// listener may be open at once, from accept until Close
	// (golang.org/x/net/netutil.LimitListener); 0 means unlimited.
	// AcceptRatePerSecond/AcceptBurst throttle the rate new connections
	// are processed (golang.org/x/time/rate), independent of the per-IP
	// ban list; a rate of 0 disables the throttle and a burst of 0 is
	// treated as 1. Both are additive resilience knobs, not part of the
	// core protocol.
	MaxInFlight         int
	AcceptRatePerSecond float64
	AcceptBurst         int
}

// ErrNoSecret marks a tunnel-mode endpoint with no secret: it can never
// be bound.
var ErrNoSecret = fmt.Errorf("endpoint: tunnel mode requires a secret")

// Binding is a bound endpoint: a shared listener for inbound endpoints, or
// a resolved dial target for outbound ones. One Binding is shared by every
// worker of every route that references the endpoint.
type Binding struct {
	spec     Spec
	secret   [cipher.KeySize]byte
	listener net.Listener
	bans     *banlist.List
	limiter  *rate.Limiter
}

// Bind creates a Binding from a Spec. For inbound endpoints it opens the
// listener immediately; for outbound endpoints it only resolves the dial
// target lazily at Acquire time via net.Dialer.
func Bind(spec Spec, bans *banlist.List) (*Binding, error) {
	if spec.Mode == ModeTunnel && spec.Secret == "" {
		return nil, fmt.Errorf("%s: %w", spec.Name, ErrNoSecret)
	}

	b := &Binding{spec: spec, bans: bans}
	if spec.Mode == ModeTunnel {
		b.secret = cipher.DeriveSecret(spec.Secret)
	}
	if spec.AcceptRatePerSecond > 0 {
		burst := spec.AcceptBurst
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(spec.AcceptRatePerSecond), burst)
	}

	if spec.Direction == DirectionInbound {
		host := spec.Host
		if host == "" {
			host = "0.0.0.0"
		}
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, spec.Port))
		if err != nil {
			return nil, fmt.Errorf("%s: listen: %w", spec.Name, err)
		}
		if spec.MaxInFlight > 0 {
			ln = netutil.LimitListener(ln, spec.MaxInFlight)
		}
		b.listener = ln
	}
	return b, nil
}

// Close releases resources owned by the Binding (the shared listener, for
// inbound endpoints).
func (b *Binding) Close() error {
	if b.listener != nil {
		return b.listener.Close()
	}
	return nil
}

// Acquire accepts (inbound) or dials (outbound) one Connection, running
// the authentication handshake first if the endpoint is in tunnel mode.
func (b *Binding) Acquire(ctx context.Context) (tunnel.Connection, error) {
	if b.spec.Direction == DirectionInbound {
		return b.acquireInbound(ctx)
	}
	return b.acquireOutbound(ctx)
}

func (b *Binding) acquireInbound(ctx context.Context) (tunnel.Connection, error) {
	conn, err := b.listener.Accept()
	if err != nil {
		return nil, fmt.Errorf("%s: accept: %w", b.spec.Name, err)
	}

	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())

	if b.spec.Mode == ModeTunnel {
		if b.bans.Check(host) {
			_ = conn.Close()
			return nil, wire.ErrConnAttemptFromBannedIP
		}
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s: accept rate wait: %w", b.spec.Name, err)
		}
	}

	if b.spec.Mode == ModeDirect {
		return tunnel.Direct{Conn: conn}, nil
	}

	nonce, err := wire.InboundAuthenticate(conn, b.secret)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tunnel.Tunnel{Conn: conn, Nonce: nonce, Secret: b.secret, Role: tunnel.Inbound}, nil
}

func (b *Binding) acquireOutbound(ctx context.Context) (tunnel.Connection, error) {
	dialer := &net.Dialer{}
	addr := net.JoinHostPort(b.spec.Host, fmt.Sprintf("%d", b.spec.Port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", wire.ErrConnectionRefused, b.spec.Name, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(30 * time.Second)
	}

	if b.spec.Mode == ModeDirect {
		return tunnel.Direct{Conn: conn}, nil
	}

	nonce, err := wire.OutboundAuthenticate(conn, b.secret)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	// Block for the inbound side's readiness byte before this Connection
	// is usable. The inbound side only sends it once its own worker
	// starts relaying, so this can legitimately block for a while — there
	// is no timeout on it, by design. Cancelling ctx closes the connection
	// so the wait ends on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	err = wire.AwaitReady(conn)
	stop()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tunnel.Tunnel{Conn: conn, Nonce: nonce, Secret: b.secret, Role: tunnel.Outbound}, nil
}
