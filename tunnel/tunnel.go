// Package tunnel holds the authenticated-stream abstraction (Tunnel),
// the plain-stream abstraction (Direct), and the relay engine that pipes
// bytes between a pair of them.
package tunnel

import (
	"net"

	"veloxid/cipher"
)

// Role identifies which side of a TCP connection a Tunnel came from: the
// side that accepted it, or the side that dialed it.
type Role int

const (
	Inbound Role = iota
	Outbound
)

func (r Role) String() string {
	if r == Inbound {
		return "inbound"
	}
	return "outbound"
}

// Connection is the result of acquiring an endpoint binding: either a
// Tunnel or a Direct stream.
type Connection interface {
	// Close closes the underlying network connection.
	Close() error
}

// Tunnel is an authenticated, ChaCha20-keyed byte stream. It is produced
// by an endpoint binder once the handshake in package wire has
// authenticated the peer.
type Tunnel struct {
	Conn   net.Conn
	Nonce  [cipher.NonceSize]byte
	Secret [cipher.KeySize]byte
	Role   Role
}

func (t Tunnel) Close() error { return t.Conn.Close() }

// Direct is a plain TCP stream with no encryption or handshake.
type Direct struct {
	Conn net.Conn
}

func (d Direct) Close() error { return d.Conn.Close() }
