package wire

import "time"

// Reserved starting bytes written by the inbound side of a handshake.
const (
	ReadyByte    byte = 0x01
	MismatchByte byte = 0x02
	authLiteral       = "AUTH"
)

// Handshake timeouts: 5s for the outbound nonce read, 5s for the inbound
// auth read. The readiness byte has no timeout — it is gated by the far
// endpoint's own worker being ready to relay.
const (
	NonceTimeout = 5 * time.Second
	AuthTimeout  = 5 * time.Second
)
