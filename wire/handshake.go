// Package wire implements the tunnel handshake wire protocol: nonce
// exchange, AUTH verification, and the readiness starting byte. It knows
// nothing about relaying traffic once a tunnel is authenticated — that
// is package tunnel's job.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"

	"veloxid/cipher"
)

// peerIP extracts the bare IP (no port) from a net.Conn's remote address,
// falling back to the full string if it doesn't parse as host:port.
func peerIP(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// writeFull loops until all of buf has been written or an error occurs.
// A plain write can short-write even small (<=12 byte) buffers on some
// kernels, so every handshake write goes through this instead of a bare
// Write call.
func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// InboundAuthenticate runs the inbound half of the handshake up through
// authentication — not the readiness byte, which is deferred to the
// relay engine until it actually starts relaying. On success it returns
// the nonce the two sides will derive cipher contexts from.
func InboundAuthenticate(conn net.Conn, secret [cipher.KeySize]byte) ([cipher.NonceSize]byte, error) {
	var nonce [cipher.NonceSize]byte
	if _, err := io.ReadFull(randReader, nonce[:]); err != nil {
		return nonce, fmt.Errorf("wire: generate nonce: %w", err)
	}
	if err := writeFull(conn, nonce[:]); err != nil {
		return nonce, fmt.Errorf("wire: write nonce: %w", err)
	}

	ctx, err := cipher.New(secret, nonce)
	if err != nil {
		return nonce, err
	}

	auth := make([]byte, len(authLiteral))
	if err := readExactWithDeadline(conn, auth, AuthTimeout); err != nil {
		if isDeadlineExceeded(err) {
			return nonce, NewTimeoutError(peerIP(conn), err)
		}
		return nonce, fmt.Errorf("wire: read auth: %w", err)
	}
	ctx.ApplyKeystream(auth)

	if !bytes.Equal(auth, []byte(authLiteral)) {
		// best-effort: the peer gets 0x02 even if this write fails.
		_ = writeFull(conn, []byte{MismatchByte})
		return nonce, NewSecretMismatchError(peerIP(conn))
	}

	return nonce, nil
}

// OutboundAuthenticate runs the outbound half of the handshake. On
// success it returns the nonce received from the inbound side. The
// caller must separately wait for the readiness byte via AwaitReady
// once it is ready to relay.
func OutboundAuthenticate(conn net.Conn, secret [cipher.KeySize]byte) ([cipher.NonceSize]byte, error) {
	var nonce [cipher.NonceSize]byte
	if err := readExactWithDeadline(conn, nonce[:], NonceTimeout); err != nil {
		if isDeadlineExceeded(err) {
			return nonce, NewTimeoutError(peerIP(conn), err)
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nonce, ErrNonceEarlyEOF
		}
		return nonce, fmt.Errorf("wire: read nonce: %w", err)
	}

	ctx, err := cipher.New(secret, nonce)
	if err != nil {
		return nonce, err
	}

	auth := []byte(authLiteral)
	ctx.ApplyKeystream(auth)
	if err := writeFull(conn, auth); err != nil {
		return nonce, fmt.Errorf("wire: write auth: %w", err)
	}

	return nonce, nil
}

// AwaitReady blocks, with no timeout, for the single readiness byte. A
// mismatch byte (0x02) means the remote rejected our secret.
func AwaitReady(conn net.Conn) error {
	var b [1]byte
	if _, err := io.ReadFull(conn, b[:]); err != nil {
		return fmt.Errorf("wire: await ready: %w", err)
	}
	if b[0] == MismatchByte {
		return ErrSecretRejected
	}
	return nil
}

// SignalReady writes the single readiness byte. It is called by the
// relay engine, once per inbound tunnel, immediately before relaying
// begins.
func SignalReady(conn net.Conn) error {
	return writeFull(conn, []byte{ReadyByte})
}
