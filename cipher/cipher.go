// Package cipher wraps the ChaCha20 keystream used to encrypt and decrypt
// tunnel traffic. It owns no framing or authentication — just the raw
// stream cipher.
package cipher

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

// KeySize is the length in bytes of a derived secret (SHA-256 digest).
const KeySize = 32

// NonceSize is the length in bytes of a handshake nonce (ChaCha20 IETF nonce).
const NonceSize = chacha20.NonceSize

// DeriveSecret hashes a user-provided secret string into a 32-byte key:
// secret_bytes = SHA-256(utf8(secret_string)).
func DeriveSecret(secret string) [KeySize]byte {
	return sha256.Sum256([]byte(secret))
}

// Context owns one direction's keystream, initialized from a (secret,
// nonce) pair. It advances monotonically as bytes are applied and is not
// safe for concurrent use — each direction of a tunnel owns its own
// instance.
type Context struct {
	stream *chacha20.Cipher
}

// New creates a cipher context at keystream position 0. The IETF ChaCha20
// counter always starts at 0; a single (secret, nonce) pair produces two
// independent instances (see Join in package tunnel) that never collide on
// counter position because each consumes its own byte stream.
func New(secret [KeySize]byte, nonce [NonceSize]byte) (*Context, error) {
	stream, err := chacha20.NewUnauthenticatedCipher(secret[:], nonce[:])
	if err != nil {
		return nil, fmt.Errorf("cipher: init: %w", err)
	}
	return &Context{stream: stream}, nil
}

// ApplyKeystream XORs the next len(buf) bytes of the keystream into buf in
// place and advances the internal position by len(buf). Encryption and
// decryption are the same operation.
func (c *Context) ApplyKeystream(buf []byte) {
	c.stream.XORKeyStream(buf, buf)
}
