package wire

import (
	"errors"
	"fmt"
)

// Kinds that carry no peer IP are plain sentinels; kinds that do
// (Timeout, SecretMismatch) are typed so the route worker can extract
// the IP for the ban list without string parsing, wrapping a cause
// instead of stringly-typing it.
var (
	// ErrConnectionRefused marks a TCP dial failure.
	ErrConnectionRefused = errors.New("wire: connection refused")

	// ErrNonceEarlyEOF marks an outbound nonce read that hit EOF before 12
	// bytes.
	ErrNonceEarlyEOF = errors.New("wire: nonce read hit EOF early")

	// ErrSecretRejected marks an outbound handshake that received 0x02
	// instead of 0x01.
	ErrSecretRejected = errors.New("wire: secret rejected by peer")

	// ErrConnAttemptFromBannedIP marks an inbound accept from a currently
	// banned IP.
	ErrConnAttemptFromBannedIP = errors.New("wire: connection attempt from banned ip")
)

// TimeoutError marks a handshake read that exceeded its deadline.
type TimeoutError struct {
	IP    string
	cause error
}

func NewTimeoutError(ip string, cause error) *TimeoutError {
	return &TimeoutError{IP: ip, cause: cause}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("wire: handshake timeout from %s: %v", e.IP, e.cause)
}

func (e *TimeoutError) Unwrap() error { return e.cause }
func (e *TimeoutError) Timeout() bool { return true }

// SecretMismatchError marks an inbound AUTH token that failed to decrypt
// to "AUTH".
type SecretMismatchError struct {
	IP string
}

func NewSecretMismatchError(ip string) *SecretMismatchError {
	return &SecretMismatchError{IP: ip}
}

func (e *SecretMismatchError) Error() string {
	return fmt.Sprintf("wire: secret mismatch from %s", e.IP)
}
