package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // OAEP-SHA1 is mandated by the service key format
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// DefaultPublicKey is the login service's published RSA key, encoded as a
// base64 blob: a 4-byte big-endian modulus length, the modulus bytes, a
// 4-byte big-endian exponent length, and the exponent bytes.
const DefaultPublicKey = "AAAAgMom/1a/v0lblO2Ubrt60J2gcuXSljGFQXgcyZWveWLEwo6prwgi3iJIZdodyhKZQrNWp5nKJ3srRXcUW+F1BD3baEVGcmEgqaLZUNBjm057pKRI16kB0YppeGx5qIQ5QjKzsR8ETQbKLNWgRY0QRNVz34kMJR3P/LgHax/6rmf5AAAAAwEAAQ=="

// Encryption errors. These are pre-network failures: they indicate bad
// input, never a service-side rejection.
var (
	// ErrEmptyCredentials is returned when the username or password is empty.
	ErrEmptyCredentials = errors.New("username and password must not be empty")

	// ErrMalformedKey is returned when the embedded public key blob cannot
	// be parsed into an RSA key.
	ErrMalformedKey = errors.New("malformed login public key")
)

// Encrypter is the function signature the protocol session depends on.
// It exists so tests can substitute a stub without touching real RSA.
type Encrypter func(user, password string) ([]byte, error)

// Encrypt encrypts the credentials with DefaultPublicKey.
// See EncryptWithKey for the blob layout.
func Encrypt(user, password string) ([]byte, error) {
	return EncryptWithKey(DefaultPublicKey, user, password)
}

// EncryptWithKey encrypts "user\x00password" with the given service key and
// returns the blob the login endpoint accepts:
//
//	0x00 || sha1(keyBlob)[:4] || RSA-OAEP-SHA1(ciphertext)
//
// The output is raw bytes; the session base64url-encodes it when building
// the login form. The result is non-deterministic (OAEP is randomized) but
// always accepted by the service for the same inputs.
func EncryptWithKey(publicKey, user, password string) ([]byte, error) {
	if user == "" || password == "" {
		return nil, ErrEmptyCredentials
	}

	keyBlob, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}

	pub, err := parseKey(keyBlob)
	if err != nil {
		return nil, err
	}

	msg := make([]byte, 0, len(user)+len(password)+1)
	msg = append(msg, user...)
	msg = append(msg, 0x00)
	msg = append(msg, password...)

	ciphertext, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, msg, nil) //nolint:gosec // scheme fixed by the service
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	// The service identifies the key by the first 4 bytes of the SHA-1 of
	// the raw key blob, prefixed with a zero version byte.
	digest := sha1.Sum(keyBlob) //nolint:gosec // key fingerprint format fixed by the service

	out := make([]byte, 0, 5+len(ciphertext))
	out = append(out, 0x00)
	out = append(out, digest[:4]...)
	out = append(out, ciphertext...)
	return out, nil
}

// parseKey parses the service's length-prefixed modulus/exponent layout.
func parseKey(blob []byte) (*rsa.PublicKey, error) {
	if len(blob) < 4 {
		return nil, ErrMalformedKey
	}

	modLen := binary.BigEndian.Uint32(blob)
	if uint32(len(blob)) < 4+modLen+4 {
		return nil, ErrMalformedKey
	}
	modulus := blob[4 : 4+modLen]

	expOffset := 4 + modLen
	expLen := binary.BigEndian.Uint32(blob[expOffset:])
	if uint32(len(blob)) < expOffset+4+expLen || expLen == 0 || expLen > 8 {
		return nil, ErrMalformedKey
	}
	exponent := blob[expOffset+4 : expOffset+4+expLen]

	e := 0
	for _, b := range exponent {
		e = e<<8 | int(b)
	}
	if e <= 1 {
		return nil, ErrMalformedKey
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(modulus),
		E: e,
	}, nil
}
