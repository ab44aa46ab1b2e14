// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package primitives wraps the cryptographic black boxes the channel and
// invitation protocols are built from: authenticated public-key encryption
// ("box"), authenticated secret-key encryption ("secretbox"), attached
// signing, HKDF, and SHA-256. Nothing in this package knows about
// invitations, channels, or the wire formats that use it.
package primitives

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// NonceSize is the nonce length used by both Box and SecretBox.
const NonceSize = 24

// KeySize is the length of X25519/secretbox keys and Ed25519 seeds/verify keys.
const KeySize = 32

var (
	// ErrOpenFailed is returned when Open or SecretOpen cannot authenticate
	// the ciphertext under the given key. Implementations must treat this as
	// a routine occurrence (wrong key tried), not a corruption signal.
	ErrOpenFailed = errors.New("primitives: open failed")

	// ErrBadSignature is returned by Verify when the signature does not
	// check out under the given verify key.
	ErrBadSignature = errors.New("primitives: bad signature")

	// ErrBadLength is returned when a key or nonce has the wrong size.
	ErrBadLength = errors.New("primitives: bad length")
)

// GenerateBoxKeyPair generates a fresh X25519 key pair for use with Box/Open.
func GenerateBoxKeyPair() (pub, priv *[KeySize]byte, err error) {
	return box.GenerateKey(rand.Reader)
}

// RandomNonce returns NonceSize random bytes suitable for Box or SecretBox.
func RandomNonce() ([]byte, error) {
	n := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Box encrypts body for peerPub using myPriv, under nonce (NONCE_SIZE bytes).
// Returns the ciphertext only; callers are responsible for carrying the
// nonce alongside it per the wire format in use (petmail's msgD/m2 framing
// carries the nonce prepended to the ciphertext it returns from the peer's
// NaCl binding; this package keeps nonce and ciphertext separate so callers
// control exactly where the nonce goes on the wire).
func Box(body []byte, nonce *[NonceSize]byte, peerPub, myPriv *[KeySize]byte) []byte {
	return box.Seal(nil, body, nonce, peerPub, myPriv)
}

// Open reverses Box. Returns ErrOpenFailed if authentication fails.
func Open(ciphertext []byte, nonce *[NonceSize]byte, peerPub, myPriv *[KeySize]byte) ([]byte, error) {
	out, ok := box.Open(nil, ciphertext, nonce, peerPub, myPriv)
	if !ok {
		return nil, ErrOpenFailed
	}
	return out, nil
}

// SecretBox encrypts plaintext under a 32-byte symmetric key.
func SecretBox(plaintext []byte, nonce *[NonceSize]byte, key *[KeySize]byte) []byte {
	return secretbox.Seal(nil, plaintext, nonce, key)
}

// SecretOpen reverses SecretBox. Returns ErrOpenFailed if authentication fails.
func SecretOpen(ciphertext []byte, nonce *[NonceSize]byte, key *[KeySize]byte) ([]byte, error) {
	out, ok := secretbox.Open(nil, ciphertext, nonce, key)
	if !ok {
		return nil, ErrOpenFailed
	}
	return out, nil
}

// GenerateSigningKey returns a fresh Ed25519 seed-backed signing key and its
// verify key.
func GenerateSigningKey() (priv ed25519.PrivateKey, pub ed25519.PublicKey, err error) {
	pub, priv, err = ed25519.GenerateKey(rand.Reader)
	return priv, pub, err
}

// SigningKeyFromSeed deterministically derives a signing key from a 32-byte
// seed, the same way PyNaCl's SigningKey(seed) does.
func SigningKeyFromSeed(seed []byte) (ed25519.PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrBadLength
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// Sign produces an attached signature: signature(64) || message, matching
// PyNaCl's SigningKey.sign output.
func Sign(priv ed25519.PrivateKey, message []byte) []byte {
	sig := ed25519.Sign(priv, message)
	out := make([]byte, 0, len(sig)+len(message))
	out = append(out, sig...)
	out = append(out, message...)
	return out
}

// Verify checks an attached signature produced by Sign and returns the
// enclosed message.
func Verify(pub ed25519.PublicKey, signed []byte) ([]byte, error) {
	if len(signed) < ed25519.SignatureSize {
		return nil, ErrBadSignature
	}
	sig, msg := signed[:ed25519.SignatureSize], signed[ed25519.SignatureSize:]
	if !ed25519.Verify(pub, msg, sig) {
		return nil, ErrBadSignature
	}
	return msg, nil
}

// VerifyWithPrefix verifies an attached signature and additionally requires
// the enclosed message to start with prefix, returning the remainder.
func VerifyWithPrefix(pub ed25519.PublicKey, signed []byte, prefix string) ([]byte, error) {
	msg, err := Verify(pub, signed)
	if err != nil {
		return nil, err
	}
	if len(msg) < len(prefix) || string(msg[:len(prefix)]) != prefix {
		return nil, ErrBadSignature
	}
	return msg[len(prefix):], nil
}

// HKDF derives dkLen bytes from ikm using HKDF-SHA256 with the given info
// string and no salt, matching petmail's HKDF(IKM, dkLen, info) helper.
func HKDF(ikm []byte, dkLen int, info string) ([]byte, error) {
	h := hkdf.New(sha256.New, ikm, nil, []byte(info))
	out := make([]byte, dkLen)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
