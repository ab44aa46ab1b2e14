// Package rrid implements the rerandomizable-identifier primitive used by
// the transport adapter (C6) to address a peer's mailbox without letting
// anyone but the mailbox holder link repeated presentations of the same
// token to one another.
//
// Construction: ElGamal encryption over the edwards25519 group. A token
// encrypts a curve point derived from a locally chosen tokenid; randomizing
// re-blinds the ciphertext with a fresh scalar against the public key it
// already carries, so no private key is needed to produce a fresh
// presentation. Decrypting removes the keypair's blinding and looks the
// resulting point up in a registry the keypair maintains of points it has
// itself issued — the only party who can ever need to resolve a token back
// to a tokenid is the party that minted it.
package rrid

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"filippo.io/edwards25519"
)

// TokenLength is the wire length of a Token's fixed-size encoding.
const TokenLength = 1 + 32 + 32 + 32 // version byte + pub + R + S

// ErrUnknownToken is returned by Decrypt when the token does not decrypt to
// a point this keypair has issued. Per the RRID contract, this is also what
// a bit-flipped token looks like: decrypt output is not integrity-checked,
// only membership-checked against the issuing registry.
var ErrUnknownToken = errors.New("rrid: unknown token")

// PublicKey is an ElGamal public key (xG) in compressed edwards25519 form.
type PublicKey [32]byte

// Token is a rerandomizable ElGamal ciphertext over a tokenid-derived point,
// self-contained: it carries the public key it was encrypted under so that
// Randomize needs no side information.
type Token struct {
	Pub PublicKey
	R   [32]byte // ephemeral component, rG
	S   [32]byte // masked component, M + r*Pub
}

// Bytes encodes a Token as version(1) || Pub(32) || R(32) || S(32).
func (t Token) Bytes() []byte {
	out := make([]byte, 0, TokenLength)
	out = append(out, 0x01)
	out = append(out, t.Pub[:]...)
	out = append(out, t.R[:]...)
	out = append(out, t.S[:]...)
	return out
}

// ParseToken decodes a Token produced by Bytes. Malformed or non-canonical
// point encodings are rejected at parse time; bit flips that still decode to
// valid (if meaningless) points are accepted here and only rejected later by
// Decrypt's registry lookup, per the RRID contract.
func ParseToken(b []byte) (Token, error) {
	var t Token
	if len(b) != TokenLength || b[0] != 0x01 {
		return t, fmt.Errorf("rrid: malformed token")
	}
	copy(t.Pub[:], b[1:33])
	copy(t.R[:], b[33:65])
	copy(t.S[:], b[65:97])
	if _, err := new(edwards25519.Point).SetBytes(t.Pub[:]); err != nil {
		return t, fmt.Errorf("rrid: bad public key point: %w", err)
	}
	if _, err := new(edwards25519.Point).SetBytes(t.R[:]); err != nil {
		return t, fmt.Errorf("rrid: bad R point: %w", err)
	}
	if _, err := new(edwards25519.Point).SetBytes(t.S[:]); err != nil {
		return t, fmt.Errorf("rrid: bad S point: %w", err)
	}
	return t, nil
}

// KeyPair is an RRID keypair: the ElGamal private scalar, its public point,
// and the registry of tokenids this keypair has minted.
type KeyPair struct {
	mu       sync.Mutex
	scalar   *edwards25519.Scalar
	pub      *edwards25519.Point
	pubBytes PublicKey
	registry map[[32]byte]string // anchor point bytes -> tokenid
}

// GenerateKeyPair creates a fresh RRID keypair.
func GenerateKeyPair() (*KeyPair, error) {
	scalar, err := randomScalar()
	if err != nil {
		return nil, err
	}
	pub := new(edwards25519.Point).ScalarBaseMult(scalar)
	kp := &KeyPair{
		scalar:   scalar,
		pub:      pub,
		registry: make(map[[32]byte]string),
	}
	copy(kp.pubBytes[:], pub.Bytes())
	return kp, nil
}

// PublicKey returns this keypair's public key.
func (kp *KeyPair) PublicKey() PublicKey {
	return kp.pubBytes
}

// Create mints a fresh tokenid and its encryption under this keypair's
// public key: (tokenid, token0). The tokenid is also registered so a later
// Decrypt of any rerandomization of token0 can resolve back to it.
func (kp *KeyPair) Create() (tokenid string, token0 Token, err error) {
	raw := make([]byte, 16)
	if _, err = io.ReadFull(rand.Reader, raw); err != nil {
		return "", Token{}, err
	}
	tokenid = hex.EncodeToString(raw)

	anchor := hashToPoint(tokenid)
	var anchorBytes [32]byte
	copy(anchorBytes[:], anchor.Bytes())

	kp.mu.Lock()
	kp.registry[anchorBytes] = tokenid
	kp.mu.Unlock()

	r, err := randomScalar()
	if err != nil {
		return "", Token{}, err
	}
	R := new(edwards25519.Point).ScalarBaseMult(r)
	rPub := new(edwards25519.Point).ScalarMult(r, kp.pub)
	S := new(edwards25519.Point).Add(anchor, rPub)

	var tok Token
	tok.Pub = kp.pubBytes
	copy(tok.R[:], R.Bytes())
	copy(tok.S[:], S.Bytes())
	return tokenid, tok, nil
}

// Randomize produces a fresh, unlinkable presentation of token. It requires
// no private key: the token already carries the public key it was encrypted
// under, so re-blinding only needs a fresh random scalar.
func Randomize(token Token) (Token, error) {
	pubPoint, err := new(edwards25519.Point).SetBytes(token.Pub[:])
	if err != nil {
		return Token{}, fmt.Errorf("rrid: bad public key in token: %w", err)
	}
	R, err := new(edwards25519.Point).SetBytes(token.R[:])
	if err != nil {
		return Token{}, fmt.Errorf("rrid: bad R in token: %w", err)
	}
	S, err := new(edwards25519.Point).SetBytes(token.S[:])
	if err != nil {
		return Token{}, fmt.Errorf("rrid: bad S in token: %w", err)
	}

	rPrime, err := randomScalar()
	if err != nil {
		return Token{}, err
	}
	newR := new(edwards25519.Point).Add(R, new(edwards25519.Point).ScalarBaseMult(rPrime))
	newS := new(edwards25519.Point).Add(S, new(edwards25519.Point).ScalarMult(rPrime, pubPoint))

	var out Token
	out.Pub = token.Pub
	copy(out.R[:], newR.Bytes())
	copy(out.S[:], newS.Bytes())
	return out, nil
}

// Decrypt removes this keypair's blinding from token and resolves the
// result to the tokenid that was registered when it (or an ancestor
// rerandomization of it) was created. Returns ErrUnknownToken for any token
// this keypair never minted, including corrupted/bit-flipped ones — callers
// must not treat a successful Decrypt as proof the token wasn't tampered
// with, only that it currently maps to a tokenid this process issued.
func (kp *KeyPair) Decrypt(token Token) (tokenid string, err error) {
	if token.Pub != kp.pubBytes {
		return "", ErrUnknownToken
	}
	R, err := new(edwards25519.Point).SetBytes(token.R[:])
	if err != nil {
		return "", ErrUnknownToken
	}
	S, err := new(edwards25519.Point).SetBytes(token.S[:])
	if err != nil {
		return "", ErrUnknownToken
	}

	kp.mu.Lock()
	scalar := kp.scalar
	kp.mu.Unlock()

	rPriv := new(edwards25519.Point).ScalarMult(scalar, R)
	M := new(edwards25519.Point).Subtract(S, rPriv)

	var anchorBytes [32]byte
	copy(anchorBytes[:], M.Bytes())

	kp.mu.Lock()
	id, ok := kp.registry[anchorBytes]
	kp.mu.Unlock()
	if !ok {
		return "", ErrUnknownToken
	}
	return id, nil
}

func randomScalar() (*edwards25519.Scalar, error) {
	buf := make([]byte, 64)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, err
	}
	return new(edwards25519.Scalar).SetUniformBytes(buf)
}

// hashToPoint deterministically derives a curve point "anchor" for a
// tokenid by treating repeated SHA-512-derived scalars as a blinding
// factor applied to the base point. This need not invert (tokenids are
// looked up via the registry, never recovered from the point), only be
// deterministic and effectively one-way.
func hashToPoint(tokenid string) *edwards25519.Point {
	buf := make([]byte, 64)
	copy(buf, []byte("rrid/v1/anchor:"+tokenid))
	s, err := new(edwards25519.Scalar).SetUniformBytes(widenForScalar(buf))
	if err != nil {
		panic("rrid: unreachable hash-to-scalar failure: " + err.Error())
	}
	return new(edwards25519.Point).ScalarBaseMult(s)
}

// widenForScalar stretches an arbitrary-length seed into the 64 bytes
// SetUniformBytes requires, deterministically.
func widenForScalar(seed []byte) []byte {
	out := make([]byte, 64)
	for i := range out {
		out[i] = seed[i%len(seed)] ^ byte(i)
	}
	return out
}
