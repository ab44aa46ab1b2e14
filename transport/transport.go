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

// Package transport implements the adapter (C6) that carries a channel
// msgC over an untrusted mailbox: the sender rerandomizes the recipient's
// mailbox token before every send so two messages to the same mailbox
// never share a linkable address, and encrypts the token plus msgC to the
// mailbox's own encryption key under a fresh ephemeral keypair, so a relay
// sees only ciphertext and can neither read msgC nor link two sends to the
// same recipient.
//
// msgA := "a0:" || pub1(32) || nonce(24) || box(to=transport_pubkey, from=pub1, msgB)
// msgB := netstring(MSTID) || msgC
package transport

import (
	"errors"
	"fmt"

	"github.com/petrelay/core/crypto/primitives"
	"github.com/petrelay/core/rrid"
	"github.com/petrelay/core/wire"
)

const msgAPrefix = "a0:"

const envelopeHeaderLen = len(msgAPrefix) + primitives.KeySize + primitives.NonceSize

// ErrForeignMailbox is returned by Adapter.Unwrap when msgA's token was not
// minted (directly or via rerandomization) by this adapter's keypair — the
// message is addressed to a different mailbox sharing the same transport.
var ErrForeignMailbox = errors.New("transport: foreign mailbox")

// ErrCorruptMessage marks an msgA whose shape is structurally invalid, or
// whose outer encryption layer does not open under the recipient's key.
var ErrCorruptMessage = errors.New("transport: corrupt message")

// WrapMsgA rerandomizes token, frames msgC behind a fresh mailbox token
// (msgB), and seals msgB with a one-time ephemeral keypair to
// transportPubkey — the mailbox holder's encryption public key — so the
// token and msgC never appear in the clear on the wire.
func WrapMsgA(token rrid.Token, transportPubkey *[primitives.KeySize]byte, msgC []byte) ([]byte, error) {
	fresh, err := rrid.Randomize(token)
	if err != nil {
		return nil, fmt.Errorf("transport: randomize token: %w", err)
	}

	pub1, priv1, err := primitives.GenerateBoxKeyPair()
	if err != nil {
		return nil, fmt.Errorf("transport: generate ephemeral keypair: %w", err)
	}
	nonceBytes, err := primitives.RandomNonce()
	if err != nil {
		return nil, fmt.Errorf("transport: nonce: %w", err)
	}
	var nonce [primitives.NonceSize]byte
	copy(nonce[:], nonceBytes)

	msgB := append(wire.Netstring(fresh.Bytes()), msgC...)
	ciphertext := primitives.Box(msgB, &nonce, transportPubkey, priv1)

	out := make([]byte, 0, envelopeHeaderLen+len(ciphertext))
	out = append(out, msgAPrefix...)
	out = append(out, pub1[:]...)
	out = append(out, nonce[:]...)
	out = append(out, ciphertext...)
	return out, nil
}

// ParseMsgA opens msgA under the recipient's mailbox box keypair and
// returns the rerandomized token and the enclosed msgC.
func ParseMsgA(msgA []byte, boxPriv *[primitives.KeySize]byte) (token rrid.Token, msgC []byte, err error) {
	if len(msgA) < envelopeHeaderLen || string(msgA[:len(msgAPrefix)]) != msgAPrefix {
		return rrid.Token{}, nil, fmt.Errorf("%w: bad msgA prefix", ErrCorruptMessage)
	}
	rest := msgA[len(msgAPrefix):]

	var pub1 [primitives.KeySize]byte
	copy(pub1[:], rest[:primitives.KeySize])
	rest = rest[primitives.KeySize:]

	var nonce [primitives.NonceSize]byte
	copy(nonce[:], rest[:primitives.NonceSize])
	ciphertext := rest[primitives.NonceSize:]

	msgB, err := primitives.Open(ciphertext, &nonce, &pub1, boxPriv)
	if err != nil {
		return rrid.Token{}, nil, fmt.Errorf("%w: outer box open failed: %v", ErrCorruptMessage, err)
	}

	tokenBytes, trailer, err := wire.SplitNetstring(msgB)
	if err != nil {
		return rrid.Token{}, nil, fmt.Errorf("%w: %v", ErrCorruptMessage, err)
	}
	token, err = rrid.ParseToken(tokenBytes)
	if err != nil {
		return rrid.Token{}, nil, fmt.Errorf("%w: %v", ErrCorruptMessage, err)
	}
	return token, trailer, nil
}

// Adapter owns one RRID keypair and one box keypair for one mailbox: the
// RRID keypair addresses the mailbox unlinkably, the box keypair lets
// senders encrypt the address and msgC so only this mailbox can read them.
type Adapter struct {
	keypair *rrid.KeyPair
	boxPub  [primitives.KeySize]byte
	boxPriv [primitives.KeySize]byte
}

// NewAdapter wraps an existing RRID keypair and mints this mailbox's
// encryption keypair.
func NewAdapter(kp *rrid.KeyPair) (*Adapter, error) {
	pub, priv, err := primitives.GenerateBoxKeyPair()
	if err != nil {
		return nil, fmt.Errorf("transport: generate mailbox keypair: %w", err)
	}
	return &Adapter{keypair: kp, boxPub: *pub, boxPriv: *priv}, nil
}

// MintTransport registers a fresh mailbox token for a new pairing and
// returns the STID/STIDPub plus this mailbox's encryption public key a peer
// needs, wire-ready for a ChannelRecord's TransportDescriptor.
func (a *Adapter) MintTransport(transportID string) (stid, stidPub, boxPub []byte, err error) {
	_, token0, err := a.keypair.Create()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("transport: mint token: %w", err)
	}
	pub := a.keypair.PublicKey()
	boxPub = append([]byte{}, a.boxPub[:]...)
	return token0.Bytes(), pub[:], boxPub, nil
}

// Unwrap authenticates msgA as addressed to this adapter's mailbox and
// returns the enclosed msgC for the channel layer to process. A token this
// adapter never minted yields ErrForeignMailbox, not a parse error — a
// shared mailbox is expected to see traffic for other recipients.
func (a *Adapter) Unwrap(msgA []byte) (msgC []byte, err error) {
	token, msgC, err := ParseMsgA(msgA, &a.boxPriv)
	if err != nil {
		return nil, err
	}
	if _, err := a.keypair.Decrypt(token); err != nil {
		if errors.Is(err, rrid.ErrUnknownToken) {
			return nil, ErrForeignMailbox
		}
		return nil, err
	}
	return msgC, nil
}

// SendVia rerandomizes the STID a peer advertised in a TransportDescriptor
// and wraps msgC behind it, encrypted to that transport's boxPub, ready to
// post to that transport's mailbox.
func SendVia(stid, boxPub []byte, msgC []byte) ([]byte, error) {
	token, err := rrid.ParseToken(stid)
	if err != nil {
		return nil, fmt.Errorf("transport: parse STID: %w", err)
	}
	if len(boxPub) != primitives.KeySize {
		return nil, fmt.Errorf("transport: bad transport pubkey length %d", len(boxPub))
	}
	var pub [primitives.KeySize]byte
	copy(pub[:], boxPub)
	return WrapMsgA(token, &pub, msgC)
}
