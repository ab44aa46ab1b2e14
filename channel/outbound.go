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

package channel

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/petrelay/core/crypto/primitives"
	"github.com/petrelay/core/internal/metrics"
	"github.com/petrelay/core/store"
	"github.com/petrelay/core/wire"
)

// OutboundChannel builds msgCs addressed to one established pairing. Every
// call to CreateMsgC draws a fresh ephemeral pubkey2 and a fresh seqnum, so
// no two messages ever reuse the same CIDToken.
type OutboundChannel struct {
	store store.Store
}

// NewOutboundChannel creates an OutboundChannel over st.
func NewOutboundChannel(st store.Store) *OutboundChannel {
	return &OutboundChannel{store: st}
}

// CreateMsgC encrypts payload for the peer named by addressbookID, signed by
// signKey, and returns the wire-ready msgC.
func (o *OutboundChannel) CreateMsgC(ctx context.Context, addressbookID string, signKey ed25519.PrivateKey, payload []byte) ([]byte, error) {
	entry, err := o.store.AddressBook().Get(ctx, addressbookID)
	if err != nil {
		return nil, err
	}

	var theirRecord store.ChannelRecord
	if err := json.Unmarshal(entry.TheirChannelRecord, &theirRecord); err != nil {
		return nil, fmt.Errorf("%w: their channel record: %v", ErrCorruptChannel, err)
	}
	if len(theirRecord.ChannelPubkey) != 32 || len(theirRecord.CIDKey) != 32 {
		return nil, fmt.Errorf("%w: their channel record has bad key lengths", ErrCorruptChannel)
	}

	seqnum, err := o.store.PrivateChannels().NextSeqnum(ctx, addressbookID)
	if err != nil {
		return nil, err
	}

	pubkey2, priv2, err := primitives.GenerateBoxKeyPair()
	if err != nil {
		return nil, fmt.Errorf("channel: generate ephemeral key: %w", err)
	}

	var seqnumBytes [8]byte
	binary.BigEndian.PutUint64(seqnumBytes[:], uint64(seqnum))
	signedPubkey2 := primitives.Sign(signKey, append([]byte(ceAuthPrefix), pubkey2[:]...))
	msgE := append(append([]byte{}, seqnumBytes[:]...), wire.Netstring(signedPubkey2)...)
	msgE = append(msgE, payload...)

	msgDNonce, err := randomNonce()
	if err != nil {
		return nil, err
	}
	var channelPub, priv2Arr [32]byte
	copy(channelPub[:], theirRecord.ChannelPubkey)
	priv2Arr = *priv2
	ciphertext := primitives.Box(msgE, msgDNonce, &channelPub, &priv2Arr)
	msgD := append(append([]byte{}, pubkey2[:]...), append(msgDNonce[:], ciphertext...)...)

	hMsgD := primitives.SHA256(msgD)
	cidBoxPlain := append(append([]byte{}, seqnumBytes[:]...), hMsgD...)
	cidBoxPlain = append(cidBoxPlain, theirRecord.ChannelPubkey...)

	cidBoxNonce, err := randomNonce()
	if err != nil {
		return nil, err
	}
	var cidKeyArr [32]byte
	copy(cidKeyArr[:], theirRecord.CIDKey)
	cidBoxCiphertext := primitives.SecretBox(cidBoxPlain, cidBoxNonce, &cidKeyArr)
	cidBox := append(append([]byte{}, cidBoxNonce[:]...), cidBoxCiphertext...)

	cidToken := buildCIDToken(theirRecord.CIDKey, seqnum)

	msgC := append([]byte(msgCPrefix), cidToken...)
	msgC = append(msgC, wire.Netstring(cidBox)...)
	msgC = append(msgC, msgD...)
	metrics.MessagesSent.Inc()
	return msgC, nil
}

func randomNonce() (*[primitives.NonceSize]byte, error) {
	var n [primitives.NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, n[:]); err != nil {
		return nil, err
	}
	return &n, nil
}
