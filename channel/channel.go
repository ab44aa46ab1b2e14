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

// Package channel implements the durable messaging layer (C4 sender / C5
// receiver) that an established pairing (an addressbook entry) uses to
// exchange payloads: nested msgC/msgD/msgE envelopes, per-message
// unlinkable channel identifiers, and dual old/new channel keys so a
// receiver can rotate its channel key without losing reachability.
//
// msgC := "c0:" || CIDToken(32) || netstring(CIDBox) || msgD
// msgD := pubkey2(32) || box(to=channel-current, from=pubkey2)(msgE)
// msgE := seqnum(8, big-endian) || netstring(sign(by=sender-signkey, "ce0:"+pubkey2)) || payload
package channel

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/petrelay/core/crypto/primitives"
	"github.com/petrelay/core/internal/metrics"
	"github.com/petrelay/core/store"
	"github.com/petrelay/core/wire"
)

const cidTokenInfo = "petmail.org/v1/CIDToken"
const msgCPrefix = "c0:"
const ceAuthPrefix = "ce0:"

// ErrCorruptChannel marks a msgC/msgD/msgE whose shape is structurally
// invalid (bad prefix, truncated netstring).
var ErrCorruptChannel = errors.New("channel: corrupt channel")

// ErrReplay marks a seqnum that is not strictly greater than the highest
// one already accepted for this sender.
var ErrReplay = errors.New("channel: replay")

// ErrUnknownChannel is returned when no addressbook entry's CIDKey can
// decrypt the CIDBox, and no channel private key can open msgD.
var ErrUnknownChannel = errors.New("channel: unknown channel")

// ErrWrongVerfkey marks an msgE whose "ce0:"-prefixed signature does not
// bind to the pubkey2 actually used for the enclosing box.
var ErrWrongVerfkey = errors.New("channel: wrong verfkey")

func buildCIDToken(cidKey []byte, seqnum int64) []byte {
	var seqnumBytes [8]byte
	binary.BigEndian.PutUint64(seqnumBytes[:], uint64(seqnum))
	ikm := append(append([]byte{}, cidKey...), seqnumBytes[:]...)
	out, err := primitives.HKDF(ikm, 32, cidTokenInfo)
	if err != nil {
		panic("channel: HKDF failure building CIDToken: " + err.Error())
	}
	return out
}

func decryptCIDBox(cidKey, cidBox []byte) (seqnum int64, hMsgD, channelPubkey []byte, err error) {
	if len(cidBox) < primitives.NonceSize {
		return 0, nil, nil, fmt.Errorf("%w: CIDBox too short", ErrCorruptChannel)
	}
	nonce := cidBox[:primitives.NonceSize]
	ciphertext := cidBox[primitives.NonceSize:]
	var nonceArr [primitives.NonceSize]byte
	copy(nonceArr[:], nonce)
	var key [32]byte
	copy(key[:], cidKey)

	plain, err := primitives.SecretOpen(ciphertext, &nonceArr, &key)
	if err != nil {
		return 0, nil, nil, err // wrong key, caller tries the next candidate
	}
	if len(plain) != 8+32+32 {
		return 0, nil, nil, fmt.Errorf("%w: CIDBox payload malformed", ErrCorruptChannel)
	}
	seqnum = int64(binary.BigEndian.Uint64(plain[:8]))
	hMsgD = plain[8:40]
	channelPubkey = plain[40:72]
	return seqnum, hMsgD, channelPubkey, nil
}

// ParseMsgC splits a wire msgC into its CIDToken, CIDBox, and msgD parts.
func ParseMsgC(msgC []byte) (cidToken, cidBox, msgD []byte, err error) {
	if len(msgC) < len(msgCPrefix)+32 || string(msgC[:len(msgCPrefix)]) != msgCPrefix {
		return nil, nil, nil, fmt.Errorf("%w: bad msgC prefix", ErrCorruptChannel)
	}
	rest := msgC[len(msgCPrefix):]
	cidToken = rest[:32]
	cidBoxNetstring := rest[32:]
	cidBox, msgD, err = wire.SplitNetstring(cidBoxNetstring)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrCorruptChannel, err)
	}
	return cidToken, cidBox, msgD, nil
}

// findChannelFromCIDBox trial-decrypts cidBox against every addressbook
// entry's CIDKey. A seqnum that is not strictly greater than the entry's
// recorded high-water mark is treated as a replay and skipped, exactly as
// a wrong key would be, rather than failing the whole lookup.
func findChannelFromCIDBox(ctx context.Context, st store.Store, cidBox []byte) (entry *store.AddressBookEntry, channelPubkey []byte, err error) {
	entries, err := st.AddressBook().List(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		seqnum, _, chPub, err := decryptCIDBox(e.MyCIDKey, cidBox)
		if err != nil {
			continue
		}
		if seqnum <= e.HighestInboundSeqnum {
			continue
		}
		return e, chPub, nil
	}
	return nil, nil, nil
}

type keyCandidate struct {
	priv      []byte
	pub       []byte
	channelID string
	which     string
}

func buildChannelKeylist(ctx context.Context, st store.Store, knownChannelID string) ([]keyCandidate, error) {
	var channels []*store.PrivateChannelData
	if knownChannelID != "" {
		pcd, err := st.PrivateChannels().Get(ctx, knownChannelID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		channels = []*store.PrivateChannelData{pcd}
	} else {
		var err error
		channels, err = st.PrivateChannels().List(ctx)
		if err != nil {
			return nil, err
		}
	}

	var out []keyCandidate
	for _, pcd := range channels {
		// new is tried before old: decryptMsgD takes the first match in list order.
		out = append(out,
			keyCandidate{priv: pcd.NewChannelPriv, pub: pcd.NewChannelPubkey, channelID: pcd.ChannelID, which: "new"},
			keyCandidate{priv: pcd.OldChannelPriv, pub: pcd.OldChannelPubkey, channelID: pcd.ChannelID, which: "old"},
		)
	}
	return out, nil
}

func filterOnKnownChannelPubkey(keylist []keyCandidate, knownChannelPubkey []byte) []keyCandidate {
	if knownChannelPubkey == nil {
		return keylist
	}
	var out []keyCandidate
	for _, k := range keylist {
		if bytesEqual(k.pub, knownChannelPubkey) {
			out = append(out, k)
		}
	}
	return out
}

func decryptMsgD(msgD []byte, keylist []keyCandidate) (cand *keyCandidate, pubkey2, msgE []byte, err error) {
	if len(msgD) < 32 {
		return nil, nil, nil, fmt.Errorf("%w: msgD too short", ErrCorruptChannel)
	}
	pubkey2 = msgD[:32]
	enc := msgD[32:]
	if len(enc) < primitives.NonceSize {
		return nil, nil, nil, fmt.Errorf("%w: msgD missing nonce", ErrCorruptChannel)
	}
	nonce := enc[:primitives.NonceSize]
	ciphertext := enc[primitives.NonceSize:]
	var nonceArr [primitives.NonceSize]byte
	copy(nonceArr[:], nonce)
	var pub2 [32]byte
	copy(pub2[:], pubkey2)

	for i := range keylist {
		var priv [32]byte
		copy(priv[:], keylist[i].priv)
		plain, err := primitives.Open(ciphertext, &nonceArr, &pub2, &priv)
		if err == nil {
			return &keylist[i], pubkey2, plain, nil
		}
	}
	return nil, nil, nil, nil
}

// checkMsgE verifies an msgE's seqnum (against the replay high-water mark)
// and its "ce0:"-prefixed binding signature, returning the payload.
func checkMsgE(msgE, pubkey2 []byte, senderVerfkey ed25519.PublicKey, highestSeqnum int64) (seqnum int64, payload []byte, err error) {
	if len(msgE) < 8 {
		return 0, nil, fmt.Errorf("%w: msgE too short", ErrCorruptChannel)
	}
	seqnum = int64(binary.BigEndian.Uint64(msgE[:8]))
	if seqnum <= highestSeqnum {
		return 0, nil, ErrReplay
	}
	signedNetstring, rest, err := wire.SplitNetstring(msgE[8:])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrCorruptChannel, err)
	}
	m, err := primitives.VerifyWithPrefix(senderVerfkey, signedNetstring, ceAuthPrefix)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrWrongVerfkey, err)
	}
	if !bytesEqual(m, pubkey2) {
		return 0, nil, ErrWrongVerfkey
	}
	return seqnum, rest, nil
}

// validateMsgC cross-checks the CIDBox against msgE and msgD so that a
// receiver cannot be fooled by an attacker replaying one channel's CIDBox
// alongside a different channel's msgD.
func validateMsgC(cidKey, channelPubkey []byte, seqnumFromMsgE int64, cidBox, cidToken, msgD []byte) error {
	seqnumFromCIDBox, hMsgD, channelPubkeyFromCIDBox, err := decryptCIDBox(cidKey, cidBox)
	if err != nil {
		return fmt.Errorf("%w: CIDBox no longer decrypts: %v", ErrCorruptChannel, err)
	}
	if seqnumFromCIDBox != seqnumFromMsgE {
		return fmt.Errorf("%w: CIDBox seqnum mismatch vs msgE", ErrCorruptChannel)
	}
	if !bytesEqual(channelPubkeyFromCIDBox, channelPubkey) {
		return fmt.Errorf("%w: CIDBox pubkey mismatch vs msgD", ErrCorruptChannel)
	}
	sum := sha256.Sum256(msgD)
	if !bytesEqual(hMsgD, sum[:]) {
		return fmt.Errorf("%w: CIDBox digest mismatch vs msgD", ErrCorruptChannel)
	}
	if !bytesEqual(buildCIDToken(cidKey, seqnumFromMsgE), cidToken) {
		return fmt.Errorf("%w: CIDToken mismatch", ErrCorruptChannel)
	}
	return nil
}

// ChannelManager receives inbound msgCs from whatever transport delivered
// them and routes each to the addressbook entry (channel) it belongs to.
type ChannelManager struct {
	store store.Store
}

// NewChannelManager creates a ChannelManager over st.
func NewChannelManager(st store.Store) *ChannelManager {
	return &ChannelManager{store: st}
}

// ProcessMsgC decrypts and validates an inbound msgC, advances the
// channel's replay high-water mark, and returns the channel id plus the
// decrypted payload.
func (c *ChannelManager) ProcessMsgC(ctx context.Context, msgC []byte) (channelID string, payload []byte, err error) {
	start := time.Now()
	defer func() { metrics.ChannelProcessingDuration.Observe(time.Since(start).Seconds()) }()

	cidToken, cidBox, msgD, err := ParseMsgC(msgC)
	if err != nil {
		return "", nil, err
	}

	entry, channelPubkey, err := findChannelFromCIDBox(ctx, c.store, cidBox)
	if err != nil {
		return "", nil, err
	}
	knownChannelID := ""
	if entry != nil {
		knownChannelID = entry.ID
	}

	keylist, err := buildChannelKeylist(ctx, c.store, knownChannelID)
	if err != nil {
		return "", nil, err
	}
	keylist = filterOnKnownChannelPubkey(keylist, channelPubkey)

	cand, pubkey2, msgE, err := decryptMsgD(msgD, keylist)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("box_open").Inc()
		return "", nil, err
	}
	if cand == nil {
		metrics.UnknownChannelDrops.Inc()
		return "", nil, ErrUnknownChannel
	}

	if entry == nil {
		entry, err = c.store.AddressBook().Get(ctx, cand.channelID)
		if err != nil {
			return "", nil, err
		}
	}

	seqnum, decodedPayload, err := checkMsgE(msgE, pubkey2, ed25519.PublicKey(entry.TheirVerfkey), entry.HighestInboundSeqnum)
	if err != nil {
		if errors.Is(err, ErrReplay) {
			metrics.ReplaysDropped.Inc()
		} else {
			metrics.CryptoErrors.WithLabelValues("verify").Inc()
		}
		return "", nil, err
	}

	if err := validateMsgC(entry.MyCIDKey, cand.pub, seqnum, cidBox, cidToken, msgD); err != nil {
		return "", nil, err
	}

	entry.HighestInboundSeqnum = seqnum
	entry.TheyUsedNewChannelKey = cand.which == "new"
	if err := c.store.AddressBook().Update(ctx, entry); err != nil {
		return "", nil, err
	}

	metrics.MessagesReceived.Inc()
	metrics.ChannelMessageSize.Observe(float64(len(decodedPayload)))
	return entry.ID, decodedPayload, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
