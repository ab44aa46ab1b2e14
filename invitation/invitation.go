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

// Package invitation implements the four-phase out-of-band pairing protocol
// (m1/m2/m2a/m3/destroy) that turns a shared pairing code into a durable,
// mutually-authenticated channel between two parties, delivered over a
// rendezvous.Bus. All messages on the wire are signed with a per-invitation
// key derived from the pairing code; they are neither encrypted nor version
// checked at that layer, and a party may see the same message more than
// once, so every handler here is written to be replay-safe.
package invitation

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/petrelay/core/crypto/primitives"
	"github.com/petrelay/core/internal/logger"
	"github.com/petrelay/core/internal/metrics"
	"github.com/petrelay/core/rendezvous"
	"github.com/petrelay/core/store"
	"github.com/petrelay/core/wire"
	"golang.org/x/crypto/curve25519"
)

func randRead(b []byte) (int, error) {
	return rand.Read(b)
}

// CorruptChannel is returned (and logged) when an inbound message fails
// signature verification or does not match the expected wire shape; the
// invitation is abandoned rather than retried.
var ErrCorruptChannel = errors.New("invitation: corrupt channel")

// ErrBindingFailure indicates an m2 body's embedded key-binding check did
// not match the temp keys actually exchanged — a sign of a relay
// substituting messages between two unrelated invitations.
var ErrBindingFailure = errors.New("invitation: binding failure")

// ErrDuplicateCode is returned by StartInvitation when the derived invite id
// is already in use by a pending invitation.
var ErrDuplicateCode = errors.New("invitation: code already in use")

var validMessage = regexp.MustCompile(`^r0:[0-9a-f]+$`)

// stretch derives the 32-byte Ed25519 seed used as this invitation's signing
// identity from the shared pairing code.
func stretch(code string) ([]byte, error) {
	return primitives.HKDF([]byte("stretched-"+code), 32, "")
}

// TransportSeed is the caller-supplied information about one way to reach
// this party, before an RRID mailbox token has been minted for it.
type TransportSeed struct {
	TransportID string
	STID        []byte
	STIDPub     []byte
	BoxPubkey   []byte // transport mailbox's X25519 encryption public key
}

type privateChannelSeed struct {
	SignKey           []byte   `json:"my_signkey"`
	CIDKey            []byte   `json:"my_cid_key"`
	OldChannelPrivkey []byte   `json:"my_old_channel_privkey"`
	NewChannelPrivkey []byte   `json:"my_new_channel_privkey"`
	TransportIDs      []string `json:"transport_ids"`
}

// Manager owns every in-progress invitation and the rendezvous subscriptions
// that feed them.
type Manager struct {
	store store.Store
	bus   rendezvous.Bus
	log   logger.Logger

	unsubs map[string]func()
}

// NewManager creates a Manager over the given store and rendezvous bus.
func NewManager(st store.Store, bus rendezvous.Bus, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Manager{store: st, bus: bus, log: log, unsubs: make(map[string]func())}
}

// ReadyPendingInvitations resubscribes to every invitation still on disk,
// e.g. after a process restart. Each subscription may immediately redeliver
// a batch of already-seen messages, which processMessages handles
// idempotently.
func (m *Manager) ReadyPendingInvitations(ctx context.Context) error {
	invs, err := m.store.Invitations().List(ctx)
	if err != nil {
		return err
	}
	for _, inv := range invs {
		m.subscribe(ctx, inv.InviteID)
	}
	return nil
}

func (m *Manager) subscribe(ctx context.Context, inviteID string) {
	if _, ok := m.unsubs[inviteID]; ok {
		return
	}
	unsub := m.bus.Subscribe(inviteID, func(d rendezvous.Delivery) {
		if err := m.MessagesReceived(ctx, d.InviteID, d.Messages); err != nil {
			m.log.Error("invitation: processing messages failed", logger.Field{Key: "invite_id", Value: inviteID}, logger.Field{Key: "error", Value: err.Error()})
		}
	})
	m.unsubs[inviteID] = unsub
}

func (m *Manager) unsubscribe(inviteID string) {
	if unsub, ok := m.unsubs[inviteID]; ok {
		unsub()
		delete(m.unsubs, inviteID)
	}
}

func (m *Manager) sendToAll(inviteID string, msg string) {
	m.bus.Send(inviteID, map[string]struct{}{msg: {}})
}

// StartInvitation begins a new pairing attempt under a shared code and
// sends the first message (m1). transports describes how this party can be
// reached once the channel exists; it is embedded verbatim in the channel
// record offered to the peer.
func (m *Manager) StartInvitation(ctx context.Context, petname, code string, transports []TransportSeed) (inviteID string, err error) {
	seed, err := stretch(code)
	if err != nil {
		return "", err
	}
	inviteSigner := ed25519.NewKeyFromSeed(seed)
	inviteID = hex.EncodeToString(inviteSigner.Public().(ed25519.PublicKey))

	if _, err := m.store.Invitations().Get(ctx, inviteID); err == nil {
		metrics.InvitationsAborted.WithLabelValues("duplicate_code").Inc()
		return "", ErrDuplicateCode
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	mySigningPriv, mySigningPub, err := primitives.GenerateSigningKey()
	if err != nil {
		return "", err
	}
	myCIDKey := make([]byte, 32)
	if _, err := randRead(myCIDKey); err != nil {
		return "", err
	}
	_, myTempPriv, err := primitives.GenerateBoxKeyPair()
	if err != nil {
		return "", err
	}
	channelPub, channelPriv, err := primitives.GenerateBoxKeyPair()
	if err != nil {
		return "", err
	}

	descriptors := make([]store.TransportDescriptor, 0, len(transports))
	tids := make([]string, 0, len(transports))
	for _, t := range transports {
		descriptors = append(descriptors, store.TransportDescriptor{TransportID: t.TransportID, STID: t.STID, STIDPub: t.STIDPub, BoxPubkey: t.BoxPubkey})
		tids = append(tids, t.TransportID)
	}
	sort.Strings(tids)

	channelRecord := store.ChannelRecord{
		ChannelPubkey: channelPub[:],
		CIDKey:        myCIDKey,
		Transports:    descriptors,
	}
	channelRecordJSON, err := json.Marshal(channelRecord)
	if err != nil {
		return "", err
	}

	privSeed := privateChannelSeed{
		SignKey:           mySigningPriv.Seed(),
		CIDKey:            myCIDKey,
		OldChannelPrivkey: channelPriv[:],
		NewChannelPrivkey: channelPriv[:],
		TransportIDs:      tids,
	}
	privSeedJSON, err := json.Marshal(privSeed)
	if err != nil {
		return "", err
	}
	_ = mySigningPub

	inv := &store.Invitation{
		InviteID:             inviteID,
		Petname:              petname,
		InviteKeySeed:        seed,
		MyTempPrivkey:        myTempPriv[:],
		MySigningKey:         mySigningPriv.Seed(),
		MyChannelRecord:      channelRecordJSON,
		MyPrivateChannelData: privSeedJSON,
		MyMessages:           "",
		TheirMessages:        "",
		NextExpectedMessage:  1,
	}
	if err := m.store.Invitations().Create(ctx, inv); err != nil {
		return "", err
	}

	m.subscribe(ctx, inviteID)

	i := &invitationTick{m: m, inv: inv, inviteSigner: inviteSigner}
	if err := i.sendFirstMessage(ctx); err != nil {
		return "", err
	}
	metrics.InvitationsStarted.Inc()
	metrics.InvitationsInFlight.Inc()
	return inviteID, nil
}

// MessagesReceived processes one batch of messages delivered for inviteID.
func (m *Manager) MessagesReceived(ctx context.Context, inviteID string, messages map[string]struct{}) error {
	inv, err := m.store.Invitations().Get(ctx, inviteID)
	if err != nil {
		return err
	}
	seed := inv.InviteKeySeed
	inviteSigner := ed25519.NewKeyFromSeed(seed)
	i := &invitationTick{m: m, inv: inv, inviteSigner: inviteSigner}
	return i.processMessages(ctx, messages)
}

// invitationTick is the short-lived per-message-batch processor; it mirrors
// what the original implementation built fresh from the database for every
// rendezvous delivery.
type invitationTick struct {
	m            *Manager
	inv          *store.Invitation
	inviteSigner ed25519.PrivateKey

	myMessages    map[string]struct{}
	theirMessages map[string]struct{}
	deleted       bool
}

func (t *invitationTick) loadSets() {
	t.myMessages = wire.SplitMessages(t.inv.MyMessages)
	t.theirMessages = wire.SplitMessages(t.inv.TheirMessages)
}

func (t *invitationTick) sendFirstMessage(ctx context.Context) error {
	t.loadSets()
	var priv [32]byte
	copy(priv[:], t.inv.MyTempPrivkey)
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return err
	}
	msg := append([]byte("i0:m1:"), pub...)
	t.signAndSend(msg, true)
	t.inv.MyMessages = wire.JoinMessages(t.myMessages)
	return t.m.store.Invitations().Update(ctx, t.inv)
}

func (t *invitationTick) signAndSend(msg []byte, persist bool) {
	signed := primitives.Sign(t.inviteSigner, msg)
	out := "r0:" + hex.EncodeToString(signed)
	if persist {
		t.myMessages[out] = struct{}{}
	}
	t.m.sendToAll(t.inv.InviteID, out)
}

func (t *invitationTick) processMessages(ctx context.Context, messages map[string]struct{}) error {
	t.loadSets()

	for msg := range t.myMessages {
		if _, ok := messages[msg]; !ok {
			t.m.sendToAll(t.inv.InviteID, msg)
		}
	}

	newMessages := wire.SetDifference(wire.SetDifference(messages, t.myMessages), t.theirMessages)

	bodies := make(map[string][]byte)
	for msg := range newMessages {
		if !validMessage.MatchString(msg) {
			t.m.unsubscribeCorrupt(t.inv.InviteID)
			metrics.InvitationsAborted.WithLabelValues("corrupt_channel").Inc()
			metrics.InvitationsInFlight.Dec()
			return ErrCorruptChannel
		}
		signed, err := hex.DecodeString(msg[len("r0:"):])
		if err != nil {
			t.m.unsubscribeCorrupt(t.inv.InviteID)
			metrics.InvitationsAborted.WithLabelValues("corrupt_channel").Inc()
			metrics.InvitationsInFlight.Dec()
			return ErrCorruptChannel
		}
		body, err := primitives.Verify(t.inviteSigner.Public().(ed25519.PublicKey), signed)
		if err != nil {
			t.m.unsubscribeCorrupt(t.inv.InviteID)
			metrics.InvitationsAborted.WithLabelValues("corrupt_channel").Inc()
			metrics.InvitationsInFlight.Dec()
			return fmt.Errorf("%w: %v", ErrCorruptChannel, err)
		}
		bodies[msg] = body
	}

	if t.inv.NextExpectedMessage == 1 {
		if body, ok := findPrefix(bodies, "i0:m1:"); ok {
			start := time.Now()
			err := t.processM1(ctx, body)
			metrics.InvitationPhaseDuration.WithLabelValues("m1").Observe(time.Since(start).Seconds())
			if err != nil {
				t.abort("binding_failure")
				return err
			}
		}
	}
	if t.inv.NextExpectedMessage == 2 {
		if body, ok := findPrefix(bodies, "i0:m2:"); ok {
			start := time.Now()
			err := t.processM2(ctx, body)
			metrics.InvitationPhaseDuration.WithLabelValues("m2").Observe(time.Since(start).Seconds())
			if err != nil {
				if errors.Is(err, ErrBindingFailure) {
					t.abort("binding_failure")
				} else {
					t.abort("corrupt_channel")
				}
				return err
			}
		}
	}
	if t.inv.NextExpectedMessage == 3 {
		if body, ok := findPrefix(bodies, "i0:m3:"); ok {
			start := time.Now()
			err := t.processM3(ctx, body)
			metrics.InvitationPhaseDuration.WithLabelValues("m3").Observe(time.Since(start).Seconds())
			if err != nil {
				t.abort("corrupt_channel")
				return err
			}
			metrics.InvitationsPaired.Inc()
			metrics.InvitationsInFlight.Dec()
		}
	}

	if t.deleted {
		// processM3 already deleted the invitation row; nothing left to update.
		return nil
	}
	t.inv.MyMessages = wire.JoinMessages(t.myMessages)
	t.inv.TheirMessages = wire.JoinMessages(wire.SetUnion(t.theirMessages, newMessages))
	return t.m.store.Invitations().Update(ctx, t.inv)
}

func findPrefix(bodies map[string][]byte, prefix string) ([]byte, bool) {
	for _, body := range bodies {
		if len(body) >= len(prefix) && string(body[:len(prefix)]) == prefix {
			return body[len(prefix):], true
		}
	}
	return nil, false
}

func (t *invitationTick) processM1(ctx context.Context, msg []byte) error {
	if len(msg) != 32 {
		return fmt.Errorf("%w: bad m1 payload length", ErrCorruptChannel)
	}
	var theirTempPub [32]byte
	copy(theirTempPub[:], msg)
	t.inv.TheirTempPubkey = theirTempPub[:]

	var myPriv [32]byte
	copy(myPriv[:], t.inv.MyTempPrivkey)
	myPubSlice, err := curve25519.X25519(myPriv[:], curve25519.Basepoint)
	if err != nil {
		return err
	}
	var myPub [32]byte
	copy(myPub[:], myPubSlice)

	nonce, err := primitives.RandomNonce()
	if err != nil {
		return err
	}
	var nonceArr [primitives.NonceSize]byte
	copy(nonceArr[:], nonce)

	var mySignSeed [32]byte
	copy(mySignSeed[:], t.inv.MySigningKey)
	mySigner := ed25519.NewKeyFromSeed(mySignSeed[:])

	signedBody := append(append(append([]byte{}, theirTempPub[:]...), myPub[:]...), t.inv.MyChannelRecord...)
	m2aSigned := primitives.Sign(mySigner, signedBody)
	m2aBody := append(append([]byte("i0:m2a:"), []byte(mySigner.Public().(ed25519.PublicKey))...), m2aSigned...)

	ciphertext := primitives.Box(m2aBody, &nonceArr, &theirTempPub, &myPriv)
	msg2 := append([]byte("i0:m2:"), append(nonce, ciphertext...)...)

	t.signAndSend(msg2, true)
	t.inv.NextExpectedMessage = 2
	return nil
}

func (t *invitationTick) processM2(ctx context.Context, msg []byte) error {
	if t.inv.TheirTempPubkey == nil {
		return fmt.Errorf("%w: m2 received before m1", ErrCorruptChannel)
	}
	if len(msg) < primitives.NonceSize {
		return fmt.Errorf("%w: m2 too short", ErrCorruptChannel)
	}
	nonce := msg[:primitives.NonceSize]
	ciphertext := msg[primitives.NonceSize:]
	var nonceArr [primitives.NonceSize]byte
	copy(nonceArr[:], nonce)

	var myPriv, theirTempPub [32]byte
	copy(myPriv[:], t.inv.MyTempPrivkey)
	copy(theirTempPub[:], t.inv.TheirTempPubkey)

	body, err := primitives.Open(ciphertext, &nonceArr, &theirTempPub, &myPriv)
	if err != nil {
		return fmt.Errorf("%w: m2 open failed: %v", ErrCorruptChannel, err)
	}
	if len(body) < len("i0:m2a:") || string(body[:len("i0:m2a:")]) != "i0:m2a:" {
		return fmt.Errorf("%w: expected i0:m2a:", ErrCorruptChannel)
	}
	rest := body[len("i0:m2a:"):]
	if len(rest) < ed25519.PublicKeySize {
		return fmt.Errorf("%w: m2a too short", ErrCorruptChannel)
	}
	theirVerfkey := ed25519.PublicKey(rest[:ed25519.PublicKeySize])
	signedBody := rest[ed25519.PublicKeySize:]

	innerBody, err := primitives.Verify(theirVerfkey, signedBody)
	if err != nil {
		return fmt.Errorf("%w: m2a signature: %v", ErrCorruptChannel, err)
	}
	if len(innerBody) < 64 {
		return fmt.Errorf("%w: m2a body too short", ErrCorruptChannel)
	}
	checkMyTempPubkey := innerBody[:32]
	checkTheirTempPubkey := innerBody[32:64]
	theirChannelRecordJSON := innerBody[64:]

	myPubSlice, err := curve25519.X25519(myPriv[:], curve25519.Basepoint)
	if err != nil {
		return err
	}
	if !bytesEqual(checkMyTempPubkey, myPubSlice) {
		return ErrBindingFailure
	}
	if !bytesEqual(checkTheirTempPubkey, t.inv.TheirTempPubkey) {
		return ErrBindingFailure
	}

	var theirChannelRecord store.ChannelRecord
	if err := json.Unmarshal(theirChannelRecordJSON, &theirChannelRecord); err != nil {
		return fmt.Errorf("%w: bad channel record json: %v", ErrCorruptChannel, err)
	}

	var me privateChannelSeed
	if err := json.Unmarshal(t.inv.MyPrivateChannelData, &me); err != nil {
		return err
	}

	addressbookID := t.inv.InviteID
	entry := &store.AddressBookEntry{
		ID:                   addressbookID,
		TheirVerfkey:         append([]byte{}, theirVerfkey...),
		MyChannelRecord:      append([]byte{}, t.inv.MyChannelRecord...),
		MyPrivateChannelData: append([]byte{}, t.inv.MyPrivateChannelData...),
		TheirChannelRecord:   append([]byte{}, theirChannelRecordJSON...),
		MyCIDKey:             append([]byte{}, me.CIDKey...),
		MySignKeySeed:        append([]byte{}, me.SignKey...),
		HighestInboundSeqnum: 0,
	}
	if err := t.m.store.AddressBook().Create(ctx, entry); err != nil {
		return err
	}

	pcd := &store.PrivateChannelData{
		ChannelID:        addressbookID,
		NewChannelPubkey: derivePubkey(me.NewChannelPrivkey),
		NewChannelPriv:   me.NewChannelPrivkey,
		OldChannelPubkey: derivePubkey(me.OldChannelPrivkey),
		OldChannelPriv:   me.OldChannelPrivkey,
		NextSeqnum:       0,
	}
	if err := t.m.store.PrivateChannels().Create(ctx, pcd); err != nil {
		return err
	}

	t.inv.AddressBookID = addressbookID

	ackNonce := make([]byte, 16)
	if _, err := randRead(ackNonce); err != nil {
		return err
	}
	msg3 := append([]byte("i0:m3:ACK-"), hex.EncodeToString(ackNonce)...)
	t.signAndSend(msg3, true)
	t.inv.NextExpectedMessage = 3
	return nil
}

func (t *invitationTick) processM3(ctx context.Context, msg []byte) error {
	if len(msg) < 4 || string(msg[:4]) != "ACK-" {
		return fmt.Errorf("%w: bad ACK", ErrCorruptChannel)
	}

	entry, err := t.m.store.AddressBook().Get(ctx, t.inv.AddressBookID)
	if err != nil {
		return err
	}
	entry.Acked = true
	if err := t.m.store.AddressBook().Update(ctx, entry); err != nil {
		return err
	}

	destroyNonce := make([]byte, 16)
	if _, err := randRead(destroyNonce); err != nil {
		return err
	}
	msg4 := append([]byte("i0:destroy:"), hex.EncodeToString(destroyNonce)...)
	t.signAndSend(msg4, false)

	if err := t.m.store.Invitations().Delete(ctx, t.inv.InviteID); err != nil {
		return err
	}
	t.deleted = true
	t.m.unsubscribe(t.inv.InviteID)
	return nil
}

// abort records an invitation that will not reach m3 pairing.
func (t *invitationTick) abort(reason string) {
	metrics.InvitationsAborted.WithLabelValues(reason).Inc()
	metrics.InvitationsInFlight.Dec()
}

func (m *Manager) unsubscribeCorrupt(inviteID string) {
	cerr := logger.NewCoreError(logger.ErrCodeInvalidInput, "invitation channel is corrupt", ErrCorruptChannel).
		WithDetails("invite_id", inviteID)
	m.log.Error("invitation: channel is corrupt, abandoning",
		logger.Field{Key: "invite_id", Value: inviteID}, logger.Error(cerr))
	m.unsubscribe(inviteID)
}

func derivePubkey(priv []byte) []byte {
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		// priv was generated by primitives.GenerateBoxKeyPair and stored
		// verbatim; a malformed scalar here means the stored key material
		// itself is corrupt, which is unrecoverable.
		panic("invitation: corrupt channel private key: " + err.Error())
	}
	return pub
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
