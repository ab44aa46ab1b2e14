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

package store

import "time"

// Invitation is the durable state of one in-progress or completed pairing
// attempt, keyed by InviteID.
type Invitation struct {
	InviteID             string
	Petname              string
	InviteKeySeed        []byte // the stretched pairing-code seed the invite signing key was derived from
	MyTempPrivkey        []byte
	MySigningKey         []byte
	MyChannelRecord      []byte // serialized ChannelRecord, readable to the peer
	MyPrivateChannelData []byte // serialized PrivateChannelData, never shared
	TheirTempPubkey      []byte // set once M1 (or M2) is received
	MyMessages           string // comma-joined set of hex message IDs sent so far
	TheirMessages        string // comma-joined set of hex message IDs received so far
	NextExpectedMessage  int
	AddressBookID        string // set once the invitation completes
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AddressBookEntry is a completed pairing: a durable channel to a specific
// peer, created by an Invitation reaching m3/destroy.
type AddressBookEntry struct {
	ID                    string
	TheirVerfkey          []byte
	MyChannelRecord       []byte
	MyPrivateChannelData  []byte
	TheirChannelRecord    []byte
	MyCIDKey              []byte // denormalized from MyPrivateChannelData, used by every inbound trial-decrypt
	MySignKeySeed         []byte // denormalized signing key used to authenticate outbound msgE
	HighestInboundSeqnum  int64  // replay guard: the highest seqnum accepted from this peer so far
	Acked                 bool   // true once the peer's M3 ACK has been observed
	TheyUsedNewChannelKey bool   // true if the peer's winning msgC candidate was their "new" channel key
	CreatedAt             time.Time
}

// ChannelRecord is the public half of a channel: what a peer needs in order
// to send to us (our current channel pubkey plus reachability information).
type ChannelRecord struct {
	ChannelPubkey []byte
	CIDKey        []byte
	Transports    []TransportDescriptor
}

// TransportDescriptor names one way to reach the holder of a ChannelRecord:
// a transport identifier, the RRID mailbox token (and the public key it was
// minted under) a sender rerandomizes before each use, and the mailbox's
// encryption public key a sender seals msgA to so the token and msgC never
// cross the wire in the clear.
type TransportDescriptor struct {
	TransportID string
	STID        []byte // encoded rrid.Token
	STIDPub     []byte // encoded rrid.PublicKey
	BoxPubkey   []byte // mailbox's X25519 encryption public key
}

// PrivateChannelData is the half of a channel only its owner ever sees: the
// current and (during rotation) previous channel private keys, plus the
// seqnum counter used to build CIDTokens.
type PrivateChannelData struct {
	ChannelID        string
	NewChannelPubkey []byte
	NewChannelPriv   []byte
	OldChannelPubkey []byte // nil once no rotation has happened yet
	OldChannelPriv   []byte
	NextSeqnum       int64
}

// Notice describes one durable mutation, delivered to observers only after
// the transaction containing it has committed.
type Notice struct {
	Table    string
	Action   string // "create", "update", "delete"
	ID       string
	NewValue interface{}
}
