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

// Package rendezvous defines the per-invite-id message bus the invitation
// protocol sends and receives over. The real network-facing rendezvous
// service is out of scope for this core; this package only defines the
// interface it must satisfy and an in-process reference implementation.
package rendezvous

// Delivery is one batch of messages posted to an invite id. Messages carry
// set semantics at this layer: re-delivering an already-delivered message
// for the same invite id is a no-op. DeliveryID correlates one Send call
// across a bus's subscribers in logs; it carries no protocol meaning.
type Delivery struct {
	InviteID   string
	Messages   map[string]struct{}
	DeliveryID string
}

// Bus is what the invitation manager sends to and receives from.
type Bus interface {
	// Send posts messages to everyone subscribed to inviteID.
	Send(inviteID string, messages map[string]struct{})

	// Subscribe registers fn to be called with every Delivery posted to
	// inviteID from now on. The returned func cancels the subscription.
	Subscribe(inviteID string, fn func(Delivery)) (unsubscribe func())
}
