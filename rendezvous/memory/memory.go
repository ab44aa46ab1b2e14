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

// Package memory is an in-process rendezvous.Bus, used for tests and for
// pairing two parties running in the same process. It keeps no message
// history: a subscriber only sees deliveries posted after it subscribes,
// matching how a real rendezvous relay would behave for a newly connected
// listener.
package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/petrelay/core/rendezvous"
)

type subscriber struct {
	id int
	fn func(rendezvous.Delivery)
}

// Bus is an in-process rendezvous.Bus.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string][]subscriber
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]subscriber)}
}

func (b *Bus) Send(inviteID string, messages map[string]struct{}) {
	if len(messages) == 0 {
		return
	}
	b.mu.Lock()
	targets := append([]subscriber(nil), b.subs[inviteID]...)
	b.mu.Unlock()

	deliveryID := uuid.NewString()
	for _, s := range targets {
		s.fn(rendezvous.Delivery{InviteID: inviteID, Messages: messages, DeliveryID: deliveryID})
	}
}

func (b *Bus) Subscribe(inviteID string, fn func(rendezvous.Delivery)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[inviteID] = append(b.subs[inviteID], subscriber{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[inviteID]
		for i, s := range list {
			if s.id == id {
				b.subs[inviteID] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}
