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

// Package memory is an in-process mailbox bus keyed by transport id,
// carrying raw msgA bytes. Unlike rendezvous/memory (which delivers sets of
// invitation message ids), a mailbox delivers ordered msgA blobs one at a
// time and never deduplicates: replay suppression is the channel layer's
// job, not the transport's.
package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/petrelay/core/internal/logger"
)

type subscriber struct {
	id int
	fn func(msgA []byte)
}

// Mailbox is an in-process transport mailbox.
type Mailbox struct {
	mu     sync.Mutex
	nextID int
	subs   map[string][]subscriber
}

// New creates an empty Mailbox.
func New() *Mailbox {
	return &Mailbox{subs: make(map[string][]subscriber)}
}

// Post delivers msgA to every current subscriber of transportID.
func (m *Mailbox) Post(transportID string, msgA []byte) {
	m.mu.Lock()
	targets := append([]subscriber(nil), m.subs[transportID]...)
	m.mu.Unlock()

	deliveryID := uuid.NewString()
	logger.Debug("mailbox post",
		logger.String("transport_id", transportID),
		logger.String("delivery_id", deliveryID),
		logger.Int("subscribers", len(targets)),
	)
	for _, s := range targets {
		s.fn(msgA)
	}
}

// Subscribe registers fn to receive every msgA posted to transportID from
// now on. The returned func cancels the subscription.
func (m *Mailbox) Subscribe(transportID string, fn func(msgA []byte)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs[transportID] = append(m.subs[transportID], subscriber{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.subs[transportID]
		for i, s := range list {
			if s.id == id {
				m.subs[transportID] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}
