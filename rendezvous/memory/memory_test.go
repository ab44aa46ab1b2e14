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

package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/petrelay/core/rendezvous"
)

func TestSendDeliversToSubscriber(t *testing.T) {
	b := New()

	var got rendezvous.Delivery
	unsub := b.Subscribe("invite1", func(d rendezvous.Delivery) { got = d })
	defer unsub()

	b.Send("invite1", map[string]struct{}{"m1": {}})

	assert.Equal(t, "invite1", got.InviteID)
	assert.Contains(t, got.Messages, "m1")
	assert.NotEmpty(t, got.DeliveryID)
}

func TestSendIgnoresUnrelatedInviteID(t *testing.T) {
	b := New()

	called := false
	unsub := b.Subscribe("invite1", func(d rendezvous.Delivery) { called = true })
	defer unsub()

	b.Send("invite2", map[string]struct{}{"m1": {}})
	assert.False(t, called)
}

func TestSendWithNoMessagesIsNoop(t *testing.T) {
	b := New()

	called := false
	unsub := b.Subscribe("invite1", func(d rendezvous.Delivery) { called = true })
	defer unsub()

	b.Send("invite1", map[string]struct{}{})
	assert.False(t, called)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	calls := 0
	unsub := b.Subscribe("invite1", func(d rendezvous.Delivery) { calls++ })

	b.Send("invite1", map[string]struct{}{"m1": {}})
	unsub()
	b.Send("invite1", map[string]struct{}{"m2": {}})

	assert.Equal(t, 1, calls)
}

func TestLateSubscriberMissesPriorDeliveries(t *testing.T) {
	b := New()
	b.Send("invite1", map[string]struct{}{"m1": {}})

	called := false
	unsub := b.Subscribe("invite1", func(d rendezvous.Delivery) { called = true })
	defer unsub()

	assert.False(t, called)
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	b := New()

	var a, c int
	unsubA := b.Subscribe("invite1", func(d rendezvous.Delivery) { a++ })
	unsubC := b.Subscribe("invite1", func(d rendezvous.Delivery) { c++ })
	defer unsubA()
	defer unsubC()

	b.Send("invite1", map[string]struct{}{"m1": {}})
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, c)
}
