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
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrelay/core/store"
)

func TestInvitationCreateGetUpdateDelete(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	inv := &store.Invitation{InviteID: "abc", Petname: "alice", InviteKeySeed: []byte("seed")}
	require.NoError(t, s.Invitations().Create(ctx, inv))

	// Duplicate create fails.
	assert.Error(t, s.Invitations().Create(ctx, inv))

	got, err := s.Invitations().Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Petname)
	assert.Equal(t, []byte("seed"), got.InviteKeySeed)

	// Mutating the returned value must not affect the stored copy.
	got.Petname = "mutated"
	got2, err := s.Invitations().Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "alice", got2.Petname)

	got2.Petname = "bob"
	require.NoError(t, s.Invitations().Update(ctx, got2))

	got3, err := s.Invitations().Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "bob", got3.Petname)
	assert.False(t, got3.UpdatedAt.IsZero())

	require.NoError(t, s.Invitations().Delete(ctx, "abc"))
	_, err = s.Invitations().Get(ctx, "abc")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.Invitations().Delete(ctx, "abc"), store.ErrNotFound)
	assert.ErrorIs(t, s.Invitations().Update(ctx, &store.Invitation{InviteID: "abc"}), store.ErrNotFound)
}

func TestInvitationList(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Invitations().Create(ctx, &store.Invitation{InviteID: "a"}))
	require.NoError(t, s.Invitations().Create(ctx, &store.Invitation{InviteID: "b"}))

	list, err := s.Invitations().List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestAddressBookCreateGetUpdateList(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	entry := &store.AddressBookEntry{ID: "peer1", TheirVerfkey: []byte("vk")}
	require.NoError(t, s.AddressBook().Create(ctx, entry))
	assert.Error(t, s.AddressBook().Create(ctx, entry))

	got, err := s.AddressBook().Get(ctx, "peer1")
	require.NoError(t, err)
	assert.Equal(t, []byte("vk"), got.TheirVerfkey)

	got.HighestInboundSeqnum = 42
	require.NoError(t, s.AddressBook().Update(ctx, got))

	got2, err := s.AddressBook().Get(ctx, "peer1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got2.HighestInboundSeqnum)

	_, err = s.AddressBook().Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.AddressBook().List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPrivateChannelNextSeqnumIsSerialized(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.PrivateChannels().Create(ctx, &store.PrivateChannelData{ChannelID: "c1"}))

	const n = 100
	var wg sync.WaitGroup
	seen := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.PrivateChannels().NextSeqnum(ctx, "c1")
			require.NoError(t, err)
			seen <- v
		}()
	}
	wg.Wait()
	close(seen)

	values := make(map[int64]bool)
	for v := range seen {
		assert.False(t, values[v], "seqnum %d allocated twice", v)
		values[v] = true
	}
	assert.Len(t, values, n)

	_, err := s.PrivateChannels().NextSeqnum(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPrivateChannelGetUpdateList(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	pcd := &store.PrivateChannelData{ChannelID: "c2", NewChannelPubkey: []byte("pub")}
	require.NoError(t, s.PrivateChannels().Create(ctx, pcd))
	assert.Error(t, s.PrivateChannels().Create(ctx, pcd))

	got, err := s.PrivateChannels().Get(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, []byte("pub"), got.NewChannelPubkey)

	got.OldChannelPubkey = got.NewChannelPubkey
	got.NewChannelPubkey = []byte("pub2")
	require.NoError(t, s.PrivateChannels().Update(ctx, got))

	got2, err := s.PrivateChannels().Get(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, []byte("pub2"), got2.NewChannelPubkey)
	assert.Equal(t, []byte("pub"), got2.OldChannelPubkey)

	list, err := s.PrivateChannels().List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSubscribeReceivesNoticesAfterCommit(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	notices := make(chan store.Notice, 8)
	unsub := s.Subscribe(func(n store.Notice) { notices <- n })
	defer unsub()

	require.NoError(t, s.Invitations().Create(ctx, &store.Invitation{InviteID: "sub1"}))

	n := <-notices
	assert.Equal(t, "invitations", n.Table)
	assert.Equal(t, "create", n.Action)
	assert.Equal(t, "sub1", n.ID)
}

func TestPing(t *testing.T) {
	s := NewStore()
	defer s.Close()
	assert.NoError(t, s.Ping(context.Background()))
}
