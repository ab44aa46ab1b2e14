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

// Package memory is an in-memory store.Store implementation, used by tests
// and single-process deployments. All mutating methods copy in and out so
// callers can never observe or corrupt another goroutine's in-flight value.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/petrelay/core/store"
)

// Store implements store.Store with mutex-guarded maps.
type Store struct {
	mu       sync.RWMutex
	invites  map[string]*store.Invitation
	book     map[string]*store.AddressBookEntry
	channels map[string]*store.PrivateChannelData

	notifier *store.Notifier

	invStore     *invitationStore
	bookStore    *addressBookStore
	channelStore *privateChannelStore
}

// NewStore creates a ready, empty in-memory store.
func NewStore() *Store {
	s := &Store{
		invites:  make(map[string]*store.Invitation),
		book:     make(map[string]*store.AddressBookEntry),
		channels: make(map[string]*store.PrivateChannelData),
		notifier: store.NewNotifier(),
	}
	s.invStore = &invitationStore{s: s}
	s.bookStore = &addressBookStore{s: s}
	s.channelStore = &privateChannelStore{s: s}
	return s
}

func (s *Store) Invitations() store.InvitationStore         { return s.invStore }
func (s *Store) AddressBook() store.AddressBookStore         { return s.bookStore }
func (s *Store) PrivateChannels() store.PrivateChannelStore { return s.channelStore }

func (s *Store) Subscribe(observer func(store.Notice)) func() {
	return s.notifier.Subscribe(observer)
}

func (s *Store) Close() error {
	s.notifier.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

type invitationStore struct{ s *Store }

func (i *invitationStore) Create(ctx context.Context, inv *store.Invitation) error {
	i.s.mu.Lock()
	if _, exists := i.s.invites[inv.InviteID]; exists {
		i.s.mu.Unlock()
		return fmt.Errorf("store: invitation already exists: %s", inv.InviteID)
	}
	cp := cloneInvitation(inv)
	i.s.invites[inv.InviteID] = cp
	i.s.mu.Unlock()

	i.s.notifier.Notify(store.Notice{Table: "invitations", Action: "create", ID: inv.InviteID, NewValue: cloneInvitation(cp)})
	return nil
}

func (i *invitationStore) Get(ctx context.Context, inviteID string) (*store.Invitation, error) {
	i.s.mu.RLock()
	defer i.s.mu.RUnlock()
	inv, ok := i.s.invites[inviteID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneInvitation(inv), nil
}

func (i *invitationStore) Update(ctx context.Context, inv *store.Invitation) error {
	i.s.mu.Lock()
	if _, ok := i.s.invites[inv.InviteID]; !ok {
		i.s.mu.Unlock()
		return store.ErrNotFound
	}
	inv.UpdatedAt = time.Now()
	cp := cloneInvitation(inv)
	i.s.invites[inv.InviteID] = cp
	i.s.mu.Unlock()

	i.s.notifier.Notify(store.Notice{Table: "invitations", Action: "update", ID: inv.InviteID, NewValue: cloneInvitation(cp)})
	return nil
}

func (i *invitationStore) Delete(ctx context.Context, inviteID string) error {
	i.s.mu.Lock()
	if _, ok := i.s.invites[inviteID]; !ok {
		i.s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(i.s.invites, inviteID)
	i.s.mu.Unlock()

	i.s.notifier.Notify(store.Notice{Table: "invitations", Action: "delete", ID: inviteID})
	return nil
}

func (i *invitationStore) List(ctx context.Context) ([]*store.Invitation, error) {
	i.s.mu.RLock()
	defer i.s.mu.RUnlock()
	out := make([]*store.Invitation, 0, len(i.s.invites))
	for _, inv := range i.s.invites {
		out = append(out, cloneInvitation(inv))
	}
	return out, nil
}

type addressBookStore struct{ s *Store }

func (a *addressBookStore) Create(ctx context.Context, entry *store.AddressBookEntry) error {
	a.s.mu.Lock()
	if _, exists := a.s.book[entry.ID]; exists {
		a.s.mu.Unlock()
		return fmt.Errorf("store: address book entry already exists: %s", entry.ID)
	}
	cp := cloneAddressBookEntry(entry)
	a.s.book[entry.ID] = cp
	a.s.mu.Unlock()

	a.s.notifier.Notify(store.Notice{Table: "addressbook", Action: "create", ID: entry.ID, NewValue: cloneAddressBookEntry(cp)})
	return nil
}

func (a *addressBookStore) Get(ctx context.Context, id string) (*store.AddressBookEntry, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	entry, ok := a.s.book[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneAddressBookEntry(entry), nil
}

func (a *addressBookStore) Update(ctx context.Context, entry *store.AddressBookEntry) error {
	a.s.mu.Lock()
	if _, ok := a.s.book[entry.ID]; !ok {
		a.s.mu.Unlock()
		return store.ErrNotFound
	}
	cp := cloneAddressBookEntry(entry)
	a.s.book[entry.ID] = cp
	a.s.mu.Unlock()

	a.s.notifier.Notify(store.Notice{Table: "addressbook", Action: "update", ID: entry.ID, NewValue: cloneAddressBookEntry(cp)})
	return nil
}

func (a *addressBookStore) List(ctx context.Context) ([]*store.AddressBookEntry, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	out := make([]*store.AddressBookEntry, 0, len(a.s.book))
	for _, e := range a.s.book {
		out = append(out, cloneAddressBookEntry(e))
	}
	return out, nil
}

type privateChannelStore struct{ s *Store }

func (p *privateChannelStore) Create(ctx context.Context, pcd *store.PrivateChannelData) error {
	p.s.mu.Lock()
	if _, exists := p.s.channels[pcd.ChannelID]; exists {
		p.s.mu.Unlock()
		return fmt.Errorf("store: channel already exists: %s", pcd.ChannelID)
	}
	cp := clonePrivateChannelData(pcd)
	p.s.channels[pcd.ChannelID] = cp
	p.s.mu.Unlock()

	p.s.notifier.Notify(store.Notice{Table: "private_channels", Action: "create", ID: pcd.ChannelID, NewValue: clonePrivateChannelData(cp)})
	return nil
}

func (p *privateChannelStore) Get(ctx context.Context, channelID string) (*store.PrivateChannelData, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	pcd, ok := p.s.channels[channelID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePrivateChannelData(pcd), nil
}

func (p *privateChannelStore) Update(ctx context.Context, pcd *store.PrivateChannelData) error {
	p.s.mu.Lock()
	if _, ok := p.s.channels[pcd.ChannelID]; !ok {
		p.s.mu.Unlock()
		return store.ErrNotFound
	}
	cp := clonePrivateChannelData(pcd)
	p.s.channels[pcd.ChannelID] = cp
	p.s.mu.Unlock()

	p.s.notifier.Notify(store.Notice{Table: "private_channels", Action: "update", ID: pcd.ChannelID, NewValue: clonePrivateChannelData(cp)})
	return nil
}

func (p *privateChannelStore) List(ctx context.Context) ([]*store.PrivateChannelData, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	out := make([]*store.PrivateChannelData, 0, len(p.s.channels))
	for _, c := range p.s.channels {
		out = append(out, clonePrivateChannelData(c))
	}
	return out, nil
}

// NextSeqnum atomically reads and increments the channel's seqnum counter
// under the store's own lock, so two senders racing to build a CIDToken for
// the same channel never observe the same value.
func (p *privateChannelStore) NextSeqnum(ctx context.Context, channelID string) (int64, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	pcd, ok := p.s.channels[channelID]
	if !ok {
		return 0, store.ErrNotFound
	}
	n := pcd.NextSeqnum
	pcd.NextSeqnum++
	return n, nil
}

func cloneInvitation(inv *store.Invitation) *store.Invitation {
	cp := *inv
	cp.InviteKeySeed = cloneBytes(inv.InviteKeySeed)
	cp.MyTempPrivkey = cloneBytes(inv.MyTempPrivkey)
	cp.MySigningKey = cloneBytes(inv.MySigningKey)
	cp.MyChannelRecord = cloneBytes(inv.MyChannelRecord)
	cp.MyPrivateChannelData = cloneBytes(inv.MyPrivateChannelData)
	cp.TheirTempPubkey = cloneBytes(inv.TheirTempPubkey)
	return &cp
}

func cloneAddressBookEntry(e *store.AddressBookEntry) *store.AddressBookEntry {
	cp := *e
	cp.TheirVerfkey = cloneBytes(e.TheirVerfkey)
	cp.MyChannelRecord = cloneBytes(e.MyChannelRecord)
	cp.MyPrivateChannelData = cloneBytes(e.MyPrivateChannelData)
	cp.TheirChannelRecord = cloneBytes(e.TheirChannelRecord)
	cp.MyCIDKey = cloneBytes(e.MyCIDKey)
	cp.MySignKeySeed = cloneBytes(e.MySignKeySeed)
	return &cp
}

func clonePrivateChannelData(p *store.PrivateChannelData) *store.PrivateChannelData {
	cp := *p
	cp.NewChannelPubkey = cloneBytes(p.NewChannelPubkey)
	cp.NewChannelPriv = cloneBytes(p.NewChannelPriv)
	cp.OldChannelPubkey = cloneBytes(p.OldChannelPubkey)
	cp.OldChannelPriv = cloneBytes(p.OldChannelPriv)
	return &cp
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
