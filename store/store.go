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

// Package store is the observable persistence layer the invitation and
// channel protocols are built on: every durable mutation commits first and
// is only announced to subscribers afterwards, on a later turn, so an
// observer reacting to a Notice never observes a transaction that could
// still be rolled back by its caller.
package store

import (
	"context"
	"errors"
)

// ErrDB marks a storage failure the caller cannot recover from by retrying
// the logical operation (lost connection, corrupted row, schema mismatch).
// Protocol code should treat it as fatal rather than as a negative protocol
// result.
var ErrDB = errors.New("store: database error")

// ErrNotFound is returned by Get-style methods when no row matches.
var ErrNotFound = errors.New("store: not found")

// InvitationStore persists Invitation rows.
type InvitationStore interface {
	Create(ctx context.Context, inv *Invitation) error
	Get(ctx context.Context, inviteID string) (*Invitation, error)
	Update(ctx context.Context, inv *Invitation) error
	Delete(ctx context.Context, inviteID string) error
	List(ctx context.Context) ([]*Invitation, error)
}

// AddressBookStore persists completed pairings.
type AddressBookStore interface {
	Create(ctx context.Context, entry *AddressBookEntry) error
	Get(ctx context.Context, id string) (*AddressBookEntry, error)
	Update(ctx context.Context, entry *AddressBookEntry) error
	List(ctx context.Context) ([]*AddressBookEntry, error)
}

// PrivateChannelStore persists the receive-side channel key material and
// seqnum counters used by the channel manager.
type PrivateChannelStore interface {
	Create(ctx context.Context, pcd *PrivateChannelData) error
	Get(ctx context.Context, channelID string) (*PrivateChannelData, error)
	Update(ctx context.Context, pcd *PrivateChannelData) error
	List(ctx context.Context) ([]*PrivateChannelData, error)
	// NextSeqnum atomically reads and increments the channel's seqnum
	// counter, returning the value to use for the message being built.
	NextSeqnum(ctx context.Context, channelID string) (int64, error)
}

// Store bundles the sub-stores this core needs plus the observable-commit
// contract every mutating method on those sub-stores participates in.
type Store interface {
	Invitations() InvitationStore
	AddressBook() AddressBookStore
	PrivateChannels() PrivateChannelStore

	// Subscribe registers an observer that receives every Notice produced
	// by a committed transaction, in commit order, delivered asynchronously
	// with respect to the call that produced them.
	Subscribe(observer func(Notice)) (unsubscribe func())

	Close() error
	Ping(ctx context.Context) error
}

// Notifier is the commit-then-notify-on-a-later-turn mechanism shared by
// every Store implementation in this tree: a mutating method calls Notify
// only after its transaction has durably committed. Notify hands the
// notices to a background goroutine over a buffered channel, so delivery to
// observers always happens on a later turn than the call that produced the
// mutation, and a slow observer never delays the committing caller.
type subRequest struct {
	fn     func(Notice)
	idChan chan int
}

type Notifier struct {
	notices chan Notice
	addSub  chan subRequest
	delSub  chan int
	done    chan struct{}
}

// NewNotifier starts the background dispatch goroutine and returns a ready
// Notifier. Callers must not use a Notifier across multiple Store instances.
func NewNotifier() *Notifier {
	n := &Notifier{
		notices: make(chan Notice, 256),
		addSub:  make(chan subRequest),
		delSub:  make(chan int),
		done:    make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *Notifier) run() {
	type handle struct {
		id int
		fn func(Notice)
	}
	var observers []handle
	nextID := 0

	for {
		select {
		case notice, ok := <-n.notices:
			if !ok {
				close(n.done)
				return
			}
			for _, o := range observers {
				o.fn(notice)
			}
		case req := <-n.addSub:
			nextID++
			observers = append(observers, handle{id: nextID, fn: req.fn})
			req.idChan <- nextID
		case id := <-n.delSub:
			for i, o := range observers {
				if o.id == id {
					observers = append(observers[:i], observers[i+1:]...)
					break
				}
			}
		}
	}
}

// Subscribe registers fn to receive every future Notice, in commit order.
// The returned func removes the subscription; it is safe to call more than
// once and is a no-op after the first call.
func (n *Notifier) Subscribe(fn func(Notice)) func() {
	req := subRequest{fn: fn, idChan: make(chan int, 1)}
	n.addSub <- req
	id := <-req.idChan
	removed := false
	return func() {
		if removed {
			return
		}
		removed = true
		n.delSub <- id
	}
}

// Notify enqueues notices for asynchronous delivery to current subscribers.
// It blocks only if the internal buffer is full, never on an observer.
func (n *Notifier) Notify(notices ...Notice) {
	for _, no := range notices {
		n.notices <- no
	}
}

// Close stops the dispatch goroutine. No further Notify calls may be made.
func (n *Notifier) Close() {
	close(n.notices)
	<-n.done
}
