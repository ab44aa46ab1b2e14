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

// Package postgres is a store.Store implementation backed by pgx. Every
// mutating method runs inside a single pgx transaction and only calls
// Notifier.Notify after that transaction has committed, so observers never
// see a mutation that could still be rolled back.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/petrelay/core/store"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Store implements store.Store for PostgreSQL.
type Store struct {
	pool     *pgxpool.Pool
	notifier *store.Notifier

	invitations     *invitationStore
	addressBook     *addressBookStore
	privateChannels *privateChannelStore
}

// NewStore opens a connection pool and verifies it with a ping.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", store.ErrDB, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", store.ErrDB, err)
	}

	s := &Store{pool: pool, notifier: store.NewNotifier()}
	s.invitations = &invitationStore{db: pool, notifier: s.notifier}
	s.addressBook = &addressBookStore{db: pool, notifier: s.notifier}
	s.privateChannels = &privateChannelStore{db: pool, notifier: s.notifier}
	return s, nil
}

func (s *Store) Invitations() store.InvitationStore         { return s.invitations }
func (s *Store) AddressBook() store.AddressBookStore         { return s.addressBook }
func (s *Store) PrivateChannels() store.PrivateChannelStore { return s.privateChannels }

func (s *Store) Subscribe(observer func(store.Notice)) func() {
	return s.notifier.Subscribe(observer)
}

func (s *Store) Close() error {
	s.notifier.Close()
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrDB, err)
	}
	return nil
}

// Schema is the DDL this store expects; callers run it out of band (e.g.
// via a migration tool) before first use.
const Schema = `
CREATE TABLE IF NOT EXISTS invitations (
	invite_id              TEXT PRIMARY KEY,
	petname                TEXT NOT NULL DEFAULT '',
	invite_key_seed        BYTEA NOT NULL,
	my_temp_privkey        BYTEA NOT NULL,
	my_signing_key         BYTEA NOT NULL,
	my_channel_record      BYTEA,
	my_private_channel_data BYTEA,
	their_temp_pubkey      BYTEA,
	my_messages            TEXT NOT NULL DEFAULT '',
	their_messages          TEXT NOT NULL DEFAULT '',
	next_expected_message  INTEGER NOT NULL DEFAULT 0,
	addressbook_id         TEXT,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS addressbook (
	id                      TEXT PRIMARY KEY,
	their_verfkey           BYTEA NOT NULL,
	my_channel_record       BYTEA NOT NULL,
	my_private_channel_data BYTEA NOT NULL,
	their_channel_record    BYTEA NOT NULL,
	my_cid_key              BYTEA NOT NULL,
	my_sign_key_seed        BYTEA NOT NULL,
	highest_inbound_seqnum  BIGINT NOT NULL DEFAULT 0,
	acked                   BOOLEAN NOT NULL DEFAULT false,
	they_used_new_channel_key BOOLEAN NOT NULL DEFAULT false,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS private_channels (
	channel_id          TEXT PRIMARY KEY,
	new_channel_pubkey  BYTEA NOT NULL,
	new_channel_priv    BYTEA NOT NULL,
	old_channel_pubkey  BYTEA,
	old_channel_priv    BYTEA,
	next_seqnum         BIGINT NOT NULL DEFAULT 0
);
`
