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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/petrelay/core/store"
)

type addressBookStore struct {
	db       *pgxpool.Pool
	notifier *store.Notifier
}

func (s *addressBookStore) Create(ctx context.Context, entry *store.AddressBookEntry) error {
	query := `
		INSERT INTO addressbook (
			id, their_verfkey, my_channel_record, my_private_channel_data, their_channel_record,
			my_cid_key, my_sign_key_seed, highest_inbound_seqnum, acked, they_used_new_channel_key
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`
	_, err := s.db.Exec(ctx, query,
		entry.ID, entry.TheirVerfkey, entry.MyChannelRecord, entry.MyPrivateChannelData, entry.TheirChannelRecord,
		entry.MyCIDKey, entry.MySignKeySeed, entry.HighestInboundSeqnum, entry.Acked, entry.TheyUsedNewChannelKey,
	)
	if err != nil {
		return fmt.Errorf("%w: create address book entry: %v", store.ErrDB, err)
	}
	s.notifier.Notify(store.Notice{Table: "addressbook", Action: "create", ID: entry.ID, NewValue: *entry})
	return nil
}

func (s *addressBookStore) Get(ctx context.Context, id string) (*store.AddressBookEntry, error) {
	query := `
		SELECT id, their_verfkey, my_channel_record, my_private_channel_data, their_channel_record,
			my_cid_key, my_sign_key_seed, highest_inbound_seqnum, acked, they_used_new_channel_key, created_at
		FROM addressbook WHERE id = $1
	`
	var e store.AddressBookEntry
	err := s.db.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.TheirVerfkey, &e.MyChannelRecord, &e.MyPrivateChannelData, &e.TheirChannelRecord,
		&e.MyCIDKey, &e.MySignKeySeed, &e.HighestInboundSeqnum, &e.Acked, &e.TheyUsedNewChannelKey, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get address book entry: %v", store.ErrDB, err)
	}
	return &e, nil
}

func (s *addressBookStore) Update(ctx context.Context, entry *store.AddressBookEntry) error {
	query := `
		UPDATE addressbook SET highest_inbound_seqnum = $2, acked = $3, they_used_new_channel_key = $4 WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query, entry.ID, entry.HighestInboundSeqnum, entry.Acked, entry.TheyUsedNewChannelKey)
	if err != nil {
		return fmt.Errorf("%w: update address book entry: %v", store.ErrDB, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	s.notifier.Notify(store.Notice{Table: "addressbook", Action: "update", ID: entry.ID, NewValue: *entry})
	return nil
}

func (s *addressBookStore) List(ctx context.Context) ([]*store.AddressBookEntry, error) {
	query := `
		SELECT id, their_verfkey, my_channel_record, my_private_channel_data, their_channel_record,
			my_cid_key, my_sign_key_seed, highest_inbound_seqnum, acked, they_used_new_channel_key, created_at
		FROM addressbook
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list address book: %v", store.ErrDB, err)
	}
	defer rows.Close()

	var out []*store.AddressBookEntry
	for rows.Next() {
		var e store.AddressBookEntry
		if err := rows.Scan(
			&e.ID, &e.TheirVerfkey, &e.MyChannelRecord, &e.MyPrivateChannelData, &e.TheirChannelRecord,
			&e.MyCIDKey, &e.MySignKeySeed, &e.HighestInboundSeqnum, &e.Acked, &e.TheyUsedNewChannelKey, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan address book entry: %v", store.ErrDB, err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrDB, err)
	}
	return out, nil
}
