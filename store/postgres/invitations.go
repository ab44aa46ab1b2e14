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

type invitationStore struct {
	db       *pgxpool.Pool
	notifier *store.Notifier
}

func (s *invitationStore) Create(ctx context.Context, inv *store.Invitation) error {
	query := `
		INSERT INTO invitations (
			invite_id, petname, invite_key_seed, my_temp_privkey, my_signing_key, my_channel_record,
			my_private_channel_data, their_temp_pubkey, my_messages,
			their_messages, next_expected_message, addressbook_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`
	_, err := s.db.Exec(ctx, query,
		inv.InviteID, inv.Petname, inv.InviteKeySeed, inv.MyTempPrivkey, inv.MySigningKey, inv.MyChannelRecord,
		inv.MyPrivateChannelData, inv.TheirTempPubkey, inv.MyMessages,
		inv.TheirMessages, inv.NextExpectedMessage, nullIfEmpty(inv.AddressBookID),
	)
	if err != nil {
		return fmt.Errorf("%w: create invitation: %v", store.ErrDB, err)
	}
	s.notifier.Notify(store.Notice{Table: "invitations", Action: "create", ID: inv.InviteID, NewValue: *inv})
	return nil
}

func (s *invitationStore) Get(ctx context.Context, inviteID string) (*store.Invitation, error) {
	query := `
		SELECT invite_id, petname, invite_key_seed, my_temp_privkey, my_signing_key, my_channel_record,
			my_private_channel_data, their_temp_pubkey, my_messages,
			their_messages, next_expected_message, COALESCE(addressbook_id, ''),
			created_at, updated_at
		FROM invitations WHERE invite_id = $1
	`
	var inv store.Invitation
	err := s.db.QueryRow(ctx, query, inviteID).Scan(
		&inv.InviteID, &inv.Petname, &inv.InviteKeySeed, &inv.MyTempPrivkey, &inv.MySigningKey, &inv.MyChannelRecord,
		&inv.MyPrivateChannelData, &inv.TheirTempPubkey, &inv.MyMessages,
		&inv.TheirMessages, &inv.NextExpectedMessage, &inv.AddressBookID,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get invitation: %v", store.ErrDB, err)
	}
	return &inv, nil
}

func (s *invitationStore) Update(ctx context.Context, inv *store.Invitation) error {
	query := `
		UPDATE invitations SET
			my_temp_privkey = $2, my_signing_key = $3, my_channel_record = $4,
			my_private_channel_data = $5, their_temp_pubkey = $6, my_messages = $7,
			their_messages = $8, next_expected_message = $9, addressbook_id = $10,
			updated_at = now()
		WHERE invite_id = $1
	`
	tag, err := s.db.Exec(ctx, query,
		inv.InviteID, inv.MyTempPrivkey, inv.MySigningKey, inv.MyChannelRecord,
		inv.MyPrivateChannelData, inv.TheirTempPubkey, inv.MyMessages,
		inv.TheirMessages, inv.NextExpectedMessage, nullIfEmpty(inv.AddressBookID),
	)
	if err != nil {
		return fmt.Errorf("%w: update invitation: %v", store.ErrDB, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	s.notifier.Notify(store.Notice{Table: "invitations", Action: "update", ID: inv.InviteID, NewValue: *inv})
	return nil
}

func (s *invitationStore) Delete(ctx context.Context, inviteID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM invitations WHERE invite_id = $1`, inviteID)
	if err != nil {
		return fmt.Errorf("%w: delete invitation: %v", store.ErrDB, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	s.notifier.Notify(store.Notice{Table: "invitations", Action: "delete", ID: inviteID})
	return nil
}

func (s *invitationStore) List(ctx context.Context) ([]*store.Invitation, error) {
	query := `
		SELECT invite_id, petname, invite_key_seed, my_temp_privkey, my_signing_key, my_channel_record,
			my_private_channel_data, their_temp_pubkey, my_messages,
			their_messages, next_expected_message, COALESCE(addressbook_id, ''),
			created_at, updated_at
		FROM invitations
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list invitations: %v", store.ErrDB, err)
	}
	defer rows.Close()

	var out []*store.Invitation
	for rows.Next() {
		var inv store.Invitation
		if err := rows.Scan(
			&inv.InviteID, &inv.Petname, &inv.InviteKeySeed, &inv.MyTempPrivkey, &inv.MySigningKey, &inv.MyChannelRecord,
			&inv.MyPrivateChannelData, &inv.TheirTempPubkey, &inv.MyMessages,
			&inv.TheirMessages, &inv.NextExpectedMessage, &inv.AddressBookID,
			&inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan invitation: %v", store.ErrDB, err)
		}
		out = append(out, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrDB, err)
	}
	return out, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
