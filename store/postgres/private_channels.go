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

type privateChannelStore struct {
	db       *pgxpool.Pool
	notifier *store.Notifier
}

func (s *privateChannelStore) Create(ctx context.Context, pcd *store.PrivateChannelData) error {
	query := `
		INSERT INTO private_channels (channel_id, new_channel_pubkey, new_channel_priv, old_channel_pubkey, old_channel_priv, next_seqnum)
		VALUES ($1,$2,$3,$4,$5,$6)
	`
	_, err := s.db.Exec(ctx, query, pcd.ChannelID, pcd.NewChannelPubkey, pcd.NewChannelPriv, pcd.OldChannelPubkey, pcd.OldChannelPriv, pcd.NextSeqnum)
	if err != nil {
		return fmt.Errorf("%w: create channel: %v", store.ErrDB, err)
	}
	s.notifier.Notify(store.Notice{Table: "private_channels", Action: "create", ID: pcd.ChannelID, NewValue: *pcd})
	return nil
}

func (s *privateChannelStore) Get(ctx context.Context, channelID string) (*store.PrivateChannelData, error) {
	query := `
		SELECT channel_id, new_channel_pubkey, new_channel_priv, old_channel_pubkey, old_channel_priv, next_seqnum
		FROM private_channels WHERE channel_id = $1
	`
	var pcd store.PrivateChannelData
	err := s.db.QueryRow(ctx, query, channelID).Scan(&pcd.ChannelID, &pcd.NewChannelPubkey, &pcd.NewChannelPriv, &pcd.OldChannelPubkey, &pcd.OldChannelPriv, &pcd.NextSeqnum)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get channel: %v", store.ErrDB, err)
	}
	return &pcd, nil
}

func (s *privateChannelStore) Update(ctx context.Context, pcd *store.PrivateChannelData) error {
	query := `
		UPDATE private_channels SET
			new_channel_pubkey = $2, new_channel_priv = $3,
			old_channel_pubkey = $4, old_channel_priv = $5, next_seqnum = $6
		WHERE channel_id = $1
	`
	tag, err := s.db.Exec(ctx, query, pcd.ChannelID, pcd.NewChannelPubkey, pcd.NewChannelPriv, pcd.OldChannelPubkey, pcd.OldChannelPriv, pcd.NextSeqnum)
	if err != nil {
		return fmt.Errorf("%w: update channel: %v", store.ErrDB, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	s.notifier.Notify(store.Notice{Table: "private_channels", Action: "update", ID: pcd.ChannelID, NewValue: *pcd})
	return nil
}

func (s *privateChannelStore) List(ctx context.Context) ([]*store.PrivateChannelData, error) {
	query := `
		SELECT channel_id, new_channel_pubkey, new_channel_priv, old_channel_pubkey, old_channel_priv, next_seqnum
		FROM private_channels
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list channels: %v", store.ErrDB, err)
	}
	defer rows.Close()

	var out []*store.PrivateChannelData
	for rows.Next() {
		var pcd store.PrivateChannelData
		if err := rows.Scan(&pcd.ChannelID, &pcd.NewChannelPubkey, &pcd.NewChannelPriv, &pcd.OldChannelPubkey, &pcd.OldChannelPriv, &pcd.NextSeqnum); err != nil {
			return nil, fmt.Errorf("%w: scan channel: %v", store.ErrDB, err)
		}
		out = append(out, &pcd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrDB, err)
	}
	return out, nil
}

// NextSeqnum atomically increments the channel's counter in a single
// UPDATE ... RETURNING so concurrent senders never observe the same value.
func (s *privateChannelStore) NextSeqnum(ctx context.Context, channelID string) (int64, error) {
	query := `
		UPDATE private_channels SET next_seqnum = next_seqnum + 1
		WHERE channel_id = $1
		RETURNING next_seqnum - 1
	`
	var n int64
	err := s.db.QueryRow(ctx, query, channelID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: next seqnum: %v", store.ErrDB, err)
	}
	return n, nil
}
