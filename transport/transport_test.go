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

package transport

import (
	"testing"

	"github.com/petrelay/core/rrid"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	kp, err := rrid.GenerateKeyPair()
	require.NoError(t, err)
	adapter, err := NewAdapter(kp)
	require.NoError(t, err)

	stid, _, boxPub, err := adapter.MintTransport("transport-1")
	require.NoError(t, err)

	msgC := []byte("c0:some envelope bytes")
	msgA, err := SendVia(stid, boxPub, msgC)
	require.NoError(t, err)

	got, err := adapter.Unwrap(msgA)
	require.NoError(t, err)
	require.Equal(t, msgC, got)
}

func TestUnwrapRejectsForeignMailbox(t *testing.T) {
	mine, err := rrid.GenerateKeyPair()
	require.NoError(t, err)
	theirs, err := rrid.GenerateKeyPair()
	require.NoError(t, err)

	mineAdapter, err := NewAdapter(mine)
	require.NoError(t, err)
	theirsAdapter, err := NewAdapter(theirs)
	require.NoError(t, err)

	_, token0, err := theirs.Create()
	require.NoError(t, err)

	msgA, err := WrapMsgA(token0, &theirsAdapter.boxPub, []byte("c0:envelope"))
	require.NoError(t, err)

	_, err = mineAdapter.Unwrap(msgA)
	require.ErrorIs(t, err, ErrForeignMailbox)
}

func TestRandomizedPresentationsAreUnlinkableBytes(t *testing.T) {
	kp, err := rrid.GenerateKeyPair()
	require.NoError(t, err)
	adapter, err := NewAdapter(kp)
	require.NoError(t, err)

	stid, _, boxPub, err := adapter.MintTransport("transport-2")
	require.NoError(t, err)

	msgA1, err := SendVia(stid, boxPub, []byte("c0:first"))
	require.NoError(t, err)
	msgA2, err := SendVia(stid, boxPub, []byte("c0:first"))
	require.NoError(t, err)
	require.NotEqual(t, msgA1, msgA2)

	_, err = adapter.Unwrap(msgA1)
	require.NoError(t, err)
	_, err = adapter.Unwrap(msgA2)
	require.NoError(t, err)
}
