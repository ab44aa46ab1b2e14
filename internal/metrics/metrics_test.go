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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistration(t *testing.T) {
	if InvitationsStarted == nil {
		t.Error("InvitationsStarted metric is nil")
	}
	if InvitationsPaired == nil {
		t.Error("InvitationsPaired metric is nil")
	}
	if InvitationsAborted == nil {
		t.Error("InvitationsAborted metric is nil")
	}
	if InvitationPhaseDuration == nil {
		t.Error("InvitationPhaseDuration metric is nil")
	}

	if MessagesSent == nil {
		t.Error("MessagesSent metric is nil")
	}
	if MessagesReceived == nil {
		t.Error("MessagesReceived metric is nil")
	}
	if ReplaysDropped == nil {
		t.Error("ReplaysDropped metric is nil")
	}
	if UnknownChannelDrops == nil {
		t.Error("UnknownChannelDrops metric is nil")
	}

	if CryptoOperations == nil {
		t.Error("CryptoOperations metric is nil")
	}
}

func TestMetricsIncrement(t *testing.T) {
	InvitationsStarted.Inc()
	InvitationsPaired.Inc()
	InvitationsAborted.WithLabelValues("binding_failure").Inc()
	InvitationPhaseDuration.WithLabelValues("m2").Observe(0.01)

	MessagesSent.Inc()
	MessagesReceived.Inc()
	ReplaysDropped.Inc()
	UnknownChannelDrops.Inc()

	CryptoOperations.WithLabelValues("sign", "ed25519").Inc()
	CryptoOperations.WithLabelValues("box_open", "x25519").Inc()

	if count := testutil.CollectAndCount(InvitationsStarted); count == 0 {
		t.Error("InvitationsStarted has no metrics collected")
	}
	if count := testutil.CollectAndCount(MessagesSent); count == 0 {
		t.Error("MessagesSent has no metrics collected")
	}
	if count := testutil.CollectAndCount(CryptoOperations); count == 0 {
		t.Error("CryptoOperations has no metrics collected")
	}
}
