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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvitationsStarted tracks invitations entering i0:m1.
	InvitationsStarted = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invitations",
			Name:      "started_total",
			Help:      "Total number of invitations started",
		},
	)

	// InvitationsPaired tracks invitations that reached i0:destroy and
	// produced an addressbook entry.
	InvitationsPaired = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invitations",
			Name:      "paired_total",
			Help:      "Total number of invitations that completed pairing",
		},
	)

	// InvitationsAborted tracks invitations that failed a binding check or
	// hit a corrupt channel and were torn down before completion.
	InvitationsAborted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invitations",
			Name:      "aborted_total",
			Help:      "Total number of invitations aborted before pairing",
		},
		[]string{"reason"}, // binding_failure, corrupt_channel, duplicate_code
	)

	// InvitationsInFlight tracks invitations currently awaiting a peer
	// message (between m1 and destroy).
	InvitationsInFlight = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "invitations",
			Name:      "in_flight",
			Help:      "Number of invitations awaiting a peer response",
		},
	)

	// InvitationPhaseDuration tracks how long each tick of the invitation
	// state machine takes to process an incoming message.
	InvitationPhaseDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "invitations",
			Name:      "phase_duration_seconds",
			Help:      "Time spent processing one invitation phase",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"phase"}, // m1, m2, m3, destroy
	)
)
