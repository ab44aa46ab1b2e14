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
	// MessagesSent tracks outbound channel messages (msgCs built).
	MessagesSent = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "messages_sent_total",
			Help:      "Total number of channel messages sent",
		},
	)

	// MessagesReceived tracks successfully processed inbound msgCs.
	MessagesReceived = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "messages_received_total",
			Help:      "Total number of channel messages received",
		},
	)

	// ReplaysDropped tracks msgCs rejected for a non-increasing seqnum.
	ReplaysDropped = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "replays_dropped_total",
			Help:      "Total number of messages dropped as replays",
		},
	)

	// UnknownChannelDrops tracks msgCs that no CIDKey or channel key could
	// resolve to a known pairing.
	UnknownChannelDrops = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "unknown_channel_drops_total",
			Help:      "Total number of messages dropped as unresolvable to any known channel",
		},
	)

	// ChannelProcessingDuration tracks ProcessMsgC latency.
	ChannelProcessingDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "processing_duration_seconds",
			Help:      "Time spent resolving and decrypting one inbound msgC",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	// ChannelMessageSize tracks decrypted payload sizes.
	ChannelMessageSize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "message_size_bytes",
			Help:      "Size of decrypted channel message payloads",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		},
	)
)
