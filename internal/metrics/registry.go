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

// Package metrics collects Prometheus counters and histograms for the
// invitation and channel protocols. Every metric in this package is
// registered against Registry at init time via promauto, the same pattern
// the rest of this package's files use per-component.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// namespace prefixes every metric name registered in this package.
const namespace = "petrelay"

// Registry is the Prometheus registry every metric in this package
// registers against. Handler/StartServer expose it over HTTP. Metrics are
// package-level and therefore process-global: only one instance of this
// core should run per process.
var Registry = prometheus.NewRegistry()
