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

// Package health provides a small named-check registry for liveness and
// readiness endpoints: components register a probe under a name, and the
// HTTP layer asks for one check, all checks, or the worst overall status.
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/petrelay/core/pkg/version"
)

// CheckFunc is one probe. It should return promptly and respect ctx
// cancellation; a CheckFunc that blocks past the checker's timeout is
// reported unhealthy rather than left to hang the caller.
type CheckFunc func(ctx context.Context) error

type cachedResult struct {
	result *CheckResult
	at     time.Time
}

// HealthChecker holds a registry of named checks plus a short-lived result
// cache so a hot /health endpoint does not re-run every probe on every poll.
type HealthChecker struct {
	mu       sync.RWMutex
	checks   map[string]CheckFunc
	cache    map[string]cachedResult
	timeout  time.Duration
	cacheTTL time.Duration
}

// NewHealthChecker creates a registry whose checks are each given timeout
// to complete before being reported unhealthy.
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]CheckFunc),
		cache:   make(map[string]cachedResult),
		timeout: timeout,
	}
}

// RegisterCheck adds or replaces the check registered under name.
func (h *HealthChecker) RegisterCheck(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = fn
	delete(h.cache, name)
}

// UnregisterCheck removes a check; Check and CheckAll no longer see it.
func (h *HealthChecker) UnregisterCheck(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.checks, name)
	delete(h.cache, name)
}

// SetCacheTTL controls how long a Check result is reused before the
// underlying probe is invoked again. A zero TTL disables caching.
func (h *HealthChecker) SetCacheTTL(ttl time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cacheTTL = ttl
}

// ClearCache discards every cached result; the next Check for any name
// invokes its probe.
func (h *HealthChecker) ClearCache() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache = make(map[string]cachedResult)
}

// Check runs (or returns the cached result for) the named check.
func (h *HealthChecker) Check(ctx context.Context, name string) (*CheckResult, error) {
	h.mu.RLock()
	fn, ok := h.checks[name]
	cacheTTL := h.cacheTTL
	if ok && cacheTTL > 0 {
		if cached, ok := h.cache[name]; ok && time.Since(cached.at) < cacheTTL {
			h.mu.RUnlock()
			return cached.result, nil
		}
	}
	timeout := h.timeout
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("health check not found: %s", name)
	}

	result := runCheck(ctx, name, fn, timeout)

	h.mu.Lock()
	h.cache[name] = cachedResult{result: result, at: time.Now()}
	h.mu.Unlock()

	return result, nil
}

func runCheck(ctx context.Context, name string, fn CheckFunc, timeout time.Duration) *CheckResult {
	cctx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := fn(cctx)
	result := &CheckResult{Name: name, Status: StatusHealthy, CheckedAt: time.Now()}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}

// CheckAll runs every registered check and returns all results by name.
func (h *HealthChecker) CheckAll(ctx context.Context) map[string]*CheckResult {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()

	results := make(map[string]*CheckResult, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			result, err := h.Check(ctx, name)
			if err != nil {
				return
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

// GetOverallStatus is the worst status across every registered check.
func (h *HealthChecker) GetOverallStatus(ctx context.Context) Status {
	results := h.CheckAll(ctx)
	status := StatusHealthy
	for _, result := range results {
		if result.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
		if result.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}

// GetSystemHealth runs every registered check and returns both the
// per-check results and their aggregate status.
func (h *HealthChecker) GetSystemHealth(ctx context.Context) *Report {
	results := h.CheckAll(ctx)
	status := StatusHealthy
	for _, result := range results {
		if result.Status == StatusUnhealthy {
			status = StatusUnhealthy
			break
		}
		if result.Status == StatusDegraded && status == StatusHealthy {
			status = StatusDegraded
		}
	}
	return &Report{
		Status:    status,
		Version:   version.Short(),
		Timestamp: time.Now(),
		Checks:    results,
	}
}

var errCheckNotConfigured = errors.New("rendezvous transport not configured")

// RendezvousHealthCheck wraps a rendezvous bus reachability probe; a nil
// probe (transport layer not wired up yet) reports unhealthy rather than
// panicking.
func RendezvousHealthCheck(probe CheckFunc) CheckFunc {
	return func(ctx context.Context) error {
		if probe == nil {
			return errCheckNotConfigured
		}
		return probe(ctx)
	}
}

// KeyMaterialHealthCheck wraps a synchronous local check (e.g. that this
// node's signing key is loadable) so it still respects ctx cancellation.
func KeyMaterialHealthCheck(probe func() error) CheckFunc {
	return func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() { done <- probe() }()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// StoreHealthCheck wraps a store connectivity probe, e.g. store.Store.Ping.
func StoreHealthCheck(probe CheckFunc) CheckFunc {
	return func(ctx context.Context) error {
		if probe == nil {
			return errors.New("store not configured")
		}
		return probe(ctx)
	}
}

// TransportHealthCheck wraps a probe against one named transport (mailbox
// endpoint, relay URL, etc.).
func TransportHealthCheck(transportID string, probe func(ctx context.Context, transportID string) error) CheckFunc {
	return func(ctx context.Context) error {
		if probe == nil {
			return fmt.Errorf("transport %s not configured", transportID)
		}
		return probe(ctx, transportID)
	}
}
