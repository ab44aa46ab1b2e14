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

package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/petrelay/core/internal/logger"
	"github.com/petrelay/core/internal/metrics"
)

// Server exposes a HealthChecker's registry over HTTP, alongside the
// process's Prometheus metrics.
type Server struct {
	checker *HealthChecker
	logger  logger.Logger
	port    int
	server  *http.Server
}

// NewServer creates a health check server over checker.
func NewServer(checker *HealthChecker, log logger.Logger, port int) *Server {
	return &Server{
		checker: checker,
		logger:  log,
		port:    port,
	}
}

// Start starts the health check server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/live", s.handleLiveness)
	mux.HandleFunc("/health/ready", s.handleReadiness)
	mux.Handle("/metrics", metrics.Handler())

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("starting health check server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("health check server error: " + err.Error())
		}
	}()

	return nil
}

// Stop stops the health check server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleHealth reports every registered check's current result.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.checker.GetSystemHealth(r.Context())

	if report.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

// handleLiveness reports only that the process is running.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// handleReadiness reports whether every registered check currently passes.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status := s.checker.GetOverallStatus(r.Context())
	ready := status != StatusUnhealthy

	response := map[string]interface{}{
		"ready":     ready,
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// StartHealthServer creates a checker with no registered checks, starts its
// HTTP server, and returns both so the caller can RegisterCheck against the
// running checker (store, rendezvous bus, key material, ...).
func StartHealthServer(port int, checkTimeout time.Duration, log logger.Logger) (*Server, *HealthChecker, error) {
	checker := NewHealthChecker(checkTimeout)
	server := NewServer(checker, log, port)
	if err := server.Start(); err != nil {
		return nil, nil, err
	}
	return server, checker, nil
}
