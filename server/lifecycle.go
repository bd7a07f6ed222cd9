package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/sym"
)

// State returns the current server lifecycle state.
func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

// setState atomically updates the server state.
func (s *Server) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow(sym.HTTP+" Server state changed", "new_state", newState.String())
}

// Start brings up the worker pool and serves HTTP on the given port.
// It blocks until Stop shuts the listener down.
func (s *Server) Start(port int) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run()
	}()

	// Pool startup includes orphaned-task recovery.
	s.pool.Start()

	actualPort, err := findAvailablePort(port)
	if err != nil {
		return errors.Wrap(err, "failed to find available port")
	}
	if actualPort != port {
		s.logger.Infow("Port in use, using alternative",
			"requested_port", port,
			"actual_port", actualPort)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, actualPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  secondsOrDefault(s.cfg.Server.ReadTimeoutSeconds, 15*time.Second),
		WriteTimeout: secondsOrDefault(s.cfg.Server.WriteTimeoutSeconds, 30*time.Second),
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}

	s.setState(ServerStateReady)
	s.logger.Infow(sym.HTTP+" Server ready",
		"address", addr,
		"port", actualPort,
		"auth_enabled", s.evaluator.Enabled())

	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Stop drains the server: new requests are refused, the worker pool
// checkpoints and re-queues in-flight zaps, stream clients are closed,
// and background goroutines are waited for (bounded).
func (s *Server) Stop() error {
	s.setState(ServerStateDraining)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warnw("HTTP shutdown did not complete cleanly", "error", err)
		}
	}

	s.logger.Infow(sym.SurgeClose + " Stopping worker pool")
	s.pool.Stop()

	// Close stream connections before cancelling the context so the
	// read pumps exit on conn error rather than lingering.
	s.mu.Lock()
	toClose := make([]*streamClient, 0, len(s.clients))
	for client := range s.clients {
		toClose = append(toClose, client)
		delete(s.clients, client)
	}
	s.mu.Unlock()
	for _, client := range toClose {
		client.close()
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Infow("All server goroutines stopped")
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Goroutine shutdown timed out", "timeout", ShutdownTimeout)
	}

	s.setState(ServerStateStopped)
	s.logger.Infow(sym.HTTP+" Server shutdown complete",
		"stream_drops", s.streamDrops.Load())
	return nil
}

func secondsOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// isPortAvailable checks if a port is available for binding.
func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}

// findAvailablePort tries the requested port first, then the next ten.
func findAvailablePort(requestedPort int) (int, error) {
	for i := 0; i <= 10; i++ {
		port := requestedPort + i
		if isPortAvailable(port) {
			return port, nil
		}
	}
	return 0, errors.Newf("no available ports in range %d-%d", requestedPort, requestedPort+10)
}
