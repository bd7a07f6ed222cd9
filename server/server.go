// Package server exposes the zapd HTTP surface: widget/gadget CRUD, zap
// submission and status polling, a WebSocket task stream, and the
// health/status endpoints. It owns the surge worker pool lifecycle so
// `zapd serve` can treat the server as the single thing to start and
// stop.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/not-mt/zapd/auth"
	"github.com/not-mt/zapd/config"
	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/resource"
	"github.com/not-mt/zapd/surge"
)

// Server wires the zapd resource stores, the surge engine, and the auth
// evaluator behind one HTTP mux.
type Server struct {
	db        *sql.DB
	cfg       *config.Config
	repos     *resource.Repositories
	sessions  *resource.SessionManager
	queue     *surge.Queue
	pool      *surge.WorkerPool
	evaluator *auth.Evaluator

	mux        *http.ServeMux
	httpServer *http.Server
	throttle   *rate.Limiter // zap submission throttle, nil = unlimited

	// Stream hub. The hub goroutine owns the clients map mutations; the
	// pump goroutine owns all sends to client channels.
	clients     map[*streamClient]bool
	register    chan *streamClient
	unregister  chan *streamClient
	streamDrops atomic.Int64

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	state  atomic.Int32

	logger *zap.SugaredLogger
}

// New builds a fully wired server: repositories, session manager, zap
// budget, queue, handler registry, and worker pool. Callers start it
// with Start and stop it with Stop.
func New(db *sql.DB, cfg *config.Config, log *zap.SugaredLogger) (*Server, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("configuration cannot be nil")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	evaluator, err := auth.NewEvaluator(cfg.Auth, log)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build auth evaluator")
	}

	ctx, cancel := context.WithCancel(context.Background())

	repos := resource.NewRepositories()
	sessions := resource.NewSessionManager(resource.DBFactory{DB: db}, log)

	// The budget limiter is always constructed, capacity 0 meaning
	// unlimited, so config reload can adjust it in place.
	budget := surge.NewLimiter(cfg.Surge.MaxZapsPerMinute)
	queue := surge.NewQueue(db, budget, log)

	pool := surge.NewWorkerPool(ctx, queue, surge.PoolConfigFrom(&cfg.Surge), log)
	if err := surge.RegisterZapHandlers(pool.Registry(), db, queue, repos, sessions, log); err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to register zap handlers")
	}

	s := &Server{
		db:         db,
		cfg:        cfg,
		repos:      repos,
		sessions:   sessions,
		queue:      queue,
		pool:       pool,
		evaluator:  evaluator,
		mux:        http.NewServeMux(),
		clients:    make(map[*streamClient]bool),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		ctx:        ctx,
		cancel:     cancel,
		logger:     log,
	}
	s.state.Store(int32(ServerStateStarting))

	if cfg.Server.RequestsPerSecond > 0 {
		burst := cfg.Server.Burst
		if burst < 1 {
			burst = 1
		}
		s.throttle = rate.NewLimiter(rate.Limit(cfg.Server.RequestsPerSecond), burst)
	}

	s.setupHTTPRoutes()
	return s, nil
}

// Run is the stream hub event loop. It owns the clients map and starts
// the pump goroutine that fans queue updates out to clients.
func (s *Server) Run() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runStreamPump()
	}()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debugw("Stream hub stopping")
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		}
	}
}

// handleClientRegister admits a new stream client, enforcing the cap.
func (s *Server) handleClientRegister(client *streamClient) {
	s.mu.Lock()
	if len(s.clients) >= MaxStreamClients {
		s.mu.Unlock()
		s.logger.Warnw("Max stream clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxStreamClients)
		client.close()
		return
	}
	s.clients[client] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Stream client connected",
		"client_id", client.id,
		"total_clients", total)
}

// handleClientUnregister removes a disconnected stream client.
func (s *Server) handleClientUnregister(client *streamClient) {
	s.mu.Lock()
	if _, ok := s.clients[client]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, client)
	total := len(s.clients)
	s.mu.Unlock()

	client.close()
	s.logger.Infow("Stream client disconnected",
		"client_id", client.id,
		"total_clients", total)
}

// removeSlowClient drops a client whose send buffer filled up. The hub
// may unregister the same client concurrently; close() is idempotent so
// both paths are safe.
func (s *Server) removeSlowClient(client *streamClient) {
	s.mu.Lock()
	if _, ok := s.clients[client]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, client)
	s.mu.Unlock()

	client.close()
	s.logger.Warnw("Stream client send buffer full, dropping client",
		"client_id", client.id,
		"total_drops", s.streamDrops.Load())
}

// runStreamPump forwards queue task updates to every stream client.
func (s *Server) runStreamPump() {
	updates := s.queue.Subscribe()
	defer s.queue.Unsubscribe(updates)

	for {
		select {
		case <-s.ctx.Done():
			return
		case task := <-updates:
			msg := &TaskUpdateMessage{Type: "task_update", Task: task}

			s.mu.RLock()
			targets := make([]*streamClient, 0, len(s.clients))
			for client := range s.clients {
				targets = append(targets, client)
			}
			s.mu.RUnlock()

			for _, client := range targets {
				select {
				case client.send <- msg:
				default:
					s.streamDrops.Add(1)
					s.removeSlowClient(client)
				}
			}
		}
	}
}

// GetPool returns the surge worker pool. The serve command registers
// additional handlers and reads metrics through it.
func (s *Server) GetPool() *surge.WorkerPool {
	return s.pool
}

// GetQueue returns the zap task queue.
func (s *Server) GetQueue() *surge.Queue {
	return s.queue
}

// Evaluator returns the auth evaluator, for cache sweeps and reload.
func (s *Server) Evaluator() *auth.Evaluator {
	return s.evaluator
}

// Handler returns the root HTTP handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}
