package server

import (
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/not-mt/zapd/config"
	"github.com/not-mt/zapd/logger"
)

// ApplyConfigReload applies the runtime-adjustable settings from a
// freshly loaded config: log level, the request throttle, and the surge
// zap budget. Structural settings (port, workers, auth keys) cannot be
// re-applied in place and log a restart-required notice instead.
//
// Wire this as a watcher reload callback from the serve command.
func (s *Server) ApplyConfigReload(cfg *config.Config) error {
	if level, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
		s.logger.Infow("Log level applied", "level", cfg.Log.Level)
	} else {
		s.logger.Warnw("Ignoring invalid log level on reload", "level", cfg.Log.Level)
	}

	if s.throttle != nil && cfg.Server.RequestsPerSecond > 0 {
		burst := cfg.Server.Burst
		if burst < 1 {
			burst = 1
		}
		s.throttle.SetLimit(rate.Limit(cfg.Server.RequestsPerSecond))
		s.throttle.SetBurst(burst)
		s.logger.Infow("Request throttle applied",
			"requests_per_second", cfg.Server.RequestsPerSecond,
			"burst", burst)
	}

	// SetCapacity is idempotent, so the budget is re-applied on every
	// reload rather than diffed against a held config.
	s.queue.Limiter().SetCapacity(cfg.Surge.MaxZapsPerMinute)
	s.logger.Debugw("Zap budget applied",
		"max_zaps_per_minute", cfg.Surge.MaxZapsPerMinute)

	// Restart-required notices. The held config is never swapped out, so
	// these compare against the values the server was built with.
	if cfg.GetServerPort() != s.cfg.GetServerPort() {
		s.logger.Warnw("server.port changed; restart required to apply",
			"running", s.cfg.GetServerPort(),
			"configured", cfg.GetServerPort())
	}
	if cfg.Surge.Workers != s.cfg.Surge.Workers {
		s.logger.Warnw("surge.workers changed; restart required to apply",
			"running", s.cfg.Surge.Workers,
			"configured", cfg.Surge.Workers)
	}
	if cfg.Auth.Enabled != s.cfg.Auth.Enabled {
		s.logger.Warnw("auth.enabled changed; restart required to apply",
			"running", s.cfg.Auth.Enabled,
			"configured", cfg.Auth.Enabled)
	}

	return nil
}
