package server

import (
	"time"

	"github.com/not-mt/zapd/surge"
	"github.com/not-mt/zapd/version"
)

const (
	// MaxStreamClients caps concurrent WebSocket subscribers.
	MaxStreamClients = 100

	// StreamSendBufferSize is the per-client outbound queue. A client
	// that falls this far behind is dropped rather than stalling the
	// fan-out.
	StreamSendBufferSize = 256

	// ShutdownTimeout bounds graceful shutdown. The worker pool alone may
	// take up to 30s to checkpoint and re-queue in-flight zaps.
	ShutdownTimeout = 45 * time.Second
)

// ServerState tracks the server lifecycle. Readiness derives from this
// explicit state instead of a global flag.
type ServerState int32

const (
	ServerStateStarting ServerState = iota // Wiring dependencies, not yet accepting work
	ServerStateReady                       // Serving requests
	ServerStateDraining                    // Graceful shutdown in progress
	ServerStateStopped                     // Shutdown complete
)

// String returns the state name used in logs and health payloads.
func (s ServerState) String() string {
	switch s {
	case ServerStateStarting:
		return "starting"
	case ServerStateReady:
		return "ready"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TaskUpdateMessage carries one task snapshot to stream subscribers.
type TaskUpdateMessage struct {
	Type string      `json:"type"` // "task_update"
	Task *surge.Task `json:"task"`
}

// EngineStatsMessage is the snapshot sent on stream connect.
type EngineStatsMessage struct {
	Type        string        `json:"type"` // "engine_stats"
	Stats       *surge.Stats  `json:"stats"`
	Metrics     surge.Metrics `json:"metrics"`
	ServerState string        `json:"server_state"`
	Timestamp   int64         `json:"timestamp"`
}

// StatusResponse is the payload of GET /api/v1/status.
type StatusResponse struct {
	Version     version.Info  `json:"version"`
	ServerState string        `json:"server_state"`
	Stats       *surge.Stats  `json:"stats"`
	Metrics     surge.Metrics `json:"metrics"`
	Clients     int           `json:"stream_clients"`
}

// ZapRequest is the body of POST /api/v1/{kind}/{id}/zap.
type ZapRequest struct {
	Duration *int64 `json:"duration"` // nil = surge.DefaultDuration
}

// ReadinessResponse is the payload of GET /health/readiness.
type ReadinessResponse struct {
	Status  string   `json:"status"` // "ready" or "unavailable"
	State   string   `json:"state"`
	Reasons []string `json:"reasons,omitempty"`
	Memory  struct {
		UsedGB  float64 `json:"used_gb"`
		TotalGB float64 `json:"total_gb"`
		Percent float64 `json:"percent"`
	} `json:"memory"`
}
