// Package models defines the wire-level data structures of the grid
// protocol. Every request and response body exchanged between grid nodes
// or returned to operators is declared here, so that the HTTP layer, the
// peer client and the poller all agree on one shape.
package models

import "time"

// NodeStatus is the derived liveness status of a peer as seen from one
// node's viewpoint.
type NodeStatus string

const (
	// StatusAlive means the peer answered recently (fail count below threshold).
	StatusAlive NodeStatus = "alive"

	// StatusDying means the peer crossed the failure threshold but no node
	// has taken responsibility for announcing its death yet.
	StatusDying NodeStatus = "dying"

	// StatusDead means the peer crossed the failure threshold and a node
	// was elected to announce the death.
	StatusDead NodeStatus = "dead"
)

// StatusResponse is the body of `GET /`. A peer is considered up iff this
// decodes from a 2xx response.
type StatusResponse struct {
	Version string `json:"version"`
	Name    string `json:"name"`
}

// DeadNodeResponse is one entry of an obituary: a peer this node considers
// dying or dead, together with the announcement roll this node drew for it.
type DeadNodeResponse struct {
	Name string `json:"name"`
	Roll uint64 `json:"roll"`
}

// ObituaryResponse is the body of `GET /obituary/{secret}`.
type ObituaryResponse struct {
	DeadNodes []DeadNodeResponse `json:"dead_nodes"`
}

// GridNodeResponse is one node in the grid snapshot.
type GridNodeResponse struct {
	Name     string     `json:"name"`
	LastPoll *time.Time `json:"last_poll"`
	Status   NodeStatus `json:"status"`
}

// GridResponse is the body of `GET /grid/{secret}`: every node of the
// roster including the responding node itself, sorted by name, plus totals.
type GridResponse struct {
	Nodes []GridNodeResponse `json:"nodes"`

	AliveNodes int `json:"alive_nodes"`
	DeadNodes  int `json:"dead_nodes"`
	DyingNodes int `json:"dying_nodes"`
	TotalNodes int `json:"total_nodes"`
}

// SilenceResponse is returned to the operator after creating a silence.
type SilenceResponse struct {
	Name        string    `json:"name"`
	SilentUntil time.Time `json:"silent_until"`
}

// SilenceBroadcastRequest is the body of `POST /silence-broadcast/{secret}`.
// The ID doubles as the idempotency key: a node receiving the same ID twice
// leaves its silence set unchanged.
type SilenceBroadcastRequest struct {
	ID          uint64    `json:"id"`
	NodeName    string    `json:"node_name"`
	SilentUntil time.Time `json:"silent_until"`
}
