// Package grid holds the failure-detection core of freecaster-grid: the
// per-peer failure tracker, the silence set, and the deterministic
// announcement election. All mutable state lives in one State aggregate
// behind a single mutex; the poller and the HTTP handlers share it.
//
// The lock is only ever held around in-memory mutation, never across
// network I/O.
package grid

import (
	"math"
	"sync"
	"time"

	"github.com/spechtlabs/go-otel-utils/otelzap"
	"go.uber.org/zap"

	"github.com/freecasterhq/freecaster-grid/pkg/models"
)

// DeadAfter is the number of consecutive failed probe cycles after which a
// peer is considered dying.
const DeadAfter = 3

// NodeState is this node's view of one peer: probe bookkeeping, the local
// announcement roll, and the confirmations gathered from other peers
// during the obituary exchange.
type NodeState struct {
	Name          string
	LastPoll      *time.Time
	LastFail      *time.Time
	FailCount     int
	Confirmations map[string]Confirmation

	// LocalRoll is drawn exactly when FailCount crosses DeadAfter and is
	// unset otherwise.
	LocalRoll *uint64

	// AnnouncedBy is the name of the node that took responsibility for
	// announcing the death, or empty while no election concluded.
	AnnouncedBy string
}

// Status derives the peer's liveness status from the tracker state.
func (n *NodeState) Status() models.NodeStatus {
	switch {
	case n.FailCount >= DeadAfter && n.AnnouncedBy != "":
		return models.StatusDead
	case n.FailCount >= DeadAfter:
		return models.StatusDying
	default:
		return models.StatusAlive
	}
}

func (n *NodeState) isDead() bool { return n.FailCount >= DeadAfter }

// reset clears all failure bookkeeping after a successful probe. FailCount,
// confirmations, rolls, announcement and last failure go together: a peer
// that answered is fully alive again.
func (n *NodeState) reset() {
	n.FailCount = 0
	n.Confirmations = make(map[string]Confirmation)
	n.LocalRoll = nil
	n.LastFail = nil
	n.AnnouncedBy = ""
}

func (n *NodeState) copy() NodeState {
	c := *n
	c.Confirmations = make(map[string]Confirmation, len(n.Confirmations))
	for name, confirmation := range n.Confirmations {
		c.Confirmations[name] = confirmation
	}
	return c
}

// State is the process-wide aggregate of per-peer tracker state and active
// silences. One mutex guards both; every exported method takes and
// releases it internally.
type State struct {
	mu       sync.Mutex
	nodes    map[string]*NodeState
	silences []Silence
	rolls    RollSource
}

// StateOption customizes a State.
type StateOption func(*State)

// WithRollSource replaces the OS-entropy roll source, letting tests draw
// deterministic announcement rolls and silence ids.
func WithRollSource(rolls RollSource) StateOption {
	return func(s *State) { s.rolls = rolls }
}

// NewState creates the aggregate with one tracker entry per peer. The
// peers slice must already exclude the local node (see Registry).
func NewState(peers []Node, opts ...StateOption) *State {
	s := &State{
		nodes: make(map[string]*NodeState, len(peers)),
		rolls: DefaultRollSource(),
	}

	for _, peer := range peers {
		s.nodes[peer.Name] = &NodeState{
			Name:          peer.Name,
			Confirmations: make(map[string]Confirmation),
		}
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ProbeOutcome reports what a recorded probe changed.
type ProbeOutcome struct {
	// Recovered is true when the peer was Dead (announced) and answered
	// again; AnnouncedBy names the node that had announced the death.
	Recovered   bool
	AnnouncedBy string
}

// ProbeRecord is one probe result to be applied to the tracker.
type ProbeRecord struct {
	Name    string
	Failing bool
	At      time.Time
}

// Recovery marks a peer that answered again after its death had been
// announced by AnnouncedBy.
type Recovery struct {
	Name        string
	AnnouncedBy string
}

// RecordProbe applies one probe result to the tracker. On failure the
// fail count advances up to DeadAfter, drawing the local announcement roll
// exactly at the crossing. On success the entry is fully reset; if the
// peer had been announced dead, the outcome flags a recovery.
func (s *State) RecordProbe(name string, failing bool, at time.Time) ProbeOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.recordProbeLocked(name, failing, at)
}

// RecordProbes applies a whole cycle's probe results under one lock
// acquisition and collects the recoveries.
func (s *State) RecordProbes(records []ProbeRecord) []Recovery {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recoveries []Recovery
	for _, record := range records {
		outcome := s.recordProbeLocked(record.Name, record.Failing, record.At)
		if outcome.Recovered {
			recoveries = append(recoveries, Recovery{Name: record.Name, AnnouncedBy: outcome.AnnouncedBy})
		}
	}
	return recoveries
}

func (s *State) recordProbeLocked(name string, failing bool, at time.Time) ProbeOutcome {
	node, ok := s.nodes[name]
	if !ok {
		return ProbeOutcome{}
	}

	node.LastPoll = &at

	if failing {
		node.LastFail = &at
		if !node.isDead() {
			node.FailCount++
			if node.isDead() {
				roll := s.rolls.Uint64()
				node.LocalRoll = &roll
				otelzap.L().Warn("Peer crossed the failure threshold",
					zap.String("peer", name),
					zap.Uint64("roll", roll),
					zap.Time("last_fail", at),
				)
			}
		}
		return ProbeOutcome{}
	}

	outcome := ProbeOutcome{
		Recovered:   node.isDead() && node.AnnouncedBy != "",
		AnnouncedBy: node.AnnouncedBy,
	}
	if node.isDead() {
		otelzap.L().Info("Peer is back up", zap.String("peer", name))
	}
	node.reset()
	return outcome
}

// NeedsObituaryExchange reports whether any peer is Dying: past the
// failure threshold with no announcement decided yet.
func (s *State) NeedsObituaryExchange() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, node := range s.nodes {
		if node.isDead() && node.AnnouncedBy == "" {
			return true
		}
	}
	return false
}

// DeadSet returns the names of every peer past the failure threshold,
// announced or not. Peers in this set are not asked for obituaries.
func (s *State) DeadSet() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	dead := make(map[string]bool)
	for name, node := range s.nodes {
		if node.isDead() {
			dead[name] = true
		}
	}
	return dead
}

// Obituary lists every Dying or Dead peer with the roll this node drew for
// it. A missing roll falls back to the maximum unsigned value so the entry
// never wins an election by accident.
func (s *State) Obituary() []models.DeadNodeResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadNodes := make([]models.DeadNodeResponse, 0)
	for _, node := range s.nodes {
		if !node.isDead() {
			continue
		}

		roll := uint64(math.MaxUint64)
		if node.LocalRoll != nil {
			roll = *node.LocalRoll
		}
		deadNodes = append(deadNodes, models.DeadNodeResponse{Name: node.Name, Roll: roll})
	}
	return deadNodes
}

// ApplyObituaries merges the obituary responses of one exchange round into
// the confirmation maps of every Dying entry. A peer that answered but did
// not list a dying node counts as a "not dead" vote for that node. Peers
// that could not be reached are absent from responses and simply do not
// vote this cycle.
func (s *State) ApplyObituaries(responses map[string]models.ObituaryResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for from, obituary := range responses {
		for _, deadNode := range obituary.DeadNodes {
			node, ok := s.nodes[deadNode.Name]
			if !ok || !node.isDead() {
				// The peer reports a death we do not observe; its vote only
				// matters for nodes we consider dying ourselves.
				continue
			}

			otelzap.L().Warn("Peer death confirmed",
				zap.String("peer", deadNode.Name),
				zap.String("confirmed_by", from),
				zap.Uint64("roll", deadNode.Roll),
			)
			roll := deadNode.Roll
			node.Confirmations[from] = Confirmation{ConfirmedRoll: &roll}
		}

		for _, node := range s.nodes {
			if !node.isDead() {
				continue
			}
			if _, voted := node.Confirmations[from]; !voted {
				node.Confirmations[from] = Confirmation{}
			}
		}
	}
}

// ElectAnnouncers runs the election over every Dying entry and marks the
// winners. It returns the names of peers whose death THIS node must
// announce. Entries that already carry an announcement are left alone, so
// repeated invocation is idempotent until the peer recovers.
func (s *State) ElectAnnouncers(me string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toAnnounce []string
	for _, node := range s.nodes {
		if !node.isDead() || node.AnnouncedBy != "" || node.LocalRoll == nil {
			continue
		}

		winner, quorum := Elect(me, *node.LocalRoll, node.Confirmations)
		if !quorum {
			otelzap.L().Info("Death not confirmed by quorum",
				zap.String("peer", node.Name),
				zap.Int("votes", len(node.Confirmations)),
			)
			continue
		}

		node.AnnouncedBy = winner
		otelzap.L().Warn("Death confirmed by quorum",
			zap.String("peer", node.Name),
			zap.String("announcer", winner),
		)

		if winner == me {
			toAnnounce = append(toAnnounce, node.Name)
		}
	}
	return toAnnounce
}

// Snapshot returns a deep copy of every tracker entry.
func (s *State) Snapshot() []NodeState {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := make([]NodeState, 0, len(s.nodes))
	for _, node := range s.nodes {
		nodes = append(nodes, node.copy())
	}
	return nodes
}

// Peer returns a copy of one tracker entry, mainly for tests.
func (s *State) Peer(name string) (NodeState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[name]
	if !ok {
		return NodeState{}, false
	}
	return node.copy(), true
}
