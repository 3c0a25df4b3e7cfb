package grid

import (
	"time"

	"github.com/spechtlabs/go-otel-utils/otelzap"
	"go.uber.org/zap"

	"github.com/freecasterhq/freecaster-grid/pkg/models"
)

// Silence suppresses outbound probes of one named node until SilentUntil.
// It does not suppress inbound traffic, obituary responses, or
// announcements already in flight.
type Silence struct {
	// ID is a random 64-bit idempotency key; a broadcast carrying an
	// already-known ID is a no-op.
	ID uint64

	NodeName    string
	SilentUntil time.Time

	// Broadcasted is true once this process pushed the silence to at least
	// one peer, or the silence arrived via broadcast in the first place.
	// Received records count as already gossiped, which is what keeps the
	// broadcast from looping through the grid.
	Broadcasted bool
}

// BroadcastRequest converts the silence to its wire form.
func (sl Silence) BroadcastRequest() models.SilenceBroadcastRequest {
	return models.SilenceBroadcastRequest{
		ID:          sl.ID,
		NodeName:    sl.NodeName,
		SilentUntil: sl.SilentUntil,
	}
}

// CreateSilence inserts an operator-issued silence for target with a fresh
// random id. The caller is responsible for validating that target is a
// known roster name.
func (s *State) CreateSilence(target string, until time.Time) Silence {
	s.mu.Lock()
	defer s.mu.Unlock()

	silence := Silence{
		ID:          s.rolls.Uint64(),
		NodeName:    target,
		SilentUntil: until,
	}
	s.silences = append(s.silences, silence)
	activeSilences.Set(float64(len(s.silences)))

	otelzap.L().Info("Silence added",
		zap.String("target", target),
		zap.Uint64("id", silence.ID),
		zap.Time("silent_until", until),
	)
	return silence
}

// ReceiveSilence stores a silence that arrived via broadcast. It reports
// false when the id is already known (idempotent receive). Received
// silences are marked broadcasted so they are not gossiped again.
func (s *State) ReceiveSilence(req models.SilenceBroadcastRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, silence := range s.silences {
		if silence.ID == req.ID {
			return false
		}
	}

	s.silences = append(s.silences, Silence{
		ID:          req.ID,
		NodeName:    req.NodeName,
		SilentUntil: req.SilentUntil,
		Broadcasted: true,
	})
	activeSilences.Set(float64(len(s.silences)))
	return true
}

// ReapSilences drops every silence whose expiry is at or before now, then
// returns a snapshot of the survivors. A silence expiring exactly at now
// is already expired.
func (s *State) ReapSilences(now time.Time) []Silence {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.silences[:0]
	for _, silence := range s.silences {
		if silence.SilentUntil.After(now) {
			kept = append(kept, silence)
		}
	}
	s.silences = kept
	activeSilences.Set(float64(len(s.silences)))

	snapshot := make([]Silence, len(s.silences))
	copy(snapshot, s.silences)
	return snapshot
}

// IsSilenced reports whether any non-expired silence targets name.
func (s *State) IsSilenced(name string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, silence := range s.silences {
		if silence.NodeName == name && silence.SilentUntil.After(now) {
			return true
		}
	}
	return false
}

// MarkBroadcasted flips the broadcasted bit of the given silence ids after
// at least one peer accepted them.
func (s *State) MarkBroadcasted(ids []uint64) {
	if len(ids) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.silences {
		for _, id := range ids {
			if s.silences[i].ID == id {
				s.silences[i].Broadcasted = true
			}
		}
	}
}
