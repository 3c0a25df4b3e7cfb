// Package poller drives the grid's single periodic observation cycle:
// silence maintenance and gossip, peer probing, failure tracking, the
// obituary exchange, the announcer election, and publication of the
// results. One poller runs per process, next to the HTTP server, sharing
// the same grid.State.
package poller

import (
	"context"
	"time"

	"github.com/spechtlabs/go-otel-utils/otelzap"
	"go.uber.org/zap"

	"github.com/freecasterhq/freecaster-grid/pkg/announce"
	"github.com/freecasterhq/freecaster-grid/pkg/grid"
	"github.com/freecasterhq/freecaster-grid/pkg/gridclient"
	"github.com/freecasterhq/freecaster-grid/pkg/models"
)

// DefaultInterval is the poll period used when none is configured.
const DefaultInterval = 10 * time.Second

// Poller is the cycle driver. It owns no state of its own; everything it
// mutates lives in the shared grid.State, and the lock there is never
// held across any of the network calls made here.
type Poller struct {
	registry  *grid.Registry
	state     *grid.State
	client    *gridclient.Client
	announcer announce.Announcer
	interval  time.Duration
}

// Option customizes a Poller.
type Option func(*Poller)

// WithInterval overrides the poll period.
func WithInterval(interval time.Duration) Option {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// New creates a poller observing the registry's peers.
func New(registry *grid.Registry, state *grid.State, client *gridclient.Client, announcer announce.Announcer, opts ...Option) *Poller {
	p := &Poller{
		registry:  registry,
		state:     state,
		client:    client,
		announcer: announcer,
		interval:  DefaultInterval,
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs poll cycles until the context is done. The first cycle runs
// immediately; fatal errors inside a cycle are logged and the loop
// continues.
func (p *Poller) Start(ctx context.Context) {
	otelzap.L().Info("Starting poller",
		zap.String("node", p.registry.Self().Name),
		zap.Duration("interval", p.interval),
	)

	p.RunOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single poll cycle. Exposed for tests and for
// one-shot diagnostics.
func (p *Poller) RunOnce(ctx context.Context) {
	// A local network outage must not declare the whole grid dead.
	if !p.client.HasConnectivity(ctx) {
		otelzap.L().Warn("No internet connection, skipping poll cycle")
		pollCyclesSkipped.Inc()
		return
	}

	now := time.Now().UTC()
	pollCyclesTotal.Inc()

	silences := p.state.ReapSilences(now)
	p.gossipSilences(ctx, silences)

	records := p.probePeers(ctx, silences)

	recoveries := p.state.RecordProbes(records)
	p.announceRecoveries(ctx, recoveries)

	responses := p.exchangeObituaries(ctx)
	p.state.ApplyObituaries(responses)

	me := p.registry.Self().Name
	for _, name := range p.state.ElectAnnouncers(me) {
		target, ok := p.registry.Lookup(name)
		if !ok {
			continue
		}
		if err := p.announcer.AnnounceDeath(ctx, target); err != nil {
			otelzap.L().ErrorContext(ctx, "Failed to deliver death announcement",
				zap.String("peer", name),
				zap.Error(err),
			)
		}
	}
}

// gossipSilences pushes every un-broadcasted silence to peers in roster
// order until one accepts. Undelivered silences stay pending and are
// retried next cycle.
func (p *Poller) gossipSilences(ctx context.Context, silences []grid.Silence) {
	var delivered []uint64

	for _, silence := range silences {
		if silence.Broadcasted {
			continue
		}

		for _, peer := range p.registry.Peers() {
			if err := p.client.BroadcastSilence(ctx, peer, silence.BroadcastRequest()); err != nil {
				otelzap.L().WarnContext(ctx, "Silence broadcast rejected",
					zap.String("peer", peer.Name),
					zap.Uint64("id", silence.ID),
					zap.Error(err),
				)
				continue
			}

			otelzap.L().InfoContext(ctx, "Silence broadcasted",
				zap.String("peer", peer.Name),
				zap.Uint64("id", silence.ID),
			)
			delivered = append(delivered, silence.ID)
			break
		}
	}

	p.state.MarkBroadcasted(delivered)
}

// probePeers probes every non-silenced peer and collects the results with
// their probe timestamps.
func (p *Poller) probePeers(ctx context.Context, silences []grid.Silence) []grid.ProbeRecord {
	silenced := make(map[string]bool, len(silences))
	for _, silence := range silences {
		silenced[silence.NodeName] = true
	}

	records := make([]grid.ProbeRecord, 0, len(p.registry.Peers()))
	for _, peer := range p.registry.Peers() {
		if silenced[peer.Name] {
			otelzap.L().InfoContext(ctx, "Peer is silenced, skipping probe", zap.String("peer", peer.Name))
			continue
		}

		at := time.Now().UTC()
		failing := p.client.Probe(ctx, peer)
		if failing {
			probeFailures.WithLabelValues(peer.Name).Inc()
		}
		records = append(records, grid.ProbeRecord{Name: peer.Name, Failing: failing, At: at})
	}
	return records
}

func (p *Poller) announceRecoveries(ctx context.Context, recoveries []grid.Recovery) {
	me := p.registry.Self().Name
	for _, recovery := range recoveries {
		if recovery.AnnouncedBy != me {
			continue
		}

		target, ok := p.registry.Lookup(recovery.Name)
		if !ok {
			continue
		}
		if err := p.announcer.AnnounceRecovery(ctx, target); err != nil {
			otelzap.L().ErrorContext(ctx, "Failed to deliver recovery announcement",
				zap.String("peer", recovery.Name),
				zap.Error(err),
			)
		}
	}
}

// exchangeObituaries asks every reachable peer outside our own dying set
// for its obituary list. Peers that cannot be reached or answer garbage
// simply do not vote this cycle.
func (p *Poller) exchangeObituaries(ctx context.Context) map[string]models.ObituaryResponse {
	responses := make(map[string]models.ObituaryResponse)

	if !p.state.NeedsObituaryExchange() {
		return responses
	}

	deadSet := p.state.DeadSet()
	for _, peer := range p.registry.Peers() {
		if deadSet[peer.Name] {
			continue
		}

		obituary, err := p.client.Obituary(ctx, peer)
		if err != nil {
			otelzap.L().ErrorContext(ctx, "Failed to fetch obituary",
				zap.String("peer", peer.Name),
				zap.Error(err),
			)
			continue
		}
		if obituary == nil {
			continue
		}

		responses[peer.Name] = *obituary
	}
	return responses
}
