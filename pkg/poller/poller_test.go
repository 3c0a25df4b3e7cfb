package poller_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freecasterhq/freecaster-grid/pkg/grid"
	"github.com/freecasterhq/freecaster-grid/pkg/gridclient"
	"github.com/freecasterhq/freecaster-grid/pkg/models"
	"github.com/freecasterhq/freecaster-grid/pkg/poller"
)

const testSecret = "sesame"

// scriptedRolls yields a fixed sequence of rolls so election outcomes are
// predictable.
type scriptedRolls struct {
	vals []uint64
	i    int
}

func (r *scriptedRolls) Uint64() uint64 {
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v
}

// fakePeer is one scripted grid member: its probe endpoint can be toggled
// between healthy and failing, and its obituary answer is configurable.
type fakePeer struct {
	name string
	srv  *httptest.Server

	mu        sync.Mutex
	failing   bool
	obituary  models.ObituaryResponse
	broadcast []models.SilenceBroadcastRequest
}

func newFakePeer(t *testing.T, name string) *fakePeer {
	t.Helper()

	p := &fakePeer{name: name, obituary: models.ObituaryResponse{DeadNodes: []models.DeadNodeResponse{}}}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		failing := p.failing
		p.mu.Unlock()

		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(models.StatusResponse{Version: "dev", Name: p.name})
	})
	mux.HandleFunc("/obituary/"+testSecret, func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		obituary := p.obituary
		p.mu.Unlock()
		_ = json.NewEncoder(w).Encode(obituary)
	})
	mux.HandleFunc("/silence-broadcast/"+testSecret, func(w http.ResponseWriter, r *http.Request) {
		var req models.SilenceBroadcastRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		p.broadcast = append(p.broadcast, req)
		p.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePeer) setFailing(failing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing = failing
}

func (p *fakePeer) setObituary(obituary models.ObituaryResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.obituary = obituary
}

func (p *fakePeer) broadcasts() []models.SilenceBroadcastRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.SilenceBroadcastRequest(nil), p.broadcast...)
}

func (p *fakePeer) node() grid.Node {
	return grid.Node{Name: p.name, Address: p.srv.URL}
}

// recordingAnnouncer captures announcements instead of delivering them.
type recordingAnnouncer struct {
	mu         sync.Mutex
	deaths     []string
	recoveries []string
}

func (a *recordingAnnouncer) AnnounceDeath(_ context.Context, target grid.Node) humane.Error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deaths = append(a.deaths, target.Name)
	return nil
}

func (a *recordingAnnouncer) AnnounceRecovery(_ context.Context, target grid.Node) humane.Error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recoveries = append(a.recoveries, target.Name)
	return nil
}

type fixture struct {
	poller    *poller.Poller
	state     *grid.State
	announcer *recordingAnnouncer
}

// online serves the connectivity sentinel.
func online(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newFixture(t *testing.T, connectivityURL string, rolls []uint64, peers ...*fakePeer) *fixture {
	t.Helper()

	roster := []grid.Node{{Name: "okarthel"}}
	for _, peer := range peers {
		roster = append(roster, peer.node())
	}

	registry := grid.NewRegistry("okarthel", roster)
	state := grid.NewState(registry.Peers(),
		grid.WithRollSource(&scriptedRolls{vals: rolls}),
	)

	client, err := gridclient.New("okarthel", testSecret,
		gridclient.WithConnectivityURL(connectivityURL),
		gridclient.WithTimeout(2*time.Second),
	)
	require.NoError(t, err)

	announcer := &recordingAnnouncer{}

	return &fixture{
		poller:    poller.New(registry, state, client, announcer),
		state:     state,
		announcer: announcer,
	}
}

func TestLoneFailingPeerIsAnnouncedByUs(t *testing.T) {
	t.Parallel()

	peer := newFakePeer(t, "brennagh")
	peer.setFailing(true)

	f := newFixture(t, online(t).URL, []uint64{42}, peer)
	ctx := context.Background()

	// Two cycles: still counting up, nothing announced.
	f.poller.RunOnce(ctx)
	f.poller.RunOnce(ctx)
	assert.Empty(t, f.announcer.deaths)

	// Third failure crosses the threshold. No other peer is reachable, so
	// the local node alone is a strict majority and wins its own election.
	f.poller.RunOnce(ctx)
	assert.Equal(t, []string{"brennagh"}, f.announcer.deaths)

	entry, ok := f.state.Peer("brennagh")
	require.True(t, ok)
	assert.Equal(t, models.StatusDead, entry.Status())
	assert.Equal(t, "okarthel", entry.AnnouncedBy)

	// Further cycles must not repeat the announcement.
	f.poller.RunOnce(ctx)
	assert.Equal(t, []string{"brennagh"}, f.announcer.deaths)
}

func TestRecoveryIsAnnouncedByTheDeathAnnouncer(t *testing.T) {
	t.Parallel()

	peer := newFakePeer(t, "brennagh")
	peer.setFailing(true)

	f := newFixture(t, online(t).URL, []uint64{42}, peer)
	ctx := context.Background()

	for range grid.DeadAfter {
		f.poller.RunOnce(ctx)
	}
	require.Equal(t, []string{"brennagh"}, f.announcer.deaths)

	peer.setFailing(false)
	f.poller.RunOnce(ctx)

	assert.Equal(t, []string{"brennagh"}, f.announcer.recoveries)

	entry, ok := f.state.Peer("brennagh")
	require.True(t, ok)
	assert.Equal(t, models.StatusAlive, entry.Status())
}

func TestPeerWithHigherRollWinsTheElection(t *testing.T) {
	t.Parallel()

	dying := newFakePeer(t, "brennagh")
	dying.setFailing(true)

	confirmer := newFakePeer(t, "caldris")
	confirmer.setObituary(models.ObituaryResponse{
		DeadNodes: []models.DeadNodeResponse{{Name: "brennagh", Roll: 99}},
	})

	// Our own roll is lower, so caldris is responsible for announcing.
	f := newFixture(t, online(t).URL, []uint64{5}, dying, confirmer)
	ctx := context.Background()

	for range grid.DeadAfter {
		f.poller.RunOnce(ctx)
	}

	assert.Empty(t, f.announcer.deaths)

	entry, ok := f.state.Peer("brennagh")
	require.True(t, ok)
	assert.Equal(t, models.StatusDead, entry.Status())
	assert.Equal(t, "caldris", entry.AnnouncedBy)
}

func TestOurHigherRollWinsTheElection(t *testing.T) {
	t.Parallel()

	dying := newFakePeer(t, "brennagh")
	dying.setFailing(true)

	confirmer := newFakePeer(t, "caldris")
	confirmer.setObituary(models.ObituaryResponse{
		DeadNodes: []models.DeadNodeResponse{{Name: "brennagh", Roll: 10}},
	})

	f := newFixture(t, online(t).URL, []uint64{90}, dying, confirmer)
	ctx := context.Background()

	for range grid.DeadAfter {
		f.poller.RunOnce(ctx)
	}

	assert.Equal(t, []string{"brennagh"}, f.announcer.deaths)
}

func TestDissentingPeerBlocksTheAnnouncement(t *testing.T) {
	t.Parallel()

	dying := newFakePeer(t, "brennagh")
	dying.setFailing(true)

	// caldris answers the exchange but does not consider brennagh dead:
	// one yes vote and one no vote is not a strict majority.
	dissenter := newFakePeer(t, "caldris")

	f := newFixture(t, online(t).URL, []uint64{90}, dying, dissenter)
	ctx := context.Background()

	for range grid.DeadAfter + 2 {
		f.poller.RunOnce(ctx)
	}

	assert.Empty(t, f.announcer.deaths)

	entry, ok := f.state.Peer("brennagh")
	require.True(t, ok)
	assert.Equal(t, models.StatusDying, entry.Status())
	assert.Empty(t, entry.AnnouncedBy)
}

func TestOfflineNodeSkipsTheWholeCycle(t *testing.T) {
	t.Parallel()

	peer := newFakePeer(t, "brennagh")
	peer.setFailing(true)

	offline := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(offline.Close)

	f := newFixture(t, offline.URL, []uint64{42}, peer)
	ctx := context.Background()

	for range grid.DeadAfter + 1 {
		f.poller.RunOnce(ctx)
	}

	// Without the connectivity sentinel no probes are recorded at all.
	entry, ok := f.state.Peer("brennagh")
	require.True(t, ok)
	assert.Equal(t, 0, entry.FailCount)
	assert.Empty(t, f.announcer.deaths)
}

func TestSilencedPeerIsNotProbed(t *testing.T) {
	t.Parallel()

	peer := newFakePeer(t, "brennagh")
	peer.setFailing(true)

	other := newFakePeer(t, "caldris")

	f := newFixture(t, online(t).URL, []uint64{7, 8}, peer, other)
	ctx := context.Background()

	f.state.CreateSilence("brennagh", time.Now().UTC().Add(time.Hour))

	f.poller.RunOnce(ctx)
	f.poller.RunOnce(ctx)

	entry, ok := f.state.Peer("brennagh")
	require.True(t, ok)
	assert.Equal(t, 0, entry.FailCount)
}

func TestSilenceIsGossipedOnce(t *testing.T) {
	t.Parallel()

	brennagh := newFakePeer(t, "brennagh")
	caldris := newFakePeer(t, "caldris")

	f := newFixture(t, online(t).URL, []uint64{7}, brennagh, caldris)
	ctx := context.Background()

	silence := f.state.CreateSilence("caldris", time.Now().UTC().Add(time.Hour))

	f.poller.RunOnce(ctx)

	// The first peer in roster order accepted the broadcast; nobody else
	// is contacted and later cycles do not gossip again.
	received := brennagh.broadcasts()
	require.Len(t, received, 1)
	assert.Equal(t, silence.ID, received[0].ID)
	assert.Equal(t, "caldris", received[0].NodeName)
	assert.Empty(t, caldris.broadcasts())

	f.poller.RunOnce(ctx)
	assert.Len(t, brennagh.broadcasts(), 1)
}

func TestExpiredSilenceResumesProbing(t *testing.T) {
	t.Parallel()

	peer := newFakePeer(t, "brennagh")
	peer.setFailing(true)

	f := newFixture(t, online(t).URL, []uint64{7}, peer)
	ctx := context.Background()

	f.state.CreateSilence("brennagh", time.Now().UTC().Add(50*time.Millisecond))

	time.Sleep(100 * time.Millisecond)
	f.poller.RunOnce(ctx)

	entry, ok := f.state.Peer("brennagh")
	require.True(t, ok)
	assert.Equal(t, 1, entry.FailCount)
}
