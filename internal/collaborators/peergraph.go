package collaborators

import (
	"context"
	"sync"

	"github.com/rawblock/discovery-engine/pkg/model"
)

// StaticPeerGraph answers PeerGraph queries from an in-memory adjacency
// map populated at startup — the stand-in for a real partner/competitor
// network service.
type StaticPeerGraph struct {
	mu      sync.RWMutex
	peers   map[string][]string
	adopted map[string][]model.SignalCategory
}

// NewStaticPeerGraph constructs an empty graph; callers populate it via
// SetPeers/SetAdopted at startup or on catalog refresh.
func NewStaticPeerGraph() *StaticPeerGraph {
	return &StaticPeerGraph{
		peers:   make(map[string][]string),
		adopted: make(map[string][]model.SignalCategory),
	}
}

// SetPeers records entityID's known peer entities.
func (g *StaticPeerGraph) SetPeers(entityID string, peerIDs []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.peers[entityID] = peerIDs
}

// SetAdopted records which categories a peer entity is known to have
// adopted technology for.
func (g *StaticPeerGraph) SetAdopted(entityID string, categories []model.SignalCategory) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.adopted[entityID] = categories
}

func (g *StaticPeerGraph) Peers(ctx context.Context, entityID string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.peers[entityID]))
	copy(out, g.peers[entityID])
	return out, nil
}

func (g *StaticPeerGraph) AdoptedCategories(ctx context.Context, peerEntityID string) ([]model.SignalCategory, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.SignalCategory, len(g.adopted[peerEntityID]))
	copy(out, g.adopted[peerEntityID])
	return out, nil
}
