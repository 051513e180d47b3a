package tournament

import (
	"sync"
	"sync/atomic"

	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// revealEntry pairs a RevealedArtifact with the ordering sequence number of
// the reveal call that produced it, used to resolve filename collisions
// across workers (the later reveal wins, per spec.md §4.F).
type revealEntry struct {
	artifact models.RevealedArtifact
	workerID string
	seq      int64
}

// RevealStore holds one worker's currently revealed artifacts, keyed by
// filename. Re-revealing a filename replaces the prior entry.
type RevealStore struct {
	mu      sync.Mutex
	entries map[string]revealEntry
}

// NewRevealStore creates an empty RevealStore.
func NewRevealStore() *RevealStore {
	return &RevealStore{entries: make(map[string]revealEntry)}
}

// Reveal records or replaces filename's entry.
func (s *RevealStore) Reveal(workerID string, artifact models.RevealedArtifact, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[artifact.Filename] = revealEntry{artifact: artifact, workerID: workerID, seq: seq}
}

// Snapshot returns the current entries, unordered.
func (s *RevealStore) Snapshot() []revealEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]revealEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

// Artifacts returns the current entries as plain RevealedArtifact values.
func (s *RevealStore) Artifacts() []models.RevealedArtifact {
	snap := s.Snapshot()
	out := make([]models.RevealedArtifact, 0, len(snap))
	for _, e := range snap {
		out = append(out, e.artifact)
	}
	return out
}

// Sequencer hands out monotonically increasing reveal sequence numbers
// shared across every worker in a tournament run, so cross-worker filename
// collisions can be resolved by "later reveal wins".
type Sequencer struct{ n atomic.Int64 }

func (s *Sequencer) next() int64 { return s.n.Add(1) }
