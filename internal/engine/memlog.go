package engine

import (
	"context"
	"sync"

	"github.com/rawblock/discovery-engine/pkg/model"
)

// MemorySignalLog is an in-process SignalLog: append order is preserved
// and replay is scoped by (entity, pass), but nothing survives the
// process. It backs the degraded run mode when no database is configured.
type MemorySignalLog struct {
	mu      sync.Mutex
	signals []model.Signal
}

// NewMemorySignalLog constructs an empty in-memory log.
func NewMemorySignalLog() *MemorySignalLog {
	return &MemorySignalLog{}
}

func (m *MemorySignalLog) Append(ctx context.Context, s model.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, s)
	return nil
}

func (m *MemorySignalLog) Replay(ctx context.Context, entityID string, passNumber int) ([]model.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Signal
	for _, s := range m.signals {
		if s.EntityID == entityID && s.PassNumber == passNumber {
			out = append(out, s)
		}
	}
	return out, nil
}
