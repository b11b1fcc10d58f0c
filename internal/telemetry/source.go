// Package telemetry defines the pull interface to the physical model that
// supplies raw node health.
package telemetry

import (
	"context"
	"sync"

	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

// Source returns fresh health readings for the nodes it maps. Nodes missing
// from the result keep their current health. Implementations must not expect
// any call back from the network.
type Source interface {
	Pull(ctx context.Context) (map[model.NodeID]float64, error)
}

// FuncSource adapts a function to Source
type FuncSource func(ctx context.Context) (map[model.NodeID]float64, error)

// Pull implements Source
func (f FuncSource) Pull(ctx context.Context) (map[model.NodeID]float64, error) {
	return f(ctx)
}

// StaticSource serves a mutable set of readings
type StaticSource struct {
	mu       sync.RWMutex
	readings map[model.NodeID]float64
}

// NewStaticSource creates a source seeded with readings
func NewStaticSource(readings map[model.NodeID]float64) *StaticSource {
	s := &StaticSource{readings: make(map[model.NodeID]float64, len(readings))}
	for id, h := range readings {
		s.readings[id] = h
	}
	return s
}

// Set updates one reading
func (s *StaticSource) Set(id model.NodeID, health float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[id] = health
}

// Delete stops reporting a node
func (s *StaticSource) Delete(id model.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.readings, id)
}

// Pull implements Source
func (s *StaticSource) Pull(ctx context.Context) (map[model.NodeID]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.NodeID]float64, len(s.readings))
	for id, h := range s.readings {
		out[id] = h
	}
	return out, nil
}
