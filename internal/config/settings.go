package config

import (
	"sync"

	"github.com/dudu/faceswap/internal/swapper"
)

// StaticSettings serves a blend configuration held in memory. It can be
// updated while invocations run; each invocation sees one consistent value.
type StaticSettings struct {
	mu  sync.RWMutex
	cfg swapper.BlendConfig
}

// NewStaticSettings returns settings that start at cfg
func NewStaticSettings(cfg swapper.BlendConfig) *StaticSettings {
	return &StaticSettings{cfg: cfg.Clamp()}
}

// BlendConfig returns the current configuration
func (s *StaticSettings) BlendConfig() swapper.BlendConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update applies fn to the configuration and stores the clamped result
func (s *StaticSettings) Update(fn func(*swapper.BlendConfig)) swapper.BlendConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cfg)
	s.cfg = s.cfg.Clamp()
	return s.cfg
}
