package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// migrations[v] upgrades a state from version v to v+1.
var migrations = map[uint64]func(st *State) error{
	1: migrateV1ToV2,
}

// Version 1 had no configurable deviation factor and did not record the
// aggregate score on generations.
func migrateV1ToV2(st *State) error {
	if st.Coordinator.DeviationFactor == 0 {
		st.Coordinator.DeviationFactor = 1
	}
	if st.Coordinator.Bounds == (Bounds{}) {
		st.Coordinator.Bounds = DefaultBounds()
	}
	for _, gens := range st.Generations {
		for _, g := range gens {
			if g.Score == nil {
				g.Score = new(big.Int)
			}
		}
	}
	return nil
}

// Migrate upgrades the held state step by step to target. Only the owner may
// migrate. Migrating to the current version is a no-op.
func (s *Store) Migrate(caller common.Address, target uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.st.RequireOwner(caller); err != nil {
		return err
	}
	if target < s.st.Version || target > CurrentVersion {
		return fmt.Errorf("%w: cannot migrate from %d to %d", ErrUnsupportedVersion, s.st.Version, target)
	}
	for v := s.st.Version; v < target; v++ {
		step, ok := migrations[v]
		if !ok {
			return fmt.Errorf("%w: no migration from version %d", ErrUnsupportedVersion, v)
		}
		if err := step(s.st); err != nil {
			return fmt.Errorf("migrate %d -> %d: %w", v, v+1, err)
		}
		s.st.Version = v + 1
		zap.L().Info("state migrated", zap.Uint64("from", v), zap.Uint64("to", v+1))
	}
	return nil
}
