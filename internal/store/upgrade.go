package store

import (
	"fmt"

	"github.com/roach88/kinstore/internal/kv"
)

// upgradeSteps maps a version to the step that lifts a store from it to the
// next version.
var upgradeSteps = map[int]func(s *Store, tx kv.Txn) error{
	// Version 3 keys the surname index on NFC-normalised surnames. Every
	// derived table is rebuilt so no key of the old form survives.
	2: func(s *Store, tx kv.Txn) error {
		return s.rebuildSecondary(tx, nil)
	},
}

// upgrade applies the steps from version from up to CurrentVersion inside
// tx, recording each new version as it goes. A failure rolls back with tx,
// leaving the store at its original version.
func (s *Store) upgrade(tx kv.Txn, from int) error {
	s.log.Info("upgrading store", "dir", s.dir, "from", from, "to", CurrentVersion)
	for v := from; v < CurrentVersion; v++ {
		step, ok := upgradeSteps[v]
		if !ok {
			return fmt.Errorf("upgrade: no step from version %d", v)
		}
		if err := step(s, tx); err != nil {
			return fmt.Errorf("upgrade %d -> %d: %w", v, v+1, err)
		}
		if err := putMeta(tx, metaVersion, v+1); err != nil {
			return fmt.Errorf("upgrade %d -> %d: %w", v, v+1, err)
		}
	}
	return nil
}
