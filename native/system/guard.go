package system

import (
	"shade/core/errors"
	"shade/core/state"
)

type guardState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Guard is the single-flag reentrancy sentinel. The flag lives in persistent
// state so a rollback restores it together with every other write of the
// failed call; it must be true only for the dynamic extent of a guarded
// section.
type Guard struct {
	state guardState
}

// NewGuard creates a reentrancy guard over the provided state.
func NewGuard(st guardState) *Guard {
	return &Guard{state: st}
}

// Enter sets the sentinel, failing if a guarded section is already active.
// A nested call re-entering a guarded entry point (e.g. via a token contract
// invoked mid-operation) trips here before touching any state.
func (g *Guard) Enter() error {
	var active bool
	exists, err := g.state.KVGet(state.ReentrancyKey(), &active)
	if err != nil {
		return err
	}
	if exists && active {
		return errors.ErrReentrancy
	}
	return g.state.KVPut(state.ReentrancyKey(), true)
}

// Exit clears the sentinel unconditionally. Guarded operations must call it on
// every exit path so the flag never leaks across calls.
func (g *Guard) Exit() error {
	return g.state.KVDelete(state.ReentrancyKey())
}
