package system

import (
	"time"

	"shade/core/errors"
	"shade/core/events"
	"shade/core/state"
)

type pauseState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

type adminChecker interface {
	RequireAdmin(caller [20]byte) error
}

// Pause is the global circuit breaker gating mutating entry points. The flag
// is a keyed record in persistent state, so it survives across calls and is
// covered by atomic rollback.
type Pause struct {
	state   pauseState
	admin   adminChecker
	emitter events.Emitter
	nowFn   func() uint64
}

// NewPause creates a pause engine with a no-op emitter.
func NewPause(st pauseState, admin adminChecker) *Pause {
	return &Pause{
		state:   st,
		admin:   admin,
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (p *Pause) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (p *Pause) SetNowFunc(now func() uint64) {
	if now == nil {
		p.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	p.nowFn = now
}

// Pause trips the circuit breaker. Pausing while already paused fails and
// leaves the flag unchanged.
func (p *Pause) Pause(caller [20]byte) error {
	if err := p.admin.RequireAdmin(caller); err != nil {
		return err
	}
	if p.IsPaused() {
		return errors.ErrContractPaused
	}
	if err := p.state.KVPut(state.PausedKey(), true); err != nil {
		return err
	}
	p.emitter.Emit(events.ContractPaused{Admin: caller, Timestamp: p.nowFn()})
	return nil
}

// Unpause clears the circuit breaker. Unpausing while not paused fails.
func (p *Pause) Unpause(caller [20]byte) error {
	if err := p.admin.RequireAdmin(caller); err != nil {
		return err
	}
	if !p.IsPaused() {
		return errors.ErrContractNotPaused
	}
	if err := p.state.KVDelete(state.PausedKey()); err != nil {
		return err
	}
	p.emitter.Emit(events.ContractUnpaused{Admin: caller, Timestamp: p.nowFn()})
	return nil
}

// IsPaused reports the flag; absent-or-false means unpaused.
func (p *Pause) IsPaused() bool {
	var paused bool
	exists, err := p.state.KVGet(state.PausedKey(), &paused)
	if err != nil || !exists {
		return false
	}
	return paused
}

// AssertNotPaused is the read-only precondition used by mutating entry points.
func (p *Pause) AssertNotPaused() error {
	if p.IsPaused() {
		return errors.ErrContractPaused
	}
	return nil
}

// AssertPaused is the inverse precondition.
func (p *Pause) AssertPaused() error {
	if !p.IsPaused() {
		return errors.ErrContractNotPaused
	}
	return nil
}
