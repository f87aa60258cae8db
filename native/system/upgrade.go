package system

import (
	"time"

	"shade/core/events"
	"shade/core/state"
)

// CodeStore is the host facility that swaps the running code image. The
// storage layout is a stability contract: every persisted record must remain
// readable after a swap.
type CodeStore interface {
	Swap(hash [32]byte) error
}

type upgradeState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Upgrader swaps the running code image on admin request.
type Upgrader struct {
	state   upgradeState
	admin   adminChecker
	code    CodeStore
	emitter events.Emitter
	nowFn   func() uint64
}

// NewUpgrader creates an upgrade engine with a no-op emitter.
func NewUpgrader(st upgradeState, admin adminChecker, code CodeStore) *Upgrader {
	return &Upgrader{
		state:   st,
		admin:   admin,
		code:    code,
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (u *Upgrader) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		u.emitter = events.NoopEmitter{}
		return
	}
	u.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (u *Upgrader) SetNowFunc(now func() uint64) {
	if now == nil {
		u.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	u.nowFn = now
}

// Upgrade instructs the host to replace the running code image with the one
// identified by newCodeHash and records the active hash.
func (u *Upgrader) Upgrade(caller [20]byte, newCodeHash [32]byte) error {
	if err := u.admin.RequireAdmin(caller); err != nil {
		return err
	}
	if u.code != nil {
		if err := u.code.Swap(newCodeHash); err != nil {
			return err
		}
	}
	if err := u.state.KVPut(state.CodeHashKey(), newCodeHash); err != nil {
		return err
	}
	u.emitter.Emit(events.ContractUpgraded{NewCodeHash: newCodeHash, Timestamp: u.nowFn()})
	return nil
}

// CodeHash returns the hash recorded by the most recent upgrade. The boolean
// is false when no upgrade has happened yet.
func (u *Upgrader) CodeHash() ([32]byte, bool, error) {
	var hash [32]byte
	exists, err := u.state.KVGet(state.CodeHashKey(), &hash)
	return hash, exists, err
}
