package token

import (
	"fmt"
	"time"

	"shade/core/events"
	"shade/core/state"
)

// SymbolReader reads the display symbol of an external token contract. It is
// the only view of token contracts this core depends on; a failure here is a
// host-level fault and is propagated verbatim, not recovered.
type SymbolReader interface {
	Symbol(token [20]byte) (string, error)
}

type allowlistState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type adminChecker interface {
	RequireAdmin(caller [20]byte) error
}

// Allowlist is the admin-curated set of accepted settlement tokens. Insertion
// order is preserved for enumeration; membership is deduplicated.
type Allowlist struct {
	state   allowlistState
	admin   adminChecker
	tokens  SymbolReader
	emitter events.Emitter
	nowFn   func() uint64
}

// NewAllowlist creates an allow-list engine with a no-op emitter.
func NewAllowlist(st allowlistState, admin adminChecker, tokens SymbolReader) *Allowlist {
	return &Allowlist{
		state:   st,
		admin:   admin,
		tokens:  tokens,
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (a *Allowlist) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		a.emitter = events.NoopEmitter{}
		return
	}
	a.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (a *Allowlist) SetNowFunc(now func() uint64) {
	if now == nil {
		a.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	a.nowFn = now
}

// Add appends the token to the allow-list after an admin check and a symbol
// read against the token contract. Re-adding a present token is a silent
// no-op.
func (a *Allowlist) Add(caller, token [20]byte) error {
	if err := a.admin.RequireAdmin(caller); err != nil {
		return err
	}
	// Liveness/shape check: the token contract must answer for its symbol.
	if _, err := a.tokens.Symbol(token); err != nil {
		return fmt.Errorf("token allowlist: %w", err)
	}
	accepted, err := a.load()
	if err != nil {
		return err
	}
	if contains(accepted, token) {
		return nil
	}
	accepted = append(accepted, token)
	if err := a.state.KVPut(state.AcceptedTokensKey(), accepted); err != nil {
		return err
	}
	a.emitter.Emit(events.TokenAdded{Token: token, Timestamp: a.nowFn()})
	return nil
}

// Remove rebuilds the allow-list without the token. Removing an absent token
// is a silent no-op.
func (a *Allowlist) Remove(caller, token [20]byte) error {
	if err := a.admin.RequireAdmin(caller); err != nil {
		return err
	}
	accepted, err := a.load()
	if err != nil {
		return err
	}
	updated := make([][20]byte, 0, len(accepted))
	removed := false
	for _, entry := range accepted {
		if entry == token {
			removed = true
			continue
		}
		updated = append(updated, entry)
	}
	if !removed {
		return nil
	}
	if err := a.state.KVPut(state.AcceptedTokensKey(), updated); err != nil {
		return err
	}
	a.emitter.Emit(events.TokenRemoved{Token: token, Timestamp: a.nowFn()})
	return nil
}

// IsAccepted reports membership. Read failures report false.
func (a *Allowlist) IsAccepted(token [20]byte) bool {
	accepted, err := a.load()
	if err != nil {
		return false
	}
	return contains(accepted, token)
}

// Accepted returns the allow-list in insertion order.
func (a *Allowlist) Accepted() ([][20]byte, error) {
	return a.load()
}

func (a *Allowlist) load() ([][20]byte, error) {
	var accepted [][20]byte
	if _, err := a.state.KVGet(state.AcceptedTokensKey(), &accepted); err != nil {
		return nil, err
	}
	return accepted, nil
}

func contains(accepted [][20]byte, token [20]byte) bool {
	for _, entry := range accepted {
		if entry == token {
			return true
		}
	}
	return false
}
