// Package contract assembles the invoicing platform core behind a single
// capability interface. Every external call enters here; the facade applies
// the pause check and reentrancy guard where required, delegates to the
// owning engine for authorization and business invariants, and commits or
// rolls back the call's writes as a unit.
package contract

import (
	"math/big"
	"time"

	"shade/core/events"
	"shade/core/state"
	"shade/core/types"
	"shade/native/access"
	"shade/native/invoice"
	"shade/native/merchant"
	"shade/native/system"
	"shade/native/token"
)

// Shade lists every operation of the platform core. The caller identity
// passed to mutating operations must already be authenticated by the host
// boundary (signature recovery); the contract only decides whether that
// identity is the required principal.
type Shade interface {
	Initialize(admin [20]byte) error
	GetAdmin() ([20]byte, error)
	GetInfo() (*types.ContractInfo, error)

	GrantRole(caller, user [20]byte, role types.Role) error
	RevokeRole(caller, user [20]byte, role types.Role) error
	HasRole(user [20]byte, role types.Role) bool

	Pause(caller [20]byte) error
	Unpause(caller [20]byte) error
	IsPaused() bool

	AddAcceptedToken(caller, tokenAddr [20]byte) error
	RemoveAcceptedToken(caller, tokenAddr [20]byte) error
	IsAcceptedToken(tokenAddr [20]byte) bool
	AcceptedTokens() ([][20]byte, error)

	RegisterMerchant(caller [20]byte) (uint64, error)
	GetMerchant(id uint64) (*types.Merchant, error)
	GetMerchants(filter types.MerchantFilter) ([]types.Merchant, error)
	IsMerchant(addr [20]byte) bool
	VerifyMerchant(caller [20]byte, id uint64, status bool) error
	IsMerchantVerified(id uint64) (bool, error)
	SetMerchantKey(caller [20]byte, key [32]byte) error
	GetMerchantKey(addr [20]byte) ([32]byte, error)

	CreateInvoice(caller [20]byte, description string, amount *big.Int, tokenAddr [20]byte) (uint64, error)
	GetInvoice(id uint64) (*types.Invoice, error)
	GetInvoices(filter types.InvoiceFilter) ([]types.Invoice, error)

	Upgrade(caller [20]byte, newCodeHash [32]byte) error
	CodeHash() ([32]byte, bool, error)
}

// Contract is the single concrete implementation of Shade.
//
// Contract is not safe for concurrent use; the host serializes external
// calls.
type Contract struct {
	state  *state.Manager
	sink   events.Emitter
	buffer *events.Buffer

	depth int

	access    *access.Control
	pause     *system.Pause
	guard     *system.Guard
	upgrader  *system.Upgrader
	allowlist *token.Allowlist
	merchants *merchant.Registry
	invoices  *invoice.Ledger
}

var _ Shade = (*Contract)(nil)

// New wires the engines over the provided state manager. tokens supplies the
// external token symbol reads used by the allow-list; code is the host's code
// image swapper (nil for hosts that do not support upgrades).
func New(st *state.Manager, tokens token.SymbolReader, code system.CodeStore) *Contract {
	c := &Contract{
		state:  st,
		sink:   events.NoopEmitter{},
		buffer: &events.Buffer{},
	}
	c.access = access.NewControl(st)
	c.pause = system.NewPause(st, c.access)
	c.guard = system.NewGuard(st)
	c.upgrader = system.NewUpgrader(st, c.access, code)
	c.allowlist = token.NewAllowlist(st, c.access, tokens)
	c.merchants = merchant.NewRegistry(st, c.access)
	c.invoices = invoice.NewLedger(st, c.merchants)

	// Engines emit into the call buffer; the buffer only reaches the sink
	// when the call commits.
	c.access.SetEmitter(c.buffer)
	c.pause.SetEmitter(c.buffer)
	c.upgrader.SetEmitter(c.buffer)
	c.allowlist.SetEmitter(c.buffer)
	c.merchants.SetEmitter(c.buffer)
	c.invoices.SetEmitter(c.buffer)
	return c
}

// SetEmitter configures the committed-event sink (journal, RPC fan-out).
// Passing nil resets it to a no-op implementation.
func (c *Contract) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.sink = events.NoopEmitter{}
		return
	}
	c.sink = emitter
}

// SetNowFunc overrides the time source of every engine. Primarily intended
// for tests.
func (c *Contract) SetNowFunc(now func() uint64) {
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	c.access.SetNowFunc(now)
	c.pause.SetNowFunc(now)
	c.upgrader.SetNowFunc(now)
	c.allowlist.SetNowFunc(now)
	c.merchants.SetNowFunc(now)
}

// run executes a mutating call as an all-or-nothing frame: on any failure
// every write of the frame is reverted (guard flags included) and none of its
// events are published. A transitively re-entered operation opens a nested
// frame; only the outermost frame commits, so an outer failure also rolls
// back whatever a nested call wrote.
func (c *Contract) run(fn func() error) error {
	snap := c.state.Snapshot()
	mark := c.buffer.Len()
	c.depth++
	err := fn()
	c.depth--
	if err != nil {
		c.state.RevertToSnapshot(snap)
		c.buffer.Truncate(mark)
		return err
	}
	if c.depth > 0 {
		return nil
	}
	if err := c.state.Commit(); err != nil {
		c.state.RevertToSnapshot(snap)
		c.buffer.Truncate(mark)
		return err
	}
	c.buffer.Flush(c.sink)
	return nil
}

// Initialize records the deployment admin. First call only.
func (c *Contract) Initialize(admin [20]byte) error {
	return c.run(func() error {
		return c.access.Initialize(admin)
	})
}

// GetAdmin returns the stored admin identity.
func (c *Contract) GetAdmin() ([20]byte, error) {
	return c.access.Admin()
}

// GetInfo returns the deployment metadata.
func (c *Contract) GetInfo() (*types.ContractInfo, error) {
	return c.access.Info()
}

// GrantRole marks the (user, role) pair active. Admin only.
func (c *Contract) GrantRole(caller, user [20]byte, role types.Role) error {
	return c.run(func() error {
		return c.access.GrantRole(caller, user, role)
	})
}

// RevokeRole clears the (user, role) pair. Admin only.
func (c *Contract) RevokeRole(caller, user [20]byte, role types.Role) error {
	return c.run(func() error {
		return c.access.RevokeRole(caller, user, role)
	})
}

// HasRole reports whether the (user, role) pair is active.
func (c *Contract) HasRole(user [20]byte, role types.Role) bool {
	return c.access.HasRole(user, role)
}

// Pause trips the circuit breaker. Admin only.
func (c *Contract) Pause(caller [20]byte) error {
	return c.run(func() error {
		return c.pause.Pause(caller)
	})
}

// Unpause clears the circuit breaker. Admin only.
func (c *Contract) Unpause(caller [20]byte) error {
	return c.run(func() error {
		return c.pause.Unpause(caller)
	})
}

// IsPaused reports the circuit-breaker flag.
func (c *Contract) IsPaused() bool {
	return c.pause.IsPaused()
}

// AddAcceptedToken appends a settlement token to the allow-list. The symbol
// read against the token contract is an externally-observable call, so the
// whole operation runs under the reentrancy guard.
func (c *Contract) AddAcceptedToken(caller, tokenAddr [20]byte) error {
	return c.run(func() error {
		if err := c.pause.AssertNotPaused(); err != nil {
			return err
		}
		return c.guarded(func() error {
			return c.allowlist.Add(caller, tokenAddr)
		})
	})
}

// RemoveAcceptedToken removes a settlement token from the allow-list.
func (c *Contract) RemoveAcceptedToken(caller, tokenAddr [20]byte) error {
	return c.run(func() error {
		if err := c.pause.AssertNotPaused(); err != nil {
			return err
		}
		return c.guarded(func() error {
			return c.allowlist.Remove(caller, tokenAddr)
		})
	})
}

// guarded brackets fn with the reentrancy sentinel. The sentinel is cleared
// on every exit path; a failed frame additionally reverts it with the rest of
// the call's writes.
func (c *Contract) guarded(fn func() error) error {
	if err := c.guard.Enter(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		_ = c.guard.Exit()
		return err
	}
	return c.guard.Exit()
}

// IsAcceptedToken reports allow-list membership.
func (c *Contract) IsAcceptedToken(tokenAddr [20]byte) bool {
	return c.allowlist.IsAccepted(tokenAddr)
}

// AcceptedTokens returns the allow-list in insertion order.
func (c *Contract) AcceptedTokens() ([][20]byte, error) {
	return c.allowlist.Accepted()
}

// RegisterMerchant stores a merchant record for the caller.
func (c *Contract) RegisterMerchant(caller [20]byte) (uint64, error) {
	var id uint64
	err := c.run(func() error {
		if err := c.pause.AssertNotPaused(); err != nil {
			return err
		}
		var err error
		id, err = c.merchants.Register(caller)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetMerchant loads a merchant record by id.
func (c *Contract) GetMerchant(id uint64) (*types.Merchant, error) {
	return c.merchants.Get(id)
}

// GetMerchants returns the merchants matching the filter in ascending id
// order. O(n) in the total merchant count.
func (c *Contract) GetMerchants(filter types.MerchantFilter) ([]types.Merchant, error) {
	return c.merchants.List(filter)
}

// IsMerchant reports whether the address has a registered record.
func (c *Contract) IsMerchant(addr [20]byte) bool {
	return c.merchants.IsMerchant(addr)
}

// VerifyMerchant sets the verification flag on a merchant record. Admin only.
func (c *Contract) VerifyMerchant(caller [20]byte, id uint64, status bool) error {
	return c.run(func() error {
		return c.merchants.Verify(caller, id, status)
	})
}

// IsMerchantVerified reads the verification flag of a merchant record.
func (c *Contract) IsMerchantVerified(id uint64) (bool, error) {
	return c.merchants.IsVerified(id)
}

// SetMerchantKey stores or overwrites the caller's signing key.
func (c *Contract) SetMerchantKey(caller [20]byte, key [32]byte) error {
	return c.run(func() error {
		return c.merchants.SetKey(caller, key)
	})
}

// GetMerchantKey returns the signing key stored for a merchant address.
func (c *Contract) GetMerchantKey(addr [20]byte) ([32]byte, error) {
	return c.merchants.Key(addr)
}

// CreateInvoice issues an invoice for the caller.
func (c *Contract) CreateInvoice(caller [20]byte, description string, amount *big.Int, tokenAddr [20]byte) (uint64, error) {
	var id uint64
	err := c.run(func() error {
		if err := c.pause.AssertNotPaused(); err != nil {
			return err
		}
		var err error
		id, err = c.invoices.Create(caller, description, amount, tokenAddr)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetInvoice loads an invoice record by id.
func (c *Contract) GetInvoice(id uint64) (*types.Invoice, error) {
	return c.invoices.Get(id)
}

// GetInvoices returns the invoices matching the filter in ascending id order.
// O(n) in the total invoice count.
func (c *Contract) GetInvoices(filter types.InvoiceFilter) ([]types.Invoice, error) {
	return c.invoices.List(filter)
}

// Upgrade swaps the running code image. Admin only.
func (c *Contract) Upgrade(caller [20]byte, newCodeHash [32]byte) error {
	return c.run(func() error {
		return c.upgrader.Upgrade(caller, newCodeHash)
	})
}

// CodeHash returns the hash recorded by the most recent upgrade.
func (c *Contract) CodeHash() ([32]byte, bool, error) {
	return c.upgrader.CodeHash()
}
