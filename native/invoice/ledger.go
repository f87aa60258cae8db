package invoice

import (
	"math/big"

	"shade/core/errors"
	"shade/core/events"
	"shade/core/state"
	"shade/core/types"
)

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// merchantLookup resolves a merchant address to its registry id.
type merchantLookup interface {
	Lookup(addr [20]byte) (uint64, bool, error)
}

// Ledger owns invoice records. Ids come from a global counter independent of
// merchant id sequencing; invoices are created Pending.
type Ledger struct {
	state     ledgerState
	merchants merchantLookup
	emitter   events.Emitter
}

// NewLedger creates an invoice ledger with a no-op emitter.
func NewLedger(st ledgerState, merchants merchantLookup) *Ledger {
	return &Ledger{
		state:     st,
		merchants: merchants,
		emitter:   events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Count returns the current value of the invoice id counter.
func (l *Ledger) Count() (uint64, error) {
	var count uint64
	if _, err := l.state.KVGet(state.InvoiceCountKey(), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Create issues an invoice for the caller. The caller authorizes for itself
// and must be a registered merchant; the amount must be strictly positive. A
// failed creation never consumes an id.
func (l *Ledger) Create(caller [20]byte, description string, amount *big.Int, token [20]byte) (uint64, error) {
	merchantID, registered, err := l.merchants.Lookup(caller)
	if err != nil {
		return 0, err
	}
	if !registered {
		return 0, errors.ErrMerchantNotFound
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, errors.ErrInvalidAmount
	}
	count, err := l.Count()
	if err != nil {
		return 0, err
	}
	newID := count + 1
	record := &types.Invoice{
		ID:          newID,
		MerchantID:  merchantID,
		Amount:      new(big.Int).Set(amount),
		Token:       token,
		Description: description,
		Status:      types.InvoiceStatusPending,
	}
	if err := l.state.KVPut(state.InvoiceKey(newID), record); err != nil {
		return 0, err
	}
	if err := l.state.KVPut(state.InvoiceCountKey(), newID); err != nil {
		return 0, err
	}
	l.emitter.Emit(events.InvoiceCreated{
		ID:       newID,
		Merchant: caller,
		Amount:   new(big.Int).Set(amount),
		Token:    token,
	})
	return newID, nil
}

// Get loads the invoice with the given id.
func (l *Ledger) Get(id uint64) (*types.Invoice, error) {
	if id == 0 {
		return nil, errors.ErrInvoiceNotFound
	}
	record := new(types.Invoice)
	exists, err := l.state.KVGet(state.InvoiceKey(id), record)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.ErrInvoiceNotFound
	}
	return record, nil
}

// List scans ids 1..count in ascending order and returns the records matching
// the conjunctive filter. Unreadable or missing records are skipped
// defensively. Cost is O(n) in the total invoice count.
func (l *Ledger) List(filter types.InvoiceFilter) ([]types.Invoice, error) {
	count, err := l.Count()
	if err != nil {
		return nil, err
	}
	matches := make([]types.Invoice, 0)
	for id := uint64(1); id <= count; id++ {
		record := new(types.Invoice)
		exists, err := l.state.KVGet(state.InvoiceKey(id), record)
		if err != nil || !exists {
			continue
		}
		if filter.Matches(record) {
			matches = append(matches, *record)
		}
	}
	return matches, nil
}
