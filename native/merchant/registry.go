package merchant

import (
	"time"

	"shade/core/errors"
	"shade/core/events"
	"shade/core/state"
	"shade/core/types"
)

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVHas(key []byte) (bool, error)
}

type adminChecker interface {
	RequireAdmin(caller [20]byte) error
}

// Registry owns merchant records, the address→id mapping, the verification
// flag and the per-merchant signing key. Ids are allocated by a global
// counter starting at 1; one record exists per distinct address.
type Registry struct {
	state   registryState
	admin   adminChecker
	emitter events.Emitter
	nowFn   func() uint64
}

// NewRegistry creates a merchant registry with a no-op emitter.
func NewRegistry(st registryState, admin adminChecker) *Registry {
	return &Registry{
		state:   st,
		admin:   admin,
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (r *Registry) SetNowFunc(now func() uint64) {
	if now == nil {
		r.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	r.nowFn = now
}

// Count returns the current value of the merchant id counter.
func (r *Registry) Count() (uint64, error) {
	var count uint64
	if _, err := r.state.KVGet(state.MerchantCountKey(), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Register stores a merchant record for the caller. The caller authorizes for
// itself; a second registration for the same address fails without consuming
// an id.
func (r *Registry) Register(caller [20]byte) (uint64, error) {
	exists, err := r.state.KVHas(state.MerchantIDKey(caller[:]))
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, errors.ErrMerchantAlreadyRegistered
	}
	count, err := r.Count()
	if err != nil {
		return 0, err
	}
	newID := count + 1
	now := r.nowFn()
	record := &types.Merchant{
		ID:           newID,
		Address:      caller,
		Active:       true,
		Verified:     false,
		RegisteredAt: now,
	}
	if err := r.state.KVPut(state.MerchantKey(newID), record); err != nil {
		return 0, err
	}
	if err := r.state.KVPut(state.MerchantIDKey(caller[:]), newID); err != nil {
		return 0, err
	}
	if err := r.state.KVPut(state.MerchantCountKey(), newID); err != nil {
		return 0, err
	}
	r.emitter.Emit(events.MerchantRegistered{Merchant: caller, ID: newID, Timestamp: now})
	return newID, nil
}

// Get loads the merchant record with the given id. Id 0, ids beyond the
// counter and missing records all report MerchantNotFound.
func (r *Registry) Get(id uint64) (*types.Merchant, error) {
	if id == 0 {
		return nil, errors.ErrMerchantNotFound
	}
	count, err := r.Count()
	if err != nil {
		return nil, err
	}
	if id > count {
		return nil, errors.ErrMerchantNotFound
	}
	record := new(types.Merchant)
	exists, err := r.state.KVGet(state.MerchantKey(id), record)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.ErrMerchantNotFound
	}
	return record, nil
}

// Lookup resolves an address to its merchant id.
func (r *Registry) Lookup(addr [20]byte) (uint64, bool, error) {
	var id uint64
	exists, err := r.state.KVGet(state.MerchantIDKey(addr[:]), &id)
	if err != nil {
		return 0, false, err
	}
	return id, exists, nil
}

// IsMerchant reports whether an address has a registered record. Read
// failures report false.
func (r *Registry) IsMerchant(addr [20]byte) bool {
	exists, err := r.state.KVHas(state.MerchantIDKey(addr[:]))
	if err != nil {
		return false
	}
	return exists
}

// Verify sets the verification flag on the merchant record. Admin only.
func (r *Registry) Verify(caller [20]byte, id uint64, status bool) error {
	if err := r.admin.RequireAdmin(caller); err != nil {
		return err
	}
	record, err := r.Get(id)
	if err != nil {
		return err
	}
	record.Verified = status
	if err := r.state.KVPut(state.MerchantKey(id), record); err != nil {
		return err
	}
	r.emitter.Emit(events.MerchantVerified{ID: id, Status: status, Timestamp: r.nowFn()})
	return nil
}

// IsVerified reads the verification flag of the merchant with the given id.
func (r *Registry) IsVerified(id uint64) (bool, error) {
	record, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return record.Verified, nil
}

// SetKey stores or overwrites the caller's 32-byte signing key. Last write
// wins; verification status does not matter.
func (r *Registry) SetKey(caller [20]byte, key [32]byte) error {
	if !r.IsMerchant(caller) {
		return errors.ErrMerchantNotFound
	}
	if err := r.state.KVPut(state.MerchantSigningKey(caller[:]), key); err != nil {
		return err
	}
	r.emitter.Emit(events.MerchantKeySet{Merchant: caller, Key: key, Timestamp: r.nowFn()})
	return nil
}

// Key returns the signing key stored for the merchant address.
func (r *Registry) Key(addr [20]byte) ([32]byte, error) {
	var key [32]byte
	exists, err := r.state.KVGet(state.MerchantSigningKey(addr[:]), &key)
	if err != nil {
		return key, err
	}
	if !exists {
		return key, errors.ErrMerchantKeyNotFound
	}
	return key, nil
}

// List scans ids 1..count in ascending order and returns the records matching
// the conjunctive filter. Unreadable or missing records are skipped
// defensively. Cost is O(n) in the total merchant count.
func (r *Registry) List(filter types.MerchantFilter) ([]types.Merchant, error) {
	count, err := r.Count()
	if err != nil {
		return nil, err
	}
	matches := make([]types.Merchant, 0)
	for id := uint64(1); id <= count; id++ {
		record := new(types.Merchant)
		exists, err := r.state.KVGet(state.MerchantKey(id), record)
		if err != nil || !exists {
			continue
		}
		if filter.Matches(record) {
			matches = append(matches, *record)
		}
	}
	return matches, nil
}
