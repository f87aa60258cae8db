package merchant

import (
	"testing"

	"shade/core/errors"
	"shade/core/events"
	"shade/core/state"
	"shade/core/types"
	"shade/native/access"
	"shade/storage"
)

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(e events.Event) {
	c.events = append(c.events, e)
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[0] = b
	return out
}

func newTestRegistry(t *testing.T) (*Registry, *capturingEmitter, [20]byte) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	control := access.NewControl(manager)
	admin := addr(1)
	if err := control.Initialize(admin); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	registry := NewRegistry(manager, control)
	emitter := &capturingEmitter{}
	registry.SetEmitter(emitter)
	registry.SetNowFunc(func() uint64 { return 5000 })
	return registry, emitter, admin
}

func TestRegisterAssignsSequentialIDs(t *testing.T) {
	registry, emitter, _ := newTestRegistry(t)
	first, err := registry.Register(addr(0x10))
	if err != nil {
		t.Fatalf("register first: %v", err)
	}
	second, err := registry.Register(addr(0x11))
	if err != nil {
		t.Fatalf("register second: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first, second)
	}
	count, err := registry.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	if len(emitter.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(emitter.events))
	}
	registered, ok := emitter.events[0].(events.MerchantRegistered)
	if !ok || registered.ID != 1 || registered.Merchant != addr(0x10) {
		t.Fatalf("unexpected event %+v", emitter.events[0])
	}
}

func TestRegisterTwiceFailsWithoutConsumingID(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	if _, err := registry.Register(addr(0x10)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := registry.Register(addr(0x10)); !errors.Is(err, errors.ErrMerchantAlreadyRegistered) {
		t.Fatalf("expected MerchantAlreadyRegistered, got %v", err)
	}
	// The failed attempt must not burn an id.
	next, err := registry.Register(addr(0x11))
	if err != nil {
		t.Fatalf("register next: %v", err)
	}
	if next != 2 {
		t.Fatalf("expected id 2 after failed duplicate, got %d", next)
	}
}

func TestRegisterSetsDefaults(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	id, err := registry.Register(addr(0x10))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	record, err := registry.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !record.Active {
		t.Fatalf("merchants register active")
	}
	if record.Verified {
		t.Fatalf("merchants register unverified")
	}
	if record.Address != addr(0x10) || record.RegisteredAt != 5000 {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestGetUnknownIDs(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	if _, err := registry.Get(0); !errors.Is(err, errors.ErrMerchantNotFound) {
		t.Fatalf("id 0: expected MerchantNotFound, got %v", err)
	}
	if _, err := registry.Get(1); !errors.Is(err, errors.ErrMerchantNotFound) {
		t.Fatalf("unallocated id: expected MerchantNotFound, got %v", err)
	}
	if _, err := registry.Register(addr(0x10)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := registry.Get(2); !errors.Is(err, errors.ErrMerchantNotFound) {
		t.Fatalf("beyond counter: expected MerchantNotFound, got %v", err)
	}
}

func TestLookupAndIsMerchant(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	if registry.IsMerchant(addr(0x10)) {
		t.Fatalf("unregistered address must not be a merchant")
	}
	id, err := registry.Register(addr(0x10))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	got, exists, err := registry.Lookup(addr(0x10))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !exists || got != id {
		t.Fatalf("lookup mismatch, exists=%v got=%d want=%d", exists, got, id)
	}
	if !registry.IsMerchant(addr(0x10)) {
		t.Fatalf("registered address should be a merchant")
	}
}

func TestVerifyMerchant(t *testing.T) {
	registry, emitter, admin := newTestRegistry(t)
	id, err := registry.Register(addr(0x10))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	emitter.events = nil

	if err := registry.Verify(admin, id, true); err != nil {
		t.Fatalf("verify: %v", err)
	}
	verified, err := registry.IsVerified(id)
	if err != nil {
		t.Fatalf("is verified: %v", err)
	}
	if !verified {
		t.Fatalf("flag should be set")
	}
	if err := registry.Verify(admin, id, false); err != nil {
		t.Fatalf("unverify: %v", err)
	}
	verified, err = registry.IsVerified(id)
	if err != nil {
		t.Fatalf("is verified: %v", err)
	}
	if verified {
		t.Fatalf("flag should be cleared")
	}
	if len(emitter.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(emitter.events))
	}
}

func TestVerifyRequiresAdmin(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	id, err := registry.Register(addr(0x10))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Verify(addr(0x10), id, true); !errors.Is(err, errors.ErrNotAuthorized) {
		t.Fatalf("expected NotAuthorized, got %v", err)
	}
}

func TestVerifyUnknownMerchant(t *testing.T) {
	registry, _, admin := newTestRegistry(t)
	if err := registry.Verify(admin, 5, true); !errors.Is(err, errors.ErrMerchantNotFound) {
		t.Fatalf("expected MerchantNotFound, got %v", err)
	}
}

func TestSigningKeyLifecycle(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	merchantAddr := addr(0x10)
	if _, err := registry.Register(merchantAddr); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := registry.Key(merchantAddr); !errors.Is(err, errors.ErrMerchantKeyNotFound) {
		t.Fatalf("expected MerchantKeyNotFound before set, got %v", err)
	}
	first := [32]byte{0x01}
	if err := registry.SetKey(merchantAddr, first); err != nil {
		t.Fatalf("set key: %v", err)
	}
	got, err := registry.Key(merchantAddr)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if got != first {
		t.Fatalf("stored key mismatch")
	}
	// Last write wins.
	second := [32]byte{0x02}
	if err := registry.SetKey(merchantAddr, second); err != nil {
		t.Fatalf("overwrite key: %v", err)
	}
	got, err = registry.Key(merchantAddr)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if got != second {
		t.Fatalf("overwrite did not take effect")
	}
}

func TestSetKeyRequiresRegistration(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	if err := registry.SetKey(addr(0x10), [32]byte{1}); !errors.Is(err, errors.ErrMerchantNotFound) {
		t.Fatalf("expected MerchantNotFound, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	registry, _, admin := newTestRegistry(t)
	for i := byte(0x10); i < 0x14; i++ {
		if _, err := registry.Register(addr(i)); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if err := registry.Verify(admin, 2, true); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := registry.Verify(admin, 4, true); err != nil {
		t.Fatalf("verify: %v", err)
	}

	all, err := registry.List(types.MerchantFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 merchants, got %d", len(all))
	}
	for i, record := range all {
		if record.ID != uint64(i+1) {
			t.Fatalf("records must come back in ascending id order, got %d at %d", record.ID, i)
		}
	}

	verified := true
	filtered, err := registry.List(types.MerchantFilter{IsVerified: &verified})
	if err != nil {
		t.Fatalf("list verified: %v", err)
	}
	if len(filtered) != 2 || filtered[0].ID != 2 || filtered[1].ID != 4 {
		t.Fatalf("unexpected verified set %+v", filtered)
	}
}
