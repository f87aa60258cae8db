package token

import (
	"fmt"
	"testing"

	"shade/core/errors"
	"shade/core/events"
	"shade/core/state"
	"shade/native/access"
	"shade/storage"
)

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(e events.Event) {
	c.events = append(c.events, e)
}

// staticSymbols answers symbol reads from a fixed table; unknown tokens fail
// the way a dead token contract would.
type staticSymbols map[[20]byte]string

func (s staticSymbols) Symbol(token [20]byte) (string, error) {
	symbol, ok := s[token]
	if !ok {
		return "", fmt.Errorf("no contract at address")
	}
	return symbol, nil
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[0] = b
	return out
}

func newTestAllowlist(t *testing.T, symbols SymbolReader) (*Allowlist, *capturingEmitter, [20]byte) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	control := access.NewControl(manager)
	admin := addr(1)
	if err := control.Initialize(admin); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	allowlist := NewAllowlist(manager, control, symbols)
	emitter := &capturingEmitter{}
	allowlist.SetEmitter(emitter)
	allowlist.SetNowFunc(func() uint64 { return 4000 })
	return allowlist, emitter, admin
}

func TestAddAndRemoveToken(t *testing.T) {
	tokenA := addr(0x10)
	tokenB := addr(0x11)
	allowlist, emitter, admin := newTestAllowlist(t, staticSymbols{tokenA: "AAA", tokenB: "BBB"})

	if err := allowlist.Add(admin, tokenA); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := allowlist.Add(admin, tokenB); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if !allowlist.IsAccepted(tokenA) || !allowlist.IsAccepted(tokenB) {
		t.Fatalf("both tokens should be accepted")
	}
	accepted, err := allowlist.Accepted()
	if err != nil {
		t.Fatalf("accepted: %v", err)
	}
	if len(accepted) != 2 || accepted[0] != tokenA || accepted[1] != tokenB {
		t.Fatalf("insertion order not preserved: %v", accepted)
	}

	if err := allowlist.Remove(admin, tokenA); err != nil {
		t.Fatalf("remove a: %v", err)
	}
	if allowlist.IsAccepted(tokenA) {
		t.Fatalf("removed token still accepted")
	}
	if !allowlist.IsAccepted(tokenB) {
		t.Fatalf("remove must not disturb other entries")
	}
	if len(emitter.events) != 3 {
		t.Fatalf("expected add+add+remove events, got %d", len(emitter.events))
	}
}

func TestAddDuplicateIsSilentNoop(t *testing.T) {
	token := addr(0x10)
	allowlist, emitter, admin := newTestAllowlist(t, staticSymbols{token: "AAA"})
	if err := allowlist.Add(admin, token); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := allowlist.Add(admin, token); err != nil {
		t.Fatalf("re-add should succeed silently: %v", err)
	}
	accepted, err := allowlist.Accepted()
	if err != nil {
		t.Fatalf("accepted: %v", err)
	}
	if len(accepted) != 1 {
		t.Fatalf("duplicate add must not grow the list, got %d entries", len(accepted))
	}
	if len(emitter.events) != 1 {
		t.Fatalf("duplicate add must not emit, got %d events", len(emitter.events))
	}
}

func TestRemoveAbsentIsSilentNoop(t *testing.T) {
	allowlist, emitter, admin := newTestAllowlist(t, staticSymbols{})
	if err := allowlist.Remove(admin, addr(0x10)); err != nil {
		t.Fatalf("removing an absent token should succeed: %v", err)
	}
	if len(emitter.events) != 0 {
		t.Fatalf("absent remove must not emit")
	}
}

func TestAddRequiresAdmin(t *testing.T) {
	token := addr(0x10)
	allowlist, _, _ := newTestAllowlist(t, staticSymbols{token: "AAA"})
	if err := allowlist.Add(addr(9), token); !errors.Is(err, errors.ErrNotAuthorized) {
		t.Fatalf("expected NotAuthorized, got %v", err)
	}
	if err := allowlist.Remove(addr(9), token); !errors.Is(err, errors.ErrNotAuthorized) {
		t.Fatalf("expected NotAuthorized, got %v", err)
	}
}

func TestAddUnknownTokenFails(t *testing.T) {
	allowlist, emitter, admin := newTestAllowlist(t, staticSymbols{})
	err := allowlist.Add(admin, addr(0x10))
	if err == nil {
		t.Fatalf("expected symbol read failure to abort the add")
	}
	if _, ok := errors.CodeOf(err); ok {
		t.Fatalf("symbol read failure is a host fault, not a contract error: %v", err)
	}
	if allowlist.IsAccepted(addr(0x10)) {
		t.Fatalf("failed add must not extend the list")
	}
	if len(emitter.events) != 0 {
		t.Fatalf("failed add must not emit")
	}
}

func TestIsAcceptedOnEmptyList(t *testing.T) {
	allowlist, _, _ := newTestAllowlist(t, staticSymbols{})
	if allowlist.IsAccepted(addr(0x10)) {
		t.Fatalf("empty list accepts nothing")
	}
	accepted, err := allowlist.Accepted()
	if err != nil {
		t.Fatalf("accepted: %v", err)
	}
	if len(accepted) != 0 {
		t.Fatalf("expected empty list, got %v", accepted)
	}
}
