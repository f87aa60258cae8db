package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"shade/core/types"
	"shade/crypto"
)

const (
	TypeInitialized        = "shade.initialized"
	TypeTokenAdded         = "shade.token.added"
	TypeTokenRemoved       = "shade.token.removed"
	TypeMerchantRegistered = "shade.merchant.registered"
	TypeMerchantVerified   = "shade.merchant.verified"
	TypeMerchantKeySet     = "shade.merchant.key_set"
	TypeInvoiceCreated     = "shade.invoice.created"
	TypeRoleGranted        = "shade.role.granted"
	TypeRoleRevoked        = "shade.role.revoked"
	TypeContractPaused     = "shade.contract.paused"
	TypeContractUnpaused   = "shade.contract.unpaused"
	TypeContractUpgraded   = "shade.contract.upgraded"
)

func addrString(addr [20]byte) string {
	return crypto.NewAddress(crypto.ShadePrefix, addr[:]).String()
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Initialized is emitted exactly once, when the deployment admin is recorded.
type Initialized struct {
	Admin     [20]byte
	Timestamp uint64
}

func (Initialized) EventType() string { return TypeInitialized }

func (e Initialized) Event() *types.Event {
	return &types.Event{
		Type: TypeInitialized,
		Attributes: map[string]string{
			"admin":     addrString(e.Admin),
			"timestamp": uintToString(e.Timestamp),
		},
	}
}

// TokenAdded is emitted when a settlement token joins the allow-list.
type TokenAdded struct {
	Token     [20]byte
	Timestamp uint64
}

func (TokenAdded) EventType() string { return TypeTokenAdded }

func (e TokenAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenAdded,
		Attributes: map[string]string{
			"token":     addrString(e.Token),
			"timestamp": uintToString(e.Timestamp),
		},
	}
}

// TokenRemoved is emitted when a settlement token leaves the allow-list.
type TokenRemoved struct {
	Token     [20]byte
	Timestamp uint64
}

func (TokenRemoved) EventType() string { return TypeTokenRemoved }

func (e TokenRemoved) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenRemoved,
		Attributes: map[string]string{
			"token":     addrString(e.Token),
			"timestamp": uintToString(e.Timestamp),
		},
	}
}

// MerchantRegistered carries the id allocated to a newly registered merchant.
type MerchantRegistered struct {
	Merchant  [20]byte
	ID        uint64
	Timestamp uint64
}

func (MerchantRegistered) EventType() string { return TypeMerchantRegistered }

func (e MerchantRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeMerchantRegistered,
		Attributes: map[string]string{
			"merchant":  addrString(e.Merchant),
			"id":        uintToString(e.ID),
			"timestamp": uintToString(e.Timestamp),
		},
	}
}

// MerchantVerified records an admin flipping a merchant's verification flag.
type MerchantVerified struct {
	ID        uint64
	Status    bool
	Timestamp uint64
}

func (MerchantVerified) EventType() string { return TypeMerchantVerified }

func (e MerchantVerified) Event() *types.Event {
	return &types.Event{
		Type: TypeMerchantVerified,
		Attributes: map[string]string{
			"id":        uintToString(e.ID),
			"status":    strconv.FormatBool(e.Status),
			"timestamp": uintToString(e.Timestamp),
		},
	}
}

// MerchantKeySet records a merchant storing or replacing its signing key.
type MerchantKeySet struct {
	Merchant  [20]byte
	Key       [32]byte
	Timestamp uint64
}

func (MerchantKeySet) EventType() string { return TypeMerchantKeySet }

func (e MerchantKeySet) Event() *types.Event {
	return &types.Event{
		Type: TypeMerchantKeySet,
		Attributes: map[string]string{
			"merchant":  addrString(e.Merchant),
			"key":       hex.EncodeToString(e.Key[:]),
			"timestamp": uintToString(e.Timestamp),
		},
	}
}

// InvoiceCreated carries the id allocated to a newly issued invoice.
type InvoiceCreated struct {
	ID       uint64
	Merchant [20]byte
	Amount   *big.Int
	Token    [20]byte
}

func (InvoiceCreated) EventType() string { return TypeInvoiceCreated }

func (e InvoiceCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeInvoiceCreated,
		Attributes: map[string]string{
			"id":       uintToString(e.ID),
			"merchant": addrString(e.Merchant),
			"amount":   formatAmount(e.Amount),
			"token":    addrString(e.Token),
		},
	}
}

// RoleGranted records administrative intent; it is emitted even when the
// grant was already active.
type RoleGranted struct {
	User      [20]byte
	Role      types.Role
	Timestamp uint64
}

func (RoleGranted) EventType() string { return TypeRoleGranted }

func (e RoleGranted) Event() *types.Event {
	return &types.Event{
		Type: TypeRoleGranted,
		Attributes: map[string]string{
			"user":      addrString(e.User),
			"role":      string(e.Role),
			"timestamp": uintToString(e.Timestamp),
		},
	}
}

// RoleRevoked records administrative intent; it is emitted even when the
// grant was already absent.
type RoleRevoked struct {
	User      [20]byte
	Role      types.Role
	Timestamp uint64
}

func (RoleRevoked) EventType() string { return TypeRoleRevoked }

func (e RoleRevoked) Event() *types.Event {
	return &types.Event{
		Type: TypeRoleRevoked,
		Attributes: map[string]string{
			"user":      addrString(e.User),
			"role":      string(e.Role),
			"timestamp": uintToString(e.Timestamp),
		},
	}
}

// ContractPaused records the admin tripping the circuit breaker.
type ContractPaused struct {
	Admin     [20]byte
	Timestamp uint64
}

func (ContractPaused) EventType() string { return TypeContractPaused }

func (e ContractPaused) Event() *types.Event {
	return &types.Event{
		Type: TypeContractPaused,
		Attributes: map[string]string{
			"admin":     addrString(e.Admin),
			"timestamp": uintToString(e.Timestamp),
		},
	}
}

// ContractUnpaused records the admin clearing the circuit breaker.
type ContractUnpaused struct {
	Admin     [20]byte
	Timestamp uint64
}

func (ContractUnpaused) EventType() string { return TypeContractUnpaused }

func (e ContractUnpaused) Event() *types.Event {
	return &types.Event{
		Type: TypeContractUnpaused,
		Attributes: map[string]string{
			"admin":     addrString(e.Admin),
			"timestamp": uintToString(e.Timestamp),
		},
	}
}

// ContractUpgraded records a code image swap.
type ContractUpgraded struct {
	NewCodeHash [32]byte
	Timestamp   uint64
}

func (ContractUpgraded) EventType() string { return TypeContractUpgraded }

func (e ContractUpgraded) Event() *types.Event {
	return &types.Event{
		Type: TypeContractUpgraded,
		Attributes: map[string]string{
			"newCodeHash": hex.EncodeToString(e.NewCodeHash[:]),
			"timestamp":   uintToString(e.Timestamp),
		},
	}
}
