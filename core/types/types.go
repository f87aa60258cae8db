package types

import "math/big"

// ContractInfo records the deployment metadata written exactly once at
// initialization. The admin field is immutable thereafter.
type ContractInfo struct {
	Admin     [20]byte
	CreatedAt uint64
}

// Role is a capability tag grantable per user, distinct from the single admin
// identity. The set of roles is closed; a user may hold any combination.
type Role string

const (
	// RoleOperator marks identities allowed to run day-to-day platform
	// tooling against the node.
	RoleOperator Role = "ROLE_OPERATOR"
	// RoleAuditor marks identities granted read access to operational
	// exports outside the contract surface.
	RoleAuditor Role = "ROLE_AUDITOR"
)

// Valid reports whether the role is a member of the closed enumeration.
func (r Role) Valid() bool {
	switch r {
	case RoleOperator, RoleAuditor:
		return true
	}
	return false
}

// Merchant is a registered receiving party. IDs are assigned 1, 2, 3, … in
// registration order by a global counter; one record exists per address.
type Merchant struct {
	ID           uint64
	Address      [20]byte
	Active       bool
	Verified     bool
	RegisteredAt uint64
}

// MerchantFilter is a conjunctive predicate over the merchant sequence. Nil
// fields are wildcards.
type MerchantFilter struct {
	IsActive   *bool
	IsVerified *bool
}

// Matches reports whether the merchant satisfies every set field.
func (f MerchantFilter) Matches(m *Merchant) bool {
	if m == nil {
		return false
	}
	if f.IsActive != nil && m.Active != *f.IsActive {
		return false
	}
	if f.IsVerified != nil && m.Verified != *f.IsVerified {
		return false
	}
	return true
}

// InvoiceStatus is the lifecycle state of an invoice. Invoices are created
// Pending; transitions into later states happen outside this core.
type InvoiceStatus uint32

const (
	InvoiceStatusPending InvoiceStatus = iota
	InvoiceStatusPaid
	InvoiceStatusCancelled
)

func (s InvoiceStatus) String() string {
	switch s {
	case InvoiceStatusPending:
		return "pending"
	case InvoiceStatusPaid:
		return "paid"
	case InvoiceStatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Invoice is a payment request issued by a registered merchant. IDs come from
// a global counter independent of merchant id sequencing.
type Invoice struct {
	ID          uint64
	MerchantID  uint64
	Amount      *big.Int
	Token       [20]byte
	Description string
	Status      InvoiceStatus
}

// InvoiceFilter is a conjunctive predicate over the invoice sequence. Nil
// fields are wildcards.
type InvoiceFilter struct {
	MerchantID *uint64
	Status     *InvoiceStatus
}

// Matches reports whether the invoice satisfies every set field.
func (f InvoiceFilter) Matches(inv *Invoice) bool {
	if inv == nil {
		return false
	}
	if f.MerchantID != nil && inv.MerchantID != *f.MerchantID {
		return false
	}
	if f.Status != nil && inv.Status != *f.Status {
		return false
	}
	return true
}
