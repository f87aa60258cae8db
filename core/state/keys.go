package state

import "encoding/binary"

// Storage keys are a stability contract: records written under these
// namespaces must remain readable byte-for-byte across code upgrades. Never
// rename a prefix or change an encoding without a migration.
var (
	adminKey          = []byte("shade/admin")
	contractInfoKey   = []byte("shade/contract-info")
	acceptedTokensKey = []byte("shade/accepted-tokens")
	merchantCountKey  = []byte("shade/merchant-count")
	invoiceCountKey   = []byte("shade/invoice-count")
	pausedKey         = []byte("shade/paused")
	reentrancyKey     = []byte("shade/reentrancy")
	codeHashKey       = []byte("shade/code-hash")

	merchantPrefix   = []byte("shade/merchant/")
	merchantIDPrefix = []byte("shade/merchant-id/")
	signingKeyPrefix = []byte("shade/merchant-key/")
	invoicePrefix    = []byte("shade/invoice/")
	rolePrefix       = []byte("shade/role/")
	tokenMetaPrefix  = []byte("shade/token-meta/")
)

func appendUint64(prefix []byte, v uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], v)
	return buf
}

func appendBytes(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
		buf = append(buf, ':')
	}
	return buf
}

// AdminKey addresses the stored admin identity.
func AdminKey() []byte { return adminKey }

// ContractInfoKey addresses the one-per-deployment metadata record.
func ContractInfoKey() []byte { return contractInfoKey }

// AcceptedTokensKey addresses the ordered settlement-token allow-list.
func AcceptedTokensKey() []byte { return acceptedTokensKey }

// MerchantCountKey addresses the global merchant id counter.
func MerchantCountKey() []byte { return merchantCountKey }

// InvoiceCountKey addresses the global invoice id counter.
func InvoiceCountKey() []byte { return invoiceCountKey }

// PausedKey addresses the pause circuit-breaker flag.
func PausedKey() []byte { return pausedKey }

// ReentrancyKey addresses the reentrancy guard sentinel.
func ReentrancyKey() []byte { return reentrancyKey }

// CodeHashKey addresses the active code image hash.
func CodeHashKey() []byte { return codeHashKey }

// MerchantKey addresses the merchant record with the given id.
func MerchantKey(id uint64) []byte { return appendUint64(merchantPrefix, id) }

// MerchantIDKey addresses the address→id mapping for a merchant.
func MerchantIDKey(addr []byte) []byte { return appendBytes(merchantIDPrefix, addr) }

// MerchantSigningKey addresses the 32-byte signing key stored for a merchant
// address.
func MerchantSigningKey(addr []byte) []byte { return appendBytes(signingKeyPrefix, addr) }

// InvoiceKey addresses the invoice record with the given id.
func InvoiceKey(id uint64) []byte { return appendUint64(invoicePrefix, id) }

// RoleKey addresses the grant flag for a (user, role) pair.
func RoleKey(user []byte, role string) []byte {
	return appendBytes(rolePrefix, user, []byte(role))
}

// TokenMetadataKey addresses the directory record for an external token
// contract.
func TokenMetadataKey(token []byte) []byte { return appendBytes(tokenMetaPrefix, token) }
