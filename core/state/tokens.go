package state

import (
	"fmt"
	"strings"
)

// TokenMetadata describes an external fungible-token contract known to the
// platform. Only identity data is kept here; token accounting lives in the
// token contracts themselves.
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// RegisterToken stores directory metadata for an external token contract.
func (m *Manager) RegisterToken(token [20]byte, symbol, name string, decimals uint8) error {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return fmt.Errorf("token symbol must not be empty")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("token %s: name must not be empty", normalized)
	}
	key := TokenMetadataKey(token[:])
	if exists, err := m.KVHas(key); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("token %s already registered", normalized)
	}
	meta := &TokenMetadata{Symbol: normalized, Name: name, Decimals: decimals}
	return m.KVPut(key, meta)
}

// Token retrieves directory metadata for the provided token contract. A nil
// result means the token is unknown to the platform.
func (m *Manager) Token(token [20]byte) (*TokenMetadata, error) {
	meta := new(TokenMetadata)
	exists, err := m.KVGet(TokenMetadataKey(token[:]), meta)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return meta, nil
}

// TokenSymbol reads the display symbol of the provided token contract. Unknown
// tokens yield an error; callers treat that as a host-level failure rather
// than a contract error.
func (m *Manager) TokenSymbol(token [20]byte) (string, error) {
	meta, err := m.Token(token)
	if err != nil {
		return "", err
	}
	if meta == nil {
		return "", fmt.Errorf("token directory: unknown token contract")
	}
	return meta.Symbol, nil
}

// Directory exposes the token metadata records as the symbol source consumed
// by the allow-list.
type Directory struct {
	manager *Manager
}

// NewDirectory wraps the manager's token records.
func NewDirectory(m *Manager) Directory {
	return Directory{manager: m}
}

// Symbol implements the allow-list's symbol reader.
func (d Directory) Symbol(token [20]byte) (string, error) {
	return d.manager.TokenSymbol(token)
}
