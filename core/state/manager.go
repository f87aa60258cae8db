package state

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"shade/storage"
)

// Manager provides typed access to the contract's persistent key/value state.
// Values are RLP encoded and keys keccak256 hashed before touching the
// backing store, so the layout is uniform regardless of backend.
//
// Writes land in an in-memory overlay first. The host opens a snapshot at the
// start of every external call and either commits the overlay or reverts it,
// which is what gives mutating operations their all-or-nothing semantics.
//
// Manager is not safe for concurrent use; the host serializes calls.
type Manager struct {
	db      storage.Database
	overlay map[string]overlayEntry
	journal []journalEntry
}

type overlayEntry struct {
	value  []byte
	exists bool
}

type journalEntry struct {
	key     string
	prev    overlayEntry
	hadPrev bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		overlay: make(map[string]overlayEntry),
	}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) rawGet(key []byte) ([]byte, bool, error) {
	hashed := kvKey(key)
	if entry, ok := m.overlay[string(hashed)]; ok {
		if !entry.exists {
			return nil, false, nil
		}
		return entry.value, true, nil
	}
	return m.db.Get(hashed)
}

func (m *Manager) rawSet(key []byte, entry overlayEntry) {
	hashed := string(kvKey(key))
	prev, hadPrev := m.overlay[hashed]
	m.journal = append(m.journal, journalEntry{key: hashed, prev: prev, hadPrev: hadPrev})
	m.overlay[hashed] = entry
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.rawSet(key, overlayEntry{value: encoded, exists: true})
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the
// key existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.rawGet(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVHas reports whether the key exists without decoding its value.
func (m *Manager) KVHas(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	_, ok, err := m.rawGet(key)
	return ok, err
}

// KVDelete removes the value stored under the supplied key. Deleting an
// absent key is a no-op.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.rawSet(key, overlayEntry{exists: false})
	return nil
}

// Snapshot returns a revision marker for the current overlay. Passing it to
// RevertToSnapshot undoes every write recorded since.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot rolls the overlay back to the provided revision, discarding
// every write performed after it. It is used to abort failed calls without
// leaking partial state.
func (m *Manager) RevertToSnapshot(rev int) {
	if rev < 0 || rev > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= rev; i-- {
		entry := m.journal[i]
		if entry.hadPrev {
			m.overlay[entry.key] = entry.prev
		} else {
			delete(m.overlay, entry.key)
		}
	}
	m.journal = m.journal[:rev]
}

// Commit flushes the overlay to the backing store and resets the journal.
func (m *Manager) Commit() error {
	for key, entry := range m.overlay {
		if entry.exists {
			if err := m.db.Put([]byte(key), entry.value); err != nil {
				return err
			}
		} else {
			if err := m.db.Delete([]byte(key)); err != nil {
				return err
			}
		}
	}
	m.overlay = make(map[string]overlayEntry)
	m.journal = m.journal[:0]
	return nil
}
