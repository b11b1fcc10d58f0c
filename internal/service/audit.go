package service

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/LemonScripter/metaspace-fdir-public/internal/errors"
	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

// HashSize is the length of an audit chain link hash
const HashSize = 32

// AuditLog is the append-only operations log. Each entry is chained to its
// predecessor by Hash = blake3(PrevHash || canonical CBOR of the entry).
type AuditLog struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
	encMode cbor.EncMode
}

// NewAuditLog creates an empty chain
func NewAuditLog() (*AuditLog, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to build cbor encoder: %w", err)
	}
	return &AuditLog{encMode: em}, nil
}

func genesisHash() []byte {
	return make([]byte, HashSize)
}

// Append assigns sequence number and hashes, stores the entry and returns it
func (a *AuditLog) Append(entry model.AuditEntry) (model.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry.Seq = uint64(len(a.entries)) + 1
	entry.PrevHash = a.headLocked()
	h, err := a.hash(entry)
	if err != nil {
		return model.AuditEntry{}, errors.InternalError("failed to hash audit entry", err)
	}
	entry.Hash = h
	a.entries = append(a.entries, entry)
	return entry, nil
}

func (a *AuditLog) hash(entry model.AuditEntry) ([]byte, error) {
	entry.Hash = nil
	body, err := a.encMode.Marshal(entry)
	if err != nil {
		return nil, err
	}
	h := blake3.New()
	_, _ = h.Write(entry.PrevHash)
	_, _ = h.Write(body)
	return h.Sum(nil), nil
}

func (a *AuditLog) headLocked() []byte {
	if len(a.entries) == 0 {
		return genesisHash()
	}
	last := a.entries[len(a.entries)-1].Hash
	out := make([]byte, len(last))
	copy(out, last)
	return out
}

// Head returns the hash of the newest entry, or the genesis hash
func (a *AuditLog) Head() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.headLocked()
}

// Len returns the number of entries
func (a *AuditLog) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Entries returns a copy of the chain, oldest first
func (a *AuditLog) Entries() []model.AuditEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.AuditEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Verify recomputes every link and reports the first broken sequence number
func (a *AuditLog) Verify() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return verifyChain(a.entries, a.hash)
}

// VerifyEntries checks a chain read back from an AuditStore
func (a *AuditLog) VerifyEntries(entries []model.AuditEntry) error {
	return verifyChain(entries, a.hash)
}

// Reset drops every entry
func (a *AuditLog) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = nil
}

func verifyChain(entries []model.AuditEntry, hash func(model.AuditEntry) ([]byte, error)) error {
	prev := genesisHash()
	for i, e := range entries {
		if e.Seq != uint64(i)+1 || !bytes.Equal(e.PrevHash, prev) {
			return errors.AuditChainBroken(e.Seq)
		}
		h, err := hash(e)
		if err != nil {
			return errors.InternalError("failed to hash audit entry", err)
		}
		if !bytes.Equal(h, e.Hash) {
			return errors.AuditChainBroken(e.Seq)
		}
		prev = e.Hash
	}
	return nil
}
