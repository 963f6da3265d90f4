package registry

import (
	"crypto/subtle"
	"fmt"
	"sync"

	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/merkle"
)

// VerifyStatus is the outcome of VerifyTool.
type VerifyStatus int

const (
	Unknown VerifyStatus = iota
	Valid
	Invalid
)

// VerifyResult carries the status and, on Invalid, the expected and
// actual digests for the caller's diagnostics.
type VerifyResult struct {
	Status   VerifyStatus
	Expected [32]byte
	Actual   [32]byte
}

// Guard is the system of record for tool identities: it provides
// integrity verification, drift categorisation, and auditable
// membership proofs.
type Guard struct {
	mu    sync.RWMutex
	store Store

	// dirty/cachedTree realise the "cache the root, invalidate on
	// mutation" pattern.
	dirty      bool
	cachedTree *merkle.Tree
	sortedName []string
}

// NewGuard constructs a registry backed by the given store. A nil
// store defaults to an in-memory one.
func NewGuard(store Store) *Guard {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Guard{store: store, dirty: true}
}

// RegisterTool canonicalises, hashes, and writes (schema, digest)
// under its name. Re-registering the same name overwrites.
func (g *Guard) RegisterTool(schema SchemaRecord) ([32]byte, error) {
	digest, err := schema.Digest()
	if err != nil {
		return [32]byte{}, fmt.Errorf("registry: hashing schema %q: %w", schema.Name, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.store.Put(schema.Name, Record{Schema: schema, Digest: digest}); err != nil {
		return [32]byte{}, err
	}
	g.dirty = true
	return digest, nil
}

// VerifyTool returns Valid iff the name is present and the stored
// digest equals the freshly computed digest of schema; Invalid on
// mismatch; Unknown if the name is absent. The comparison is
// constant-time.
func (g *Guard) VerifyTool(schema SchemaRecord) (VerifyResult, error) {
	g.mu.RLock()
	rec, ok, err := g.store.Get(schema.Name)
	g.mu.RUnlock()
	if err != nil {
		return VerifyResult{}, err
	}
	if !ok {
		return VerifyResult{Status: Unknown}, nil
	}

	actual, err := schema.Digest()
	if err != nil {
		return VerifyResult{}, fmt.Errorf("registry: hashing schema %q: %w", schema.Name, err)
	}

	if subtle.ConstantTimeCompare(rec.Digest[:], actual[:]) == 1 {
		return VerifyResult{Status: Valid, Expected: rec.Digest, Actual: actual}, nil
	}
	return VerifyResult{Status: Invalid, Expected: rec.Digest, Actual: actual}, nil
}

// DetectDrift compares the stored schema against the input and
// returns a drift report. If the name is absent, the report is None
// with a single "new tool registration" change.
func (g *Guard) DetectDrift(schema SchemaRecord) (DriftReport, error) {
	g.mu.RLock()
	rec, ok, err := g.store.Get(schema.Name)
	g.mu.RUnlock()
	if err != nil {
		return DriftReport{}, err
	}
	if !ok {
		digest, err := schema.Digest()
		if err != nil {
			return DriftReport{}, err
		}
		return DriftReport{Level: DriftNone, Changes: []string{"new tool registration"}, CurrDigest: digest}, nil
	}
	return DetectDrift(rec.Schema, schema)
}

// GetRoot returns the current Merkle root over all registered tools,
// recomputing only if the entry set has changed since the last call.
func (g *Guard) GetRoot() ([32]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.rebuildIfDirtyLocked(); err != nil {
		return [32]byte{}, err
	}
	var root [32]byte
	copy(root[:], g.cachedTree.Root())
	return root, nil
}

// GetProof returns the membership proof for name, or nil if absent.
func (g *Guard) GetProof(name string) (*MerkleProof, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.rebuildIfDirtyLocked(); err != nil {
		return nil, err
	}

	idx := -1
	for i, n := range g.sortedName {
		if n == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, nil
	}
	return g.cachedTree.GenerateProof(idx)
}

// ListTools returns every registered tool name, in no particular
// order (callers needing sorted order should sort themselves).
func (g *Guard) ListTools() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	all, err := g.store.All()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	return names, nil
}

// RemoveTool deletes a tool's entry, if present.
func (g *Guard) RemoveTool(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.store.Delete(name); err != nil {
		return err
	}
	g.dirty = true
	return nil
}

// Contains reports whether name is currently registered.
func (g *Guard) Contains(name string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok, err := g.store.Get(name)
	return ok, err
}

func (g *Guard) rebuildIfDirtyLocked() error {
	if !g.dirty && g.cachedTree != nil {
		return nil
	}
	all, err := g.store.All()
	if err != nil {
		return err
	}
	tree, names, err := buildMerkle(all)
	if err != nil {
		return err
	}
	g.cachedTree = tree
	g.sortedName = names
	g.dirty = false
	return nil
}

// Close releases the underlying store.
func (g *Guard) Close() error {
	return g.store.Close()
}
