package registry

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/kvdb"
)

// Record is the composite persisted unit for a single registry entry:
// the schema as last registered, and its digest. The two fields
// correspond to the two logical namespaces (`schemas`, `digests`) of
// the persisted layout.
type Record struct {
	Schema SchemaRecord
	Digest [32]byte
}

// Store is the persistence contract for the registry. A crash at any
// point must leave readers with a view where every name resolves to a
// complete Record, never a schema without a digest or vice versa.
type Store interface {
	Put(name string, rec Record) error
	Get(name string) (Record, bool, error)
	Delete(name string) error
	All() (map[string]Record, error)
	Close() error
}

// MemoryStore is a non-persistent Store, suitable for tests and for
// registries that do not configure registry.db_path.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Record
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Record)}
}

func (s *MemoryStore) Put(name string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = rec
	return nil
}

func (s *MemoryStore) Get(name string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.entries[name]
	return rec, ok, nil
}

func (s *MemoryStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
	return nil
}

func (s *MemoryStore) All() (map[string]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Record, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// Two key prefixes realise the `schemas` and `digests` namespaces of
// the persisted layout, as two physically distinct key ranges within
// one embedded database rather than two separate files or tables.
const (
	schemaPrefix = "schemas/"
	digestPrefix = "digests/"
)

// DBStore is the embedded key-value persistence layer: two logical
// namespaces, `schemas` and `digests`, keyed by tool name, backed by
// an embedded LevelDB instance opened through the pkg/kvdb adapter
// over cometbft-db.
//
// Put writes both namespace entries; there is no cross-namespace
// transaction. A crash between the two writes is resolved at Open by
// reconcile, which drops any name present in only one namespace.
type DBStore struct {
	db dbm.DB
}

// OpenDBStore opens (creating if necessary) an embedded LevelDB store
// rooted at dir and reconciles any partially-written entries left by
// a prior crash.
func OpenDBStore(dir string) (*DBStore, error) {
	db, err := dbm.NewGoLevelDB("registry", dir)
	if err != nil {
		return nil, fmt.Errorf("registry: opening embedded store at %s: %w", dir, err)
	}
	s := &DBStore{db: db}
	if err := s.reconcile(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// reconcile drops any tool name present in only one of the two
// namespaces, restoring a consistent view after a crash landed
// between the two writes of a Put.
func (s *DBStore) reconcile() error {
	schemaNames, err := s.namesWithPrefix(schemaPrefix)
	if err != nil {
		return err
	}
	digestNames, err := s.namesWithPrefix(digestPrefix)
	if err != nil {
		return err
	}

	hasDigest := make(map[string]bool, len(digestNames))
	for _, n := range digestNames {
		hasDigest[n] = true
	}
	hasSchema := make(map[string]bool, len(schemaNames))
	for _, n := range schemaNames {
		hasSchema[n] = true
	}

	for _, n := range schemaNames {
		if !hasDigest[n] {
			if err := s.db.Delete([]byte(schemaPrefix + n)); err != nil {
				return fmt.Errorf("registry: reconciling orphan schema %q: %w", n, err)
			}
		}
	}
	for _, n := range digestNames {
		if !hasSchema[n] {
			if err := s.db.Delete([]byte(digestPrefix + n)); err != nil {
				return fmt.Errorf("registry: reconciling orphan digest %q: %w", n, err)
			}
		}
	}
	return nil
}

func (s *DBStore) namesWithPrefix(prefix string) ([]string, error) {
	it, err := s.db.Iterator(nil, nil)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var names []string
	for ; it.Valid(); it.Next() {
		key := string(it.Key())
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			names = append(names, rest)
		}
	}
	return names, it.Error()
}

func (s *DBStore) Put(name string, rec Record) error {
	adapter := kvdb.NewKVAdapter(s.db)

	schemaBytes, err := json.Marshal(rec.Schema)
	if err != nil {
		return fmt.Errorf("registry: serializing schema %q: %w", name, err)
	}
	if err := adapter.Set([]byte(schemaPrefix+name), schemaBytes); err != nil {
		return fmt.Errorf("registry: writing schema %q: %w", name, err)
	}
	if err := adapter.Set([]byte(digestPrefix+name), rec.Digest[:]); err != nil {
		return fmt.Errorf("registry: writing digest %q: %w", name, err)
	}
	return nil
}

func (s *DBStore) Get(name string) (Record, bool, error) {
	adapter := kvdb.NewKVAdapter(s.db)

	schemaBytes, err := adapter.Get([]byte(schemaPrefix + name))
	if err != nil {
		return Record{}, false, err
	}
	if schemaBytes == nil {
		return Record{}, false, nil
	}
	digestBytes, err := adapter.Get([]byte(digestPrefix + name))
	if err != nil {
		return Record{}, false, err
	}
	if len(digestBytes) != 32 {
		return Record{}, false, nil
	}

	var schema SchemaRecord
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		return Record{}, false, fmt.Errorf("registry: corrupt schema record for %q: %w", name, err)
	}
	var digest [32]byte
	copy(digest[:], digestBytes)
	return Record{Schema: schema, Digest: digest}, true, nil
}

func (s *DBStore) Delete(name string) error {
	if err := s.db.Delete([]byte(schemaPrefix + name)); err != nil {
		return fmt.Errorf("registry: deleting schema %q: %w", name, err)
	}
	if err := s.db.Delete([]byte(digestPrefix + name)); err != nil {
		return fmt.Errorf("registry: deleting digest %q: %w", name, err)
	}
	return nil
}

func (s *DBStore) All() (map[string]Record, error) {
	names, err := s.namesWithPrefix(schemaPrefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Record, len(names))
	for _, n := range names {
		rec, ok, err := s.Get(n)
		if err != nil {
			return nil, err
		}
		if ok {
			out[n] = rec
		}
	}
	return out, nil
}

func (s *DBStore) Close() error { return s.db.Close() }
