package tier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	markerPrefix = "t:"
	entryPrefix  = "e:"
)

// ErrActiveTier is returned by Delete when the target tier belongs to the
// active set of the running version.
var ErrActiveTier = errors.New("tier is active and cannot be deleted")

// Entry is one cached response, keyed by request identity.
type Entry struct {
	Key         string `json:"key"`
	Body        []byte `json:"body"`
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	StoredAt    int64  `json:"storedAt"`
}

// Store is versioned tier storage backed by a single LevelDB instance.
// Tier names are qualified with the deployment version, so bumping the
// version makes every previously stored tier a deletion candidate.
type Store struct {
	db *leveldb.DB

	mu      sync.Mutex
	version string
	open    map[string]*Tier // qualified name -> handle
}

// Tier is a handle to one named, versioned cache namespace.
type Tier struct {
	store     *Store
	name      string
	qualified string
}

// OpenStore opens (or creates) the LevelDB directory at path.
func OpenStore(path, version string) (*Store, error) {
	if version == "" {
		return nil, errors.New("tier version is required")
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open tier db: %w", err)
	}
	return &Store{db: db, version: version, open: map[string]*Tier{}}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Version returns the deployment version the store qualifies tiers with.
func (s *Store) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// SetVersion switches the store to a new deployment version. Handles
// opened under the previous version are forgotten, which makes their
// physical tiers eligible for the next activation sweep.
func (s *Store) SetVersion(version string) {
	if version == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if version == s.version {
		return
	}
	s.version = version
	s.open = map[string]*Tier{}
}

// Qualified returns the physical namespace for a tier name under the
// running version, e.g. "static-v12".
func (s *Store) Qualified(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return name + "-" + s.version
}

// Open returns a handle to the named tier, creating its marker on first
// access. Repeated calls with the same name return the same handle.
func (s *Store) Open(name string) (*Tier, error) {
	if name == "" {
		return nil, errors.New("tier name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	qualified := name + "-" + s.version
	if t, ok := s.open[qualified]; ok {
		return t, nil
	}
	if err := s.db.Put([]byte(markerPrefix+qualified), []byte{}, nil); err != nil {
		return nil, fmt.Errorf("create tier %s: %w", qualified, err)
	}
	t := &Tier{store: s, name: name, qualified: qualified}
	s.open[qualified] = t
	return t, nil
}

// List enumerates every stored tier's qualified name, across all versions.
func (s *Store) List() ([]string, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(markerPrefix)), nil)
	defer it.Release()

	var out []string
	for it.Next() {
		out = append(out, strings.TrimPrefix(string(it.Key()), markerPrefix))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	return out, nil
}

// Delete removes a tier's marker and every entry under it. Tiers open
// under the running version are refused: a concurrent request may still
// be reading them.
func (s *Store) Delete(qualified string) error {
	s.mu.Lock()
	_, active := s.open[qualified]
	s.mu.Unlock()
	if active {
		return fmt.Errorf("%w: %s", ErrActiveTier, qualified)
	}

	batch := new(leveldb.Batch)
	it := s.db.NewIterator(util.BytesPrefix([]byte(entryPrefix+qualified+":")), nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	err := it.Error()
	it.Release()
	if err != nil {
		return fmt.Errorf("scan tier %s: %w", qualified, err)
	}

	batch.Delete([]byte(markerPrefix + qualified))
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("delete tier %s: %w", qualified, err)
	}
	return nil
}

// Name returns the tier's logical name (without version).
func (t *Tier) Name() string {
	return t.name
}

// Match looks up an entry by key. Absence is not an error.
func (t *Tier) Match(key string) (Entry, bool, error) {
	raw, err := t.store.db.Get(t.entryKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("match %s in %s: %w", key, t.qualified, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode entry %s in %s: %w", key, t.qualified, err)
	}
	return e, true, nil
}

// Put stores an entry, fully overwriting any previous value for the key.
func (t *Tier) Put(key string, e Entry) error {
	e.Key = key
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", key, err)
	}
	if err := t.store.db.Put(t.entryKey(key), raw, nil); err != nil {
		return fmt.Errorf("put %s into %s: %w", key, t.qualified, err)
	}
	return nil
}

func (t *Tier) entryKey(key string) []byte {
	return []byte(entryPrefix + t.qualified + ":" + key)
}
