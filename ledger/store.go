package ledger

import (
	"fmt"
	"strings"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/storage"
)

// Store is the ledger's persistence layer: table-keyed access over a
// storage.DB, with a single in-flight write transaction at a time (§5, §6.1).
// Reads outside a transaction go straight to the underlying DB and are never
// blocked by it.
type Store struct {
	db storage.DB
}

// NewStore wraps db. Callers are responsible for running migrations (see
// EnsureSchema) before first use.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema writes the current schema version if the database is new,
// or returns an error if an incompatible future version is found (§6.1).
func (s *Store) EnsureSchema() error {
	raw, err := s.db.Get(metaSchemaVersionKey)
	if err == storage.ErrNotFound {
		return s.db.Set(metaSchemaVersionKey, []byte{SchemaVersion})
	}
	if err != nil {
		return err
	}
	if len(raw) != 1 || raw[0] > SchemaVersion {
		return fmt.Errorf("ledger: unsupported schema version %v", raw)
	}
	return nil
}

// Txn buffers writes in memory (dirty/deleted maps over the write buffer,
// same discipline the node's earlier state layer used for snapshot/rollback)
// until Commit flushes them through one storage.Batch, so a failed Process
// call can never leave partial effects (§4.3, §7).
type Txn struct {
	store   *Store
	dirty   map[string][]byte
	deleted map[string]bool
}

// Begin opens a write transaction. Only one should be open at a time per
// Store (§5 "single writer"); callers serialize externally (e.g. the block
// processor's consumer loop, §4.4).
func (s *Store) Begin() *Txn {
	return &Txn{
		store:   s,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

func (t *Txn) get(key []byte) ([]byte, error) {
	k := string(key)
	if t.deleted[k] {
		return nil, storage.ErrNotFound
	}
	if v, ok := t.dirty[k]; ok {
		return v, nil
	}
	return t.store.db.Get(key)
}

func (t *Txn) put(key, value []byte) {
	k := string(key)
	delete(t.deleted, k)
	t.dirty[k] = value
}

func (t *Txn) del(key []byte) {
	k := string(key)
	delete(t.dirty, k)
	t.deleted[k] = true
}

// Commit flushes the write buffer atomically and clears it.
func (t *Txn) Commit() error {
	batch := t.store.db.NewBatch()
	for k, v := range t.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range t.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("ledger: commit: %w", err)
	}
	t.dirty = make(map[string][]byte)
	t.deleted = make(map[string]bool)
	return nil
}

// Discard drops the write buffer without touching the database, used when
// a Process call fails partway through (§7: "validation errors never cause
// abort" of the store itself, only of that one call's effects).
func (t *Txn) Discard() {
	t.dirty = make(map[string][]byte)
	t.deleted = make(map[string]bool)
}

// ---- accounts ----

func (t *Txn) GetAccountInfo(acc crypto.PublicKey) (AccountInfo, bool, error) {
	raw, err := t.get(accountKey(acc))
	if err == storage.ErrNotFound {
		return AccountInfo{}, false, nil
	}
	if err != nil {
		return AccountInfo{}, false, err
	}
	info, err := UnmarshalAccountInfo(raw)
	return info, true, err
}

func (t *Txn) PutAccountInfo(acc crypto.PublicKey, info AccountInfo) error {
	raw, err := info.MarshalBinary()
	if err != nil {
		return err
	}
	t.put(accountKey(acc), raw)
	return nil
}

func (t *Txn) DeleteAccountInfo(acc crypto.PublicKey) {
	t.del(accountKey(acc))
}

// ---- blocks ----

func (t *Txn) GetBlockRow(typ byte, hash crypto.Hash) ([]byte, bool, error) {
	raw, err := t.get(blockKey(typ, hash))
	if err == storage.ErrNotFound {
		return nil, false, nil
	}
	return raw, err == nil, err
}

func (t *Txn) PutBlockRow(typ byte, hash crypto.Hash, row []byte) {
	t.put(blockKey(typ, hash), row)
}

func (t *Txn) DeleteBlockRow(typ byte, hash crypto.Hash) {
	t.del(blockKey(typ, hash))
}

// FindBlockAnyType looks a hash up across all five block tables, used when
// the caller only has a hash (e.g. resolving `previous`) and not its type.
func (t *Txn) FindBlockAnyType(hash crypto.Hash) (typ byte, row []byte, found bool, err error) {
	for _, candidate := range []byte{2, 3, 4, 5, 6} {
		row, found, err = t.GetBlockRow(candidate, hash)
		if err != nil {
			return 0, nil, false, err
		}
		if found {
			return candidate, row, true, nil
		}
	}
	return 0, nil, false, nil
}

// ---- pending ----

func (t *Txn) GetPending(destination crypto.PublicKey, sendHash crypto.Hash) (PendingEntry, bool, error) {
	raw, err := t.get(pendingKey(destination, sendHash))
	if err == storage.ErrNotFound {
		return PendingEntry{}, false, nil
	}
	if err != nil {
		return PendingEntry{}, false, err
	}
	entry, err := UnmarshalPendingEntry(raw)
	return entry, true, err
}

func (t *Txn) PutPending(destination crypto.PublicKey, sendHash crypto.Hash, entry PendingEntry) error {
	raw, err := entry.MarshalBinary()
	if err != nil {
		return err
	}
	t.put(pendingKey(destination, sendHash), raw)
	return nil
}

func (t *Txn) DeletePending(destination crypto.PublicKey, sendHash crypto.Hash) {
	t.del(pendingKey(destination, sendHash))
}

// PendingAny reports whether destination has at least one pending entry,
// checking both this transaction's uncommitted writes and the underlying
// store (§4.3 rule 11: an epoch block may open an account that has never
// had a block of its own but does have a pending receive waiting).
func (t *Txn) PendingAny(destination crypto.PublicKey) (bool, error) {
	prefix := string(pendingPrefix(destination))
	for k := range t.dirty {
		if strings.HasPrefix(k, prefix) && !t.deleted[k] {
			return true, nil
		}
	}

	it := t.store.db.NewIterator([]byte(prefix))
	defer it.Release()
	for it.Next() {
		if !t.deleted[string(it.Key())] {
			return true, it.Error()
		}
	}
	return false, it.Error()
}

// ---- confirmation height ----

func (t *Txn) GetConfirmationHeight(acc crypto.PublicKey) (ConfirmationHeightInfo, bool, error) {
	raw, err := t.get(confirmationHeightKey(acc))
	if err == storage.ErrNotFound {
		return ConfirmationHeightInfo{}, false, nil
	}
	if err != nil {
		return ConfirmationHeightInfo{}, false, err
	}
	info, err := UnmarshalConfirmationHeightInfo(raw)
	return info, true, err
}

func (t *Txn) PutConfirmationHeight(acc crypto.PublicKey, info ConfirmationHeightInfo) error {
	raw, err := info.MarshalBinary()
	if err != nil {
		return err
	}
	t.put(confirmationHeightKey(acc), raw)
	return nil
}

// ---- unchecked ----

// PutUnchecked quarantines a block awaiting dependency (§4.3 gap handling).
func (t *Txn) PutUnchecked(dependency crypto.Hash, typ byte, block blocks.Block) error {
	raw, err := block.MarshalBinary()
	if err != nil {
		return err
	}
	row := append([]byte{typ}, raw...)
	t.put(uncheckedKey(dependency, block.Hash()), row)
	return nil
}

// TakeUnchecked returns and removes every unchecked entry keyed off
// dependency, for re-enqueueing at the front of the processing queue once
// that dependency commits (§4.3, §4.4).
func (t *Txn) TakeUnchecked(dependency crypto.Hash) ([]blocks.Block, error) {
	prefix := uncheckedPrefix(dependency)
	it := t.store.db.NewIterator(prefix)
	defer it.Release()

	var out []blocks.Block
	var keys [][]byte
	for it.Next() {
		k := append([]byte{}, it.Key()...)
		keys = append(keys, k)
		v := it.Value()
		if len(v) < 1 {
			continue
		}
		b, err := blocks.DecodeBody(blocks.Type(v[0]), v[1:])
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	for _, k := range keys {
		t.del(k)
	}
	// Dirty-buffer entries matching this prefix (not yet flushed) must also
	// be drained, since the iterator above only sees committed state.
	for k, v := range t.dirty {
		if len(k) >= len(prefix) && k[:len(prefix)] == string(prefix) && !t.deleted[k] {
			if len(v) < 1 {
				continue
			}
			b, err := blocks.DecodeBody(blocks.Type(v[0]), v[1:])
			if err == nil {
				out = append(out, b)
			}
			t.del([]byte(k))
		}
	}
	return out, nil
}

// ---- representative weight ----

// LoadAllAccountInfos scans the full accounts table, used by New to build
// the RepWeightCache's initial snapshot; RepWeightCache.Verify takes the
// same map to audit the cache.
func (s *Store) LoadAllAccountInfos() (map[string]AccountInfo, error) {
	it := s.db.NewIterator([]byte(tableAccounts))
	defer it.Release()

	out := make(map[string]AccountInfo)
	for it.Next() {
		acc := string(it.Key()[len(tableAccounts):])
		info, err := UnmarshalAccountInfo(it.Value())
		if err != nil {
			return nil, err
		}
		out[acc] = info
	}
	return out, it.Error()
}
