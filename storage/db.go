// Package storage provides the abstract key-value store the ledger is built
// on (§6.1): ordered iteration per table, atomic write batches, and a
// version key for schema migrations. It says nothing about accounts,
// blocks, or tables — that vocabulary lives in the ledger package, which
// composes table prefixes on top of this.
package storage

// Batch is an atomic write buffer. All operations are applied together via
// Write() or discarded together on error, preventing partial commits.
type Batch interface {
	Set(key, value []byte)
	Delete(key []byte)
	Write() error
	Reset()
}

// DB is the generic key-value store interface. A single process holds one
// write transaction at a time; readers never block on it (§5).
type DB interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewIterator(prefix []byte) Iterator
	NewBatch() Batch
	Close() error
}

// Iterator walks key-value pairs matching a prefix in ascending key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}
