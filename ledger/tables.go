// Package ledger implements the ledger processor (§4.3): block validation,
// account/pending/confirmation-height bookkeeping, and the representative
// weight cache, all committed through a single-writer transaction over the
// fourteen tables of §6.1.
package ledger

import "github.com/tolelom/nanoledger/crypto"

// Table prefixes, one per §6.1 table. Declaring them through registerTable
// keeps tableList in step with these declarations automatically instead of
// needing a second hand-maintained list.
func registerTable(p string) string {
	tableList = append(tableList, p)
	return p
}

var tableList []string

var (
	tableAccounts            = registerTable("a:")
	tableFrontiers           = registerTable("f:")
	tableSendBlocks          = registerTable("bs:")
	tableReceiveBlocks       = registerTable("br:")
	tableOpenBlocks          = registerTable("bo:")
	tableChangeBlocks        = registerTable("bc:")
	tableStateBlocks         = registerTable("bt:")
	tablePending             = registerTable("p:")
	tableUnchecked           = registerTable("u:")
	tableVote                = registerTable("v:")
	tableOnlineWeight        = registerTable("ow:")
	tableMeta                = registerTable("m:")
	tablePeers               = registerTable("pr:")
	tableConfirmationHeight  = registerTable("ch:")
)

// metaSchemaVersionKey holds the schema version integer (§6.1).
var metaSchemaVersionKey = []byte(tableMeta + "schema_version")

// SchemaVersion is the current on-disk schema version this package writes
// and expects to read. Bump by one and add a migration when a table's
// encoding changes shape.
const SchemaVersion = 1

func accountKey(acc crypto.PublicKey) []byte {
	return append([]byte(tableAccounts), acc...)
}

func frontierKey(headHash crypto.Hash) []byte {
	return append([]byte(tableFrontiers), headHash[:]...)
}

func blockTableFor(typ byte) string {
	switch typ {
	case 2: // blocks.Send
		return tableSendBlocks
	case 3: // blocks.Receive
		return tableReceiveBlocks
	case 4: // blocks.Open
		return tableOpenBlocks
	case 5: // blocks.Change
		return tableChangeBlocks
	case 6: // blocks.State
		return tableStateBlocks
	default:
		return ""
	}
}

func blockKey(typ byte, hash crypto.Hash) []byte {
	return append([]byte(blockTableFor(typ)), hash[:]...)
}

// pendingKey encodes the (destination, send_hash) composite key (§6.3).
func pendingKey(destination crypto.PublicKey, sendHash crypto.Hash) []byte {
	key := make([]byte, 0, len(tablePending)+len(destination)+len(sendHash))
	key = append(key, []byte(tablePending)...)
	key = append(key, destination...)
	key = append(key, sendHash[:]...)
	return key
}

// pendingPrefix returns the key prefix matching every pending entry for
// destination, for iterating an account's receivable set.
func pendingPrefix(destination crypto.PublicKey) []byte {
	key := make([]byte, 0, len(tablePending)+len(destination))
	key = append(key, []byte(tablePending)...)
	key = append(key, destination...)
	return key
}

func uncheckedKey(dependency crypto.Hash, blockHash crypto.Hash) []byte {
	key := make([]byte, 0, len(tableUnchecked)+64)
	key = append(key, []byte(tableUnchecked)...)
	key = append(key, dependency[:]...)
	key = append(key, blockHash[:]...)
	return key
}

func uncheckedPrefix(dependency crypto.Hash) []byte {
	key := make([]byte, 0, len(tableUnchecked)+32)
	key = append(key, []byte(tableUnchecked)...)
	key = append(key, dependency[:]...)
	return key
}

func voteKey(account crypto.PublicKey) []byte {
	return append([]byte(tableVote), account...)
}

func confirmationHeightKey(acc crypto.PublicKey) []byte {
	return append([]byte(tableConfirmationHeight), acc...)
}

func onlineWeightKey(sampleID uint64) []byte {
	key := make([]byte, len(tableOnlineWeight)+8)
	copy(key, tableOnlineWeight)
	for i := 0; i < 8; i++ {
		key[len(tableOnlineWeight)+i] = byte(sampleID >> (56 - 8*i))
	}
	return key
}

func peerKey(id string) []byte {
	return append([]byte(tablePeers), []byte(id)...)
}
