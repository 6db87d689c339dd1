package shardsift

import (
	"encoding/json"
	"path/filepath"
)

// Record is a single shard-bound credential record.
// Field order is the stable key order of the emitted JSON line.
type Record struct {
	EmailHash string   `json:"email_hash"`
	Password  string   `json:"password"`
	IsHash    bool     `json:"is_hash"`
	HashType  HashType `json:"hash_type"`
	Email     string   `json:"email"`
	Source    string   `json:"source"`
}

// encode renders the record as one newline-terminated JSON line.
func (r *Record) encode() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// prefixLen is the number of hex characters of the email hash that select
// the shard; 4 characters yield up to 65,536 shards.
const prefixLen = 4

// ShardPrefix returns the shard prefix of a 64-hex email hash.
func ShardPrefix(emailHash string) string {
	return emailHash[:prefixLen]
}

// shardPath returns the shard file path for a prefix:
// root/<prefix[0:2]>/<prefix>.jsonl.
func shardPath(root, prefix string) string {
	return filepath.Join(root, prefix[:2], prefix+".jsonl")
}

// shardDir returns the subdirectory holding the shard for a prefix.
func shardDir(root, prefix string) string {
	return filepath.Join(root, prefix[:2])
}
