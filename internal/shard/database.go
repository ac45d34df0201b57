package shard

import "hash/fnv"

// Database is one logical database: a fixed array of N independently
// locked shards (spec.md §3). Databases is the multi-database array
// (default 16, spec.md §3 Multi-database), selected per-connection.
type Database struct {
	Shards []*Shard
}

func NewDatabase(shardCount int) *Database {
	shards := make([]*Shard, shardCount)
	for i := range shards {
		shards[i] = New()
	}
	return &Database{Shards: shards}
}

// Databases is the per-connection-selectable array of logical
// databases.
type Databases struct {
	DBs []*Database
}

func NewDatabases(count, shardCount int) *Databases {
	dbs := make([]*Database, count)
	for i := range dbs {
		dbs[i] = NewDatabase(shardCount)
	}
	return &Databases{DBs: dbs}
}

// Index computes key's deterministic shard index: a hash of the key
// bytes modulo N (spec.md §4.3). Cluster hash-tag extraction
// (the substring between the first '{' and next '}') happens in the
// cluster package only, for slot computation; Index always hashes the
// whole key it is given (dispatch and txn pass whole keys).
func (d *Database) Index(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32()) % len(d.Shards)
}

// ShardFor returns the shard owning key.
func (d *Database) ShardFor(key string) *Shard {
	return d.Shards[d.Index(key)]
}
