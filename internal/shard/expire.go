package shard

import (
	"time"

	"github.com/spineldb/spineldb/internal/logging"
)

// Lookup implements the lazy half of expiration enforcement (spec.md
// §4.3): any access to a key past its expiration treats it as absent
// and deletes it. Callers must already hold sh.Mu for writing (lazy
// deletion mutates the map).
func Lookup(sh *Shard, key string, nowMs int64) (*Entry, bool) {
	e, ok := sh.entries[key]
	if !ok {
		return nil, false
	}
	if e.ExpiredAt(nowMs) {
		sh.Delete(key)
		return nil, false
	}
	return e, true
}

// Sweeper proactively samples shards for expired entries in the
// background, the second half of spec.md §4.3's expiration contract.
// Its ticker-driven shape follows the teacher's
// StartDataExpirationListener (internal/redigo/expiration.go).
type Sweeper struct {
	dbs      []*Database
	interval time.Duration
	log      *logging.Logger
	onExpire func(dbIndex int, key string)
}

func NewSweeper(dbs []*Database, interval time.Duration, onExpire func(dbIndex int, key string)) *Sweeper {
	return &Sweeper{dbs: dbs, interval: interval, log: logging.New("expire"), onExpire: onExpire}
}

// Run blocks, sweeping every interval until stop is closed.
func (s *Sweeper) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() {
	nowMs := time.Now().UnixMilli()
	for dbIdx, db := range s.dbs {
		for _, sh := range db.Shards {
			sh.Mu.Lock()
			expired := sh.PopExpiredBefore(nowMs)
			for _, key := range expired {
				if e, ok := sh.entries[key]; ok && e.ExpiredAt(nowMs) {
					sh.Delete(key)
				}
			}
			sh.Mu.Unlock()
			for _, key := range expired {
				if s.onExpire != nil {
					s.onExpire(dbIdx, key)
				}
			}
		}
	}
}
