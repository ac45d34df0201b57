package cache

import (
	"time"

	"github.com/spineldb/spineldb/internal/logging"
)

// validatorSampleSize mirrors CacheTagValidatorTask's
// VALIDATOR_SAMPLE_SIZE: each tick checks a bounded sample rather than
// walking every stored key.
const validatorSampleSize = 20

// Validator is the background half of spec.md §4.10's tag invalidation
// contract: Lookup's TagsStale check only catches a stale entry when
// something happens to read it, so this proactively samples stored
// keys and deletes whichever ones have a tag epoch behind the live
// table. Its ticker-driven shape follows shard.NewSweeper.
type Validator struct {
	engine   *Engine
	interval time.Duration
	log      *logging.Logger
}

func NewValidator(engine *Engine, interval time.Duration) *Validator {
	return &Validator{engine: engine, interval: interval, log: logging.New("cache-validator")}
}

// Run blocks, sampling every interval until stop is closed.
func (v *Validator) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			v.sweepOnce()
		}
	}
}

func (v *Validator) sweepOnce() {
	deleted := 0
	for _, key := range v.engine.keys.SampleKeys(validatorSampleSize) {
		vm, ok := v.engine.keys.Peek(key)
		if !ok {
			continue
		}
		if vm.AnyStale(v.engine.tags) {
			v.engine.keys.DeleteKey(key)
			v.engine.stats.recordEviction()
			deleted++
		}
	}
	if deleted > 0 {
		v.log.Infof("evicted %d tag-stale key(s)", deleted)
	}
}
