// Package config loads the flat set of options the core recognizes.
//
// The TOML file and CLI flag parsers are external collaborators (out of
// scope per the project spec); this package only knows how to decode
// environment variables into defaults and apply an already-parsed
// overlay map on top, the same two-step shape the teacher's envs
// package used (env-tag decode, then a thin validation pass).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Eviction policies recognized by maxmemory_policy.
const (
	EvictionNone           = "noeviction"
	EvictionAllKeysLRU     = "allkeys-lru"
	EvictionAllKeysLFU     = "allkeys-lfu"
	EvictionAllKeysRandom  = "allkeys-random"
	EvictionVolatileLRU    = "volatile-lru"
	EvictionVolatileLFU    = "volatile-lfu"
	EvictionVolatileRandom = "volatile-random"
	EvictionVolatileTTL    = "volatile-ttl"
)

var validEvictionPolicies = map[string]bool{
	EvictionNone: true, EvictionAllKeysLRU: true, EvictionAllKeysLFU: true,
	EvictionAllKeysRandom: true, EvictionVolatileLRU: true, EvictionVolatileLFU: true,
	EvictionVolatileRandom: true, EvictionVolatileTTL: true,
}

// SaveRule is one entry of save_rules: trigger a SPLDB save after
// Seconds elapsed with at least Changes writes pending.
type SaveRule struct {
	Seconds int
	Changes int
}

// CachePolicy mirrors one cache.policy[i] entry.
type CachePolicy struct {
	Name                string
	KeyPattern          string
	URLTemplate         string
	TTL                 time.Duration
	SWR                 time.Duration
	Grace               time.Duration
	Tags                []string
	VaryOn              []string
	Prewarm             bool
	DisallowStatusCodes []int
	MaxSizeBytes        int64
	RespectOriginHeader bool
	NegativeTTL         time.Duration
	Priority            int
	Compression         bool
	ForceDisk           bool
}

// Config is the process-wide, immutable-after-load configuration value
// threaded explicitly through every component (per spec.md §9: no
// ambient/global accessors).
type Config struct {
	Host string `env:"SPINELDB_HOST" envDefault:"127.0.0.1"`
	Port int    `env:"SPINELDB_PORT" envDefault:"6380"`

	Databases int    `env:"SPINELDB_DATABASES" envDefault:"16"`
	Shards    int    `env:"SPINELDB_SHARDS" envDefault:"16"`
	RootDir   string `env:"SPINELDB_ROOT_DIR" envDefault:""`

	MaxMemory       int64  `env:"SPINELDB_MAXMEMORY" envDefault:"0"`
	MaxMemoryPolicy string `env:"SPINELDB_MAXMEMORY_POLICY" envDefault:"noeviction"`
	EvictionSamples int    `env:"SPINELDB_EVICTION_SAMPLES" envDefault:"5"`

	AOFEnabled      bool          `env:"SPINELDB_AOF_ENABLED" envDefault:"false"`
	AOFPath         string        `env:"SPINELDB_AOF_PATH" envDefault:"appendonly.aof"`
	AppendFsync     string        `env:"SPINELDB_APPENDFSYNC" envDefault:"everysec"`
	AOFRewritePct   int           `env:"SPINELDB_AUTO_AOF_REWRITE_PERCENTAGE" envDefault:"100"`
	AOFRewriteMinKB int64         `env:"SPINELDB_AUTO_AOF_REWRITE_MIN_SIZE" envDefault:"65536"`
	EverysecStall   time.Duration `env:"SPINELDB_EVERYSEC_STALL" envDefault:"2s"`

	SnapshotPath string `env:"SPINELDB_SPLDB_PATH" envDefault:"dump.spldb"`
	SaveRules    []SaveRule

	ReplicationRole string `env:"SPINELDB_REPL_ROLE" envDefault:"primary"`
	PrimaryHost     string `env:"SPINELDB_PRIMARY_HOST" envDefault:""`
	PrimaryPort     int    `env:"SPINELDB_PRIMARY_PORT" envDefault:"0"`

	MinReplicasToWrite int           `env:"SPINELDB_MIN_REPLICAS_TO_WRITE" envDefault:"0"`
	MinReplicasMaxLag  time.Duration `env:"SPINELDB_MIN_REPLICAS_MAX_LAG" envDefault:"10s"`
	BacklogBytes       int           `env:"SPINELDB_REPL_BACKLOG_BYTES" envDefault:"1048576"`

	ClusterEnabled     bool          `env:"SPINELDB_CLUSTER_ENABLED" envDefault:"false"`
	ClusterConfigFile  string        `env:"SPINELDB_CLUSTER_CONFIG_FILE" envDefault:"nodes.yaml"`
	NodeTimeout        time.Duration `env:"SPINELDB_NODE_TIMEOUT" envDefault:"15s"`
	FailoverQuorum     int           `env:"SPINELDB_FAILOVER_QUORUM" envDefault:"1"`
	ClusterGossipHMAC  string        `env:"SPINELDB_CLUSTER_GOSSIP_SECRET" envDefault:""`

	CacheOnDiskPath         string `env:"SPINELDB_CACHE_ON_DISK_PATH" envDefault:"cache"`
	CacheStreamThresholdB   int64  `env:"SPINELDB_CACHE_STREAMING_THRESHOLD_BYTES" envDefault:"1048576"`
	CacheMaxDiskSize        int64  `env:"SPINELDB_CACHE_MAX_DISK_SIZE" envDefault:"1073741824"`
	CacheMaxVariantsPerKey  int    `env:"SPINELDB_CACHE_MAX_VARIANTS_PER_KEY" envDefault:"16"`
	CachePolicies           []CachePolicy

	ACLFile    string `env:"SPINELDB_ACL_FILE" envDefault:"users.acl.json"`
	ACLEnabled bool   `env:"SPINELDB_ACL_ENABLED" envDefault:"false"`

	CommandTimeout time.Duration `env:"SPINELDB_COMMAND_TIMEOUT" envDefault:"5s"`
}

// Load decodes environment defaults (optionally preceded by a .env
// file, the way the teacher's envs.LoadEnv does) and then applies an
// overlay map, as if handed down from the external TOML loader.
// overlay uses dotted keys matching the table in spec.md §6
// (e.g. "cache.max_disk_size").
func Load(overlay map[string]any) (Config, error) {
	if err := godotenv.Load(); err != nil {
		// absent .env is not fatal; mirrors envs.LoadEnv's warn-and-continue.
		fmt.Fprintf(os.Stderr, "warning: .env file not found, using defaults\n")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment config: %w", err)
	}

	applyOverlay(&cfg, overlay)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyOverlay(cfg *Config, overlay map[string]any) {
	if overlay == nil {
		return
	}
	if v, ok := overlay["host"].(string); ok {
		cfg.Host = v
	}
	if v, ok := overlay["port"]; ok {
		cfg.Port = toInt(v, cfg.Port)
	}
	if v, ok := overlay["databases"]; ok {
		cfg.Databases = toInt(v, cfg.Databases)
	}
	if v, ok := overlay["maxmemory"]; ok {
		cfg.MaxMemory = int64(toInt(v, int(cfg.MaxMemory)))
	}
	if v, ok := overlay["maxmemory_policy"].(string); ok {
		cfg.MaxMemoryPolicy = v
	}
	if v, ok := overlay["aof_enabled"].(bool); ok {
		cfg.AOFEnabled = v
	}
	if v, ok := overlay["aof_path"].(string); ok {
		cfg.AOFPath = v
	}
	if v, ok := overlay["appendfsync"].(string); ok {
		cfg.AppendFsync = v
	}
	if v, ok := overlay["cluster.enabled"].(bool); ok {
		cfg.ClusterEnabled = v
	}
	if v, ok := overlay["cache.on_disk_path"].(string); ok {
		cfg.CacheOnDiskPath = v
	}
	if v, ok := overlay["cache.max_disk_size"]; ok {
		cfg.CacheMaxDiskSize = int64(toInt(v, int(cfg.CacheMaxDiskSize)))
	}
	if v, ok := overlay["cache.max_variants_per_key"]; ok {
		cfg.CacheMaxVariantsPerKey = toInt(v, cfg.CacheMaxVariantsPerKey)
	}
	if v, ok := overlay["policies"].([]CachePolicy); ok {
		cfg.CachePolicies = v
	}
	if v, ok := overlay["save_rules"].([]SaveRule); ok {
		cfg.SaveRules = v
	}
}

func toInt(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return fallback
}

// Validate rejects configurations that would leave the engine in an
// undefined state; this is the validation the teacher's envs.Gets
// never performed.
func (c Config) Validate() error {
	if c.Databases <= 0 {
		return fmt.Errorf("config: databases must be positive, got %d", c.Databases)
	}
	if c.Shards <= 0 {
		return fmt.Errorf("config: shards must be positive, got %d", c.Shards)
	}
	if !validEvictionPolicies[c.MaxMemoryPolicy] {
		return fmt.Errorf("config: unknown maxmemory_policy %q", c.MaxMemoryPolicy)
	}
	if c.EvictionSamples <= 0 {
		return fmt.Errorf("config: eviction_samples must be positive")
	}
	switch c.AppendFsync {
	case "always", "everysec", "no":
	default:
		return fmt.Errorf("config: unknown appendfsync %q", c.AppendFsync)
	}
	return nil
}
