package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage points the node's two pebble databases
type Storage struct {
	LedgerPath string // balances and token ownership
	StatusPath string // fill status, counters, parked settlements
}

type API struct {
	ListenAddr string
	LogPath    string // when set, logs tee to this file as well as stdout
}

// Settlement tunes the engine
type Settlement struct {
	Account    string        // escrow account address (hex)
	ConduitKey string        // channel key the local conduit registers under (32-byte hex)
	ChainID    uint64        // EIP-712 domain chain id
	PendingTTL time.Duration // parked probabilistic settlements expire after this
	SweepEvery time.Duration // expiry sweeper interval; 0 disables the sweeper
}

// Beacon holds the randomness-beacon verification key. An empty key
// disables the probabilistic settlement path.
type Beacon struct {
	PubKeyHex string
}

// Feed configures the optional libp2p event gossip
type Feed struct {
	Enabled    bool
	ListenAddr string
	Bootstrap  []string
}

type Config struct {
	Storage    Storage
	API        API
	Settlement Settlement
	Beacon     Beacon
	Feed       Feed
}

func Default() Config {
	return Config{
		Storage: Storage{
			LedgerPath: "data/ledger",
			StatusPath: "data/status",
		},
		API: API{
			ListenAddr: ":8547",
		},
		Settlement: Settlement{
			Account:    "0x0000000000000000000000000000000000534541",
			ConduitKey: "0x5345410000000000000000000000000000000000000000000000000000000001",
			ChainID:    1337,
			PendingTTL: 24 * time.Hour,
			SweepEvery: time.Minute,
		},
		Feed: Feed{
			ListenAddr: "/ip4/0.0.0.0/tcp/9547",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Storage.LedgerPath = getEnv("LEDGER_DB_PATH", cfg.Storage.LedgerPath)
	cfg.Storage.StatusPath = getEnv("STATUS_DB_PATH", cfg.Storage.StatusPath)

	cfg.API.ListenAddr = getEnv("API_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.LogPath = getEnv("API_LOG_PATH", cfg.API.LogPath)

	cfg.Settlement.Account = getEnv("ENGINE_ACCOUNT", cfg.Settlement.Account)
	cfg.Settlement.ConduitKey = getEnv("CONDUIT_KEY", cfg.Settlement.ConduitKey)
	if chainID := os.Getenv("CHAIN_ID"); chainID != "" {
		if id, err := strconv.ParseUint(chainID, 10, 64); err == nil {
			cfg.Settlement.ChainID = id
		}
	}
	if ttl := os.Getenv("PENDING_TTL_MS"); ttl != "" {
		if ms, err := strconv.Atoi(ttl); err == nil {
			cfg.Settlement.PendingTTL = time.Duration(ms) * time.Millisecond
		}
	}
	if sweep := os.Getenv("SWEEP_INTERVAL_MS"); sweep != "" {
		if ms, err := strconv.Atoi(sweep); err == nil {
			cfg.Settlement.SweepEvery = time.Duration(ms) * time.Millisecond
		}
	}

	cfg.Beacon.PubKeyHex = getEnv("BEACON_PUBKEY", cfg.Beacon.PubKeyHex)

	if enabled := os.Getenv("FEED_ENABLED"); enabled != "" {
		cfg.Feed.Enabled = enabled == "true"
	}
	cfg.Feed.ListenAddr = getEnv("FEED_LISTEN_ADDR", cfg.Feed.ListenAddr)
	if bootstrap := os.Getenv("FEED_BOOTSTRAP"); bootstrap != "" {
		cfg.Feed.Bootstrap = strings.Split(bootstrap, ",")
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
