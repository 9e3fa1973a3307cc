package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type API struct {
	ListenAddr     string
	AllowedOrigins []string
}

type Store struct {
	// DataDir holds the pebble database and log files
	DataDir string
}

type Devnet struct {
	// FaucetEnabled exposes mint/approve endpoints for local development.
	// Never enable outside a devnet: the faucet prints money.
	FaucetEnabled bool
	// ClosedHistoryLimit caps GET /orders/closed responses
	ClosedHistoryLimit int
}

type Config struct {
	API    API
	Store  Store
	Devnet Devnet
}

func Default() Config {
	return Config{
		API: API{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Store: Store{
			DataDir: "data",
		},
		Devnet: Devnet{
			FaucetEnabled:      true,
			ClosedHistoryLimit: 100,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Optional .env file
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if addr := os.Getenv("API_ADDR"); addr != "" {
		cfg.API.ListenAddr = addr
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Store.DataDir = dir
	}
	if faucet := os.Getenv("FAUCET_ENABLED"); faucet != "" {
		cfg.Devnet.FaucetEnabled = faucet == "true"
	}
	if limit := os.Getenv("CLOSED_HISTORY_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			cfg.Devnet.ClosedHistoryLimit = n
		}
	}

	return cfg
}
