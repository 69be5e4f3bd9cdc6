package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Market struct {
	Symbol string
	// Leverage is the notional multiplier cap: collateral × Leverage must
	// cover position size. Also sets the maintenance-margin percentage
	// (100/Leverage %).
	Leverage uint64
}

type Node struct {
	APIAddr string
	DBPath  string
	LogFile string
}

type Config struct {
	Market Market
	Node   Node
}

func Default() Config {
	return Config{
		Market: Market{
			Symbol:   "BTC-USD",
			Leverage: 10,
		},
		Node: Node{
			APIAddr: ":8080",
			DBPath:  "data/margin.db",
			LogFile: "data/margind.log",
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

	if symbol := os.Getenv("MARKET_SYMBOL"); symbol != "" {
		cfg.Market.Symbol = symbol
	}
	if lev := os.Getenv("MARKET_LEVERAGE"); lev != "" {
		if v, err := strconv.ParseUint(lev, 10, 64); err == nil && v > 0 {
			cfg.Market.Leverage = v
		}
	}
	if addr := os.Getenv("API_ADDR"); addr != "" {
		cfg.Node.APIAddr = addr
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		cfg.Node.DBPath = path
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.Node.LogFile = logFile
	}

	return cfg
}
