// Package config loads the overlay node's JSONC config file plus
// environment variable overrides, deriving the per-network directory
// layout under SEDA_HOME. The schema is loaded through viper with a
// JSONC comment-stripping pass in front of it, since viper has no native
// JSONC support.
package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Network selects the default chain endpoints and home subdirectory.
type Network string

const (
	NetworkDevnet  Network = "devnet"
	NetworkTestnet Network = "testnet"
	NetworkMainnet Network = "mainnet"
	NetworkPlanet  Network = "planet"
)

// SedaChainConfig is the config file's `sedaChain` block.
type SedaChainConfig struct {
	RPC                              string  `mapstructure:"rpc"`
	ChainID                          string  `mapstructure:"chainId"`
	Mnemonic                         string  `mapstructure:"mnemonic"`
	Contract                         string  `mapstructure:"contract"`
	AccountAmounts                   int     `mapstructure:"accountAmounts"`
	MinSedaPerAccount                string  `mapstructure:"minSedaPerAccount"`
	IdentitiesAmount                 int     `mapstructure:"identitiesAmount"`
	MaxRetries                       int     `mapstructure:"maxRetries"`
	SleepBetweenFailedTxMs           int     `mapstructure:"sleepBetweenFailedTx"`
	TransactionPollIntervalMs        int     `mapstructure:"transactionPollInterval"`
	QueueIntervalMs                  int     `mapstructure:"queueInterval"`
	GasPrice                         string  `mapstructure:"gasPrice"`
	GasAdjustmentFactor              float64 `mapstructure:"gasAdjustmentFactor"`
	GasAdjustmentFactorCosmosMsgs    float64 `mapstructure:"gasAdjustmentFactorCosmosMessages"`
	Gas                              string  `mapstructure:"gas"`
	MemoSuffix                       string  `mapstructure:"memoSuffix"`
	FollowHTTPRedirects              bool    `mapstructure:"followHttpRedirects"`
	HTTPRedirectTTLMs                int     `mapstructure:"httpRedirectTtlMs"`
	TransactionBlockSearchThreshold  int     `mapstructure:"transactionBlockSearchThreshold"`
	DisableTransactionBlockSearch    bool    `mapstructure:"disableTransactionBlockSearch"`
	RewardsWithdrawalIntervalMs      int     `mapstructure:"rewardsWithdrawalInterval"`
	RewardsWithdrawalMinimumThresh   string  `mapstructure:"rewardsWithdrawalMinimumThreshold"`
	EnableRewardsWithdrawal          bool    `mapstructure:"enableRewardsWithdrawal"`
}

// NodeConfig is the config file's `node` block.
type NodeConfig struct {
	MaxConcurrentRequests    int    `mapstructure:"maxConcurrentRequests"`
	MaxGasLimit              uint64 `mapstructure:"maxGasLimit"`
	MaxVmLogsSizeBytes       int    `mapstructure:"maxVmLogsSizeBytes"`
	ProcessDrIntervalMs      int    `mapstructure:"processDrInterval"`
	BlockLocalhost           bool   `mapstructure:"blockLocalhost"`
	TerminateAfterCompletion bool   `mapstructure:"terminateAfterCompletion"`
	LogMaxSizeMB             int    `mapstructure:"logMaxSizeMb"`
	LogMaxBackups            int    `mapstructure:"logMaxBackups"`
	LogMaxAgeDays            int    `mapstructure:"logMaxAgeDays"`
}

// IntervalsConfig is the config file's `intervals` block (all durations in ms).
type IntervalsConfig struct {
	FetchTaskMs       int `mapstructure:"fetchTask"`
	IdentityCheckMs   int `mapstructure:"identityCheck"`
	StatusCheckMs     int `mapstructure:"statusCheck"`
	EligibilityCheckMs int `mapstructure:"eligibilityCheck"`
	DRTaskMs          int `mapstructure:"drTask"`
}

// HTTPServerConfig is the config file's `httpServer` block.
type HTTPServerConfig struct {
	Port                    int  `mapstructure:"port"`
	EnableAutoPortDiscovery bool `mapstructure:"enableAutoPortDiscovery"`
}

// Config is the config file's full schema.
type Config struct {
	HomeDir      string `mapstructure:"homeDir"`
	WasmCacheDir string `mapstructure:"wasmCacheDir"`
	LogsDir      string `mapstructure:"logsDir"`
	WorkersDir   string `mapstructure:"workersDir"`

	SedaChain  SedaChainConfig  `mapstructure:"sedaChain"`
	Node       NodeConfig       `mapstructure:"node"`
	Intervals  IntervalsConfig  `mapstructure:"intervals"`
	HTTPServer HTTPServerConfig `mapstructure:"httpServer"`
}

// defaults holds every knob's documented default.
func defaults(v *viper.Viper) {
	v.SetDefault("sedaChain.contract", "auto")
	v.SetDefault("sedaChain.accountAmounts", 10)
	v.SetDefault("sedaChain.minSedaPerAccount", "1000000000000000000") // 1 SEDA in aseda
	v.SetDefault("sedaChain.identitiesAmount", 1)
	v.SetDefault("sedaChain.maxRetries", 3)
	v.SetDefault("sedaChain.sleepBetweenFailedTx", 3000)
	v.SetDefault("sedaChain.transactionPollInterval", 2000)
	v.SetDefault("sedaChain.queueInterval", 200)
	v.SetDefault("sedaChain.gasPrice", "10000000000")
	v.SetDefault("sedaChain.gasAdjustmentFactor", 1.1)
	v.SetDefault("sedaChain.gasAdjustmentFactorCosmosMessages", 2.0)
	v.SetDefault("sedaChain.gas", "auto")
	v.SetDefault("sedaChain.followHttpRedirects", true)
	v.SetDefault("sedaChain.httpRedirectTtlMs", 300000)
	v.SetDefault("sedaChain.transactionBlockSearchThreshold", 2)
	v.SetDefault("sedaChain.disableTransactionBlockSearch", true)
	v.SetDefault("sedaChain.rewardsWithdrawalInterval", 86400000)
	v.SetDefault("sedaChain.rewardsWithdrawalMinimumThreshold", "1000000000000000000")
	v.SetDefault("sedaChain.enableRewardsWithdrawal", false)

	v.SetDefault("node.maxConcurrentRequests", 20)
	v.SetDefault("node.maxGasLimit", uint64(300_000_000_000_000))
	v.SetDefault("node.maxVmLogsSizeBytes", 1024)
	v.SetDefault("node.processDrInterval", 2500)
	v.SetDefault("node.blockLocalhost", true)
	v.SetDefault("node.terminateAfterCompletion", false)
	v.SetDefault("node.logMaxSizeMb", 100)
	v.SetDefault("node.logMaxBackups", 3)
	v.SetDefault("node.logMaxAgeDays", 28)

	v.SetDefault("intervals.fetchTask", 1000)
	v.SetDefault("intervals.identityCheck", 1_200_000)
	v.SetDefault("intervals.statusCheck", 2500)
	v.SetDefault("intervals.eligibilityCheck", 3000)
	v.SetDefault("intervals.drTask", 100)

	v.SetDefault("httpServer.port", 3000)
	v.SetDefault("httpServer.enableAutoPortDiscovery", false)
}

// stripJSONComments removes `//` line comments from JSONC input. It does
// not try to be a full JSONC parser; it tracks string literals so a `//`
// inside a quoted value is left alone, which is all the config file
// needs.
func stripJSONComments(src []byte) []byte {
	var out strings.Builder
	inString := false
	escaped := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if inString {
			out.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(src) && src[i+1] == '/' {
			for i < len(src) && src[i] != '\n' {
				i++
			}
			out.WriteByte('\n')
			continue
		}
		out.WriteByte(c)
	}
	return []byte(out.String())
}

// Load reads the config file at path (JSONC), applies defaults, then lets
// the documented environment variables override it, and
// derives homeDir/wasmCacheDir/logsDir/workersDir if left unset.
func Load(path string, network Network) (*Config, error) {
	if dotenvPath := os.Getenv("DOTENV_CONFIG_PATH"); dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil {
			log.Warn().Str("path", dotenvPath).Msg("config: no .env file found at DOTENV_CONFIG_PATH")
		}
	} else if err := godotenv.Load(); err != nil {
		log.Debug().Msg("config: no .env file found, using environment defaults")
	}

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("SEDA")
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("SEDA_CONFIG_PATH")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		stripped := stripJSONComments(raw)
		var asMap map[string]interface{}
		if err := json.Unmarshal(stripped, &asMap); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
		if err := v.MergeConfigMap(asMap); err != nil {
			return nil, fmt.Errorf("config: merging %s: %w", path, err)
		}
	}

	if mnemonic := os.Getenv("SEDA_MNEMONIC"); mnemonic != "" {
		v.Set("sedaChain.mnemonic", mnemonic)
	}
	if port := os.Getenv("PORT"); port != "" {
		v.Set("httpServer.port", port)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	applyNetworkDefaults(&cfg, network)
	if err := cfg.deriveDirs(network); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyNetworkDefaults fills in sedaChain.rpc/chainId when the config
// file left them blank, from the `--network` preset.
func applyNetworkDefaults(cfg *Config, network Network) {
	if cfg.SedaChain.RPC != "" && cfg.SedaChain.ChainID != "" {
		return
	}
	rpc, chainID := networkDefaults(network)
	if cfg.SedaChain.RPC == "" {
		cfg.SedaChain.RPC = rpc
	}
	if cfg.SedaChain.ChainID == "" {
		cfg.SedaChain.ChainID = chainID
	}
}

func networkDefaults(network Network) (rpc, chainID string) {
	switch network {
	case NetworkMainnet:
		return "https://rpc.seda.xyz", "seda-1"
	case NetworkTestnet:
		return "https://rpc.testnet.seda.xyz", "seda-1-testnet"
	case NetworkPlanet:
		return "https://rpc.planet.seda.xyz", "seda-1-planet"
	default:
		return "http://localhost:26657", "seda-devnet"
	}
}

// deriveDirs fills homeDir/wasmCacheDir/logsDir/workersDir from
// SEDA_HOME/XDG_DATA_HOME if the config file left them unset.
func (c *Config) deriveDirs(network Network) error {
	if c.HomeDir == "" {
		base := os.Getenv("SEDA_HOME")
		if base == "" {
			base = os.Getenv("XDG_DATA_HOME")
		}
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("config: resolving home directory: %w", err)
			}
			base = home
		}
		c.HomeDir = filepath.Join(base, ".seda", string(network))
	}
	if c.WasmCacheDir == "" {
		c.WasmCacheDir = filepath.Join(c.HomeDir, "wasm-cache")
	}
	if c.LogsDir == "" {
		c.LogsDir = filepath.Join(c.HomeDir, "logs")
	}
	if c.WorkersDir == "" {
		c.WorkersDir = filepath.Join(c.HomeDir, "workers")
	}
	return nil
}

// Validate checks the fatal-at-startup conditions: a missing/invalid
// mnemonic and out-of-range numeric knobs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SedaChain.Mnemonic) == "" {
		return fmt.Errorf("config: sedaChain.mnemonic is required")
	}
	if c.SedaChain.AccountAmounts < 1 {
		return fmt.Errorf("config: sedaChain.accountAmounts must be >= 1, got %d", c.SedaChain.AccountAmounts)
	}
	if c.SedaChain.IdentitiesAmount < 1 {
		return fmt.Errorf("config: sedaChain.identitiesAmount must be >= 1, got %d", c.SedaChain.IdentitiesAmount)
	}
	if c.SedaChain.MaxRetries < 0 {
		return fmt.Errorf("config: sedaChain.maxRetries must be >= 0, got %d", c.SedaChain.MaxRetries)
	}
	if _, ok := new(big.Int).SetString(c.SedaChain.GasPrice, 10); !ok {
		return fmt.Errorf("config: sedaChain.gasPrice %q is not a valid integer", c.SedaChain.GasPrice)
	}
	if c.Node.MaxConcurrentRequests < 1 {
		return fmt.Errorf("config: node.maxConcurrentRequests must be >= 1, got %d", c.Node.MaxConcurrentRequests)
	}
	if c.HTTPServer.Port <= 0 || c.HTTPServer.Port > 65535 {
		return fmt.Errorf("config: httpServer.port %d out of range", c.HTTPServer.Port)
	}
	return nil
}

// EnsureDirs creates homeDir/wasmCacheDir/logsDir/workersDir if missing.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.HomeDir, c.WasmCacheDir, c.LogsDir, c.WorkersDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: creating %s: %w", dir, err)
		}
	}
	return nil
}
