package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"royaltysplit/native/royalty"
)

type Config struct {
	RPCAddress       string `toml:"RPCAddress"`
	DataDir          string `toml:"DataDir"`
	LogFile          string `toml:"LogFile"`
	PayoutQueueSize  int    `toml:"PayoutQueueSize"`
	RPCRatePerSecond int    `toml:"RPCRatePerSecond"`

	Vault VaultConfig `toml:"Vault"`
}

// VaultConfig supplies the one-time construction parameters of the ledger:
// the administrator identity, the commission rate, and the initial
// configuration digest. They only matter on the first start; afterwards the
// persisted snapshot wins.
type VaultConfig struct {
	Owner             string `toml:"Owner"`
	CommissionRateBps uint32 `toml:"CommissionRateBps"`
	InitialConfigHash string `toml:"InitialConfigHash"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./royaltyd-data"
	}
	if cfg.PayoutQueueSize <= 0 {
		cfg.PayoutQueueSize = 256
	}
	if cfg.RPCRatePerSecond <= 0 {
		cfg.RPCRatePerSecond = 20
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the vault construction parameters.
func (cfg *Config) Validate() error {
	if !common.IsHexAddress(strings.TrimSpace(cfg.Vault.Owner)) {
		return fmt.Errorf("config: Vault.Owner %q is not a valid address", cfg.Vault.Owner)
	}
	if cfg.Vault.CommissionRateBps > royalty.BasisPointsDenominator {
		return fmt.Errorf("config: Vault.CommissionRateBps %d exceeds %d", cfg.Vault.CommissionRateBps, royalty.BasisPointsDenominator)
	}
	if _, err := cfg.InitialConfigHash(); err != nil {
		return err
	}
	return nil
}

// OwnerAddress returns the parsed administrator identity.
func (cfg *Config) OwnerAddress() [20]byte {
	return common.HexToAddress(strings.TrimSpace(cfg.Vault.Owner))
}

// InitialConfigHash returns the parsed initial configuration digest. An empty
// value reads as the zero hash.
func (cfg *Config) InitialConfigHash() (uint256.Int, error) {
	raw := strings.TrimSpace(cfg.Vault.InitialConfigHash)
	if raw == "" {
		return uint256.Int{}, nil
	}
	hash, err := uint256.FromHex(raw)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("config: Vault.InitialConfigHash %q: %w", raw, err)
	}
	return *hash, nil
}

// createDefault creates and saves a default configuration file. The owner
// address is deliberately left empty: the daemon refuses to bootstrap without
// an explicit administrator identity.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:       ":8545",
		DataDir:          "./royaltyd-data",
		PayoutQueueSize:  256,
		RPCRatePerSecond: 20,
		Vault: VaultConfig{
			CommissionRateBps: 500,
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, fmt.Errorf("config: wrote default file to %s, set Vault.Owner before starting", path)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
