package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tolelom/tolchain/core"
)

// SeedPeer identifies a remote node to dial on startup.
type SeedPeer struct {
	ID   string `json:"id"`   // remote node id
	Addr string `json:"addr"` // host:port
}

// PoWConfig holds PoW-only tunables.
type PoWConfig struct {
	DifficultyPrefix string `json:"difficulty_prefix"` // default "00000"; not read: PoW uses the fixed consensus.PoWDifficultyPrefix
}

// PoSConfig holds PoS-only tunables.
type PoSConfig struct {
	EpochSeconds int `json:"epoch_seconds"` // default 60
}

// PoAConfig holds PoA-only tunables.
type PoAConfig struct {
	AdminID    string   `json:"admin_id"`    // Genesis producer's node id
	MinersList []string `json:"miners_list"` // initial roster, node ids
}

// Config holds all node configuration.
type Config struct {
	NodeID      string      `json:"node_id"`
	DataDir     string      `json:"data_dir"`
	RPCPort     int         `json:"rpc_port"`
	P2PPort     int         `json:"p2p_port"`
	Regime      core.Regime `json:"regime"`
	MaxBlockTxs int         `json:"max_block_txs"` // 0 -> 500

	PoW *PoWConfig `json:"pow,omitempty"`
	PoS *PoSConfig `json:"pos,omitempty"`
	PoA *PoAConfig `json:"poa,omitempty"`

	SeedPeers    []SeedPeer `json:"seed_peers,omitempty"`
	KeystorePath string     `json:"keystore_path"`
	RPCAuthToken string     `json:"rpc_auth_token,omitempty"` // empty -> no auth
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:       "node0",
		DataDir:      "./data",
		RPCPort:      8545,
		P2PPort:      30303,
		Regime:       core.RegimePoW,
		MaxBlockTxs:  500,
		PoW:          &PoWConfig{DifficultyPrefix: "00000"},
		KeystorePath: "./data/keystore.json",
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if c.RPCPort == c.P2PPort {
		return fmt.Errorf("rpc_port and p2p_port must not be the same (%d)", c.RPCPort)
	}
	switch c.Regime {
	case core.RegimePoW:
		if c.PoW == nil {
			return fmt.Errorf("pow config required for regime pow")
		}
	case core.RegimePoS:
		if c.PoS == nil {
			return fmt.Errorf("pos config required for regime pos")
		}
	case core.RegimePoA:
		if c.PoA == nil {
			return fmt.Errorf("poa config required for regime poa")
		}
		if len(c.PoA.MinersList) == 0 {
			return fmt.Errorf("poa.miners_list must not be empty")
		}
	default:
		return fmt.Errorf("regime must be one of pow, pos, poa; got %q", c.Regime)
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
