package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dria-oracle/llm-oracle-go/pkg/blockchain"
	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"github.com/dria-oracle/llm-oracle-go/pkg/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ilyakaznacheev/cleanenv"
)

// Token backends.
const (
	// TokenMemory keeps balances in process. Used for local runs and tests.
	TokenMemory = "memory"
	// TokenEVM talks to an ERC-20 contract over RPCAddr.
	TokenEVM = "evm"
)

const (
	DefaultLighthouseURL = "https://gateway.lighthouse.storage/ipfs/"
	DefaultIpfsURL       = "http://127.0.0.1:5001"
	DefaultGRPCAddr      = ":7000"
	DefaultMetricsAddr   = ":9090"
)

// Config holds all settings required to start an oracle node.
// Use Validate to fill implicit defaults and to check for required fields.
type Config struct {
	// Network selects the target chain (chain ID and human-readable name).
	Network Network `json:"network" yaml:"network"`
	// TokenBackend is TokenMemory or TokenEVM. Default: memory.
	TokenBackend string `json:"token_backend" yaml:"token_backend" env:"ORACLE_TOKEN_BACKEND"`
	// RPCAddr is the Ethereum RPC/WS endpoint URL (required for the evm backend).
	RPCAddr string `json:"rpc_addr" yaml:"rpc_addr" env:"ORACLE_RPC_ADDR"`
	// TokenAddress overrides the token address resolved from Network.
	TokenAddress string `json:"token_address" yaml:"token_address" env:"ORACLE_TOKEN_ADDRESS"`
	// PrivateKey is the hex-encoded key of the custody account (evm backend).
	PrivateKey string `json:"private_key" yaml:"private_key" env:"ORACLE_PRIVATE_KEY"`

	// Owner may call the admin setters and migrate state (required).
	Owner string `json:"owner" yaml:"owner" env:"ORACLE_OWNER"`
	// Treasury receives platform fees. Default: Owner.
	Treasury string `json:"treasury" yaml:"treasury" env:"ORACLE_TREASURY"`
	// Custody holds staked and escrowed tokens. With the evm backend it is
	// derived from PrivateKey.
	Custody string `json:"custody" yaml:"custody" env:"ORACLE_CUSTODY"`

	// Stakes and fees are decimal token amounts, e.g. "0.01".
	GeneratorStake  string `json:"generator_stake" yaml:"generator_stake" env:"ORACLE_GENERATOR_STAKE"`
	ValidatorStake  string `json:"validator_stake" yaml:"validator_stake" env:"ORACLE_VALIDATOR_STAKE"`
	PlatformFee     string `json:"platform_fee" yaml:"platform_fee" env:"ORACLE_PLATFORM_FEE"`
	GenerationFee   string `json:"generation_fee" yaml:"generation_fee" env:"ORACLE_GENERATION_FEE"`
	ValidationFee   string `json:"validation_fee" yaml:"validation_fee" env:"ORACLE_VALIDATION_FEE"`
	DeviationFactor uint64 `json:"deviation_factor" yaml:"deviation_factor" env:"ORACLE_DEVIATION_FACTOR"`
	// Bounds limits task parameters. All-zero means state.DefaultBounds.
	Bounds Bounds `json:"bounds" yaml:"bounds"`

	// StatePath is the JSON snapshot file of the node state. Empty disables
	// persistence.
	StatePath string `json:"state_path" yaml:"state_path" env:"ORACLE_STATE_PATH"`
	// AMQPURL enables the RabbitMQ event publisher when set.
	AMQPURL      string `json:"amqp_url" yaml:"amqp_url" env:"ORACLE_AMQP_URL"`
	AMQPExchange string `json:"amqp_exchange" yaml:"amqp_exchange" env:"ORACLE_AMQP_EXCHANGE"`
	// IpfsURL is the Kubo RPC endpoint completed tasks are archived to.
	// Archiving is disabled when ArchiveTasks is false.
	IpfsURL       string `json:"ipfs_url" yaml:"ipfs_url" env:"ORACLE_IPFS_URL"`
	LighthouseURL string `json:"lighthouse_url" yaml:"lighthouse_url" env:"ORACLE_LIGHTHOUSE_URL"`
	ArchiveTasks  bool   `json:"archive_tasks" yaml:"archive_tasks" env:"ORACLE_ARCHIVE_TASKS"`

	GRPCAddr    string `json:"grpc_addr" yaml:"grpc_addr" env:"ORACLE_GRPC_ADDR"`
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr" env:"ORACLE_METRICS_ADDR"`

	// Debug enables verbose logging.
	Debug bool `json:"debug" yaml:"debug" env:"ORACLE_DEBUG"`
	// LogLevel is one of debug, info, warn, error. Debug forces debug.
	LogLevel string `json:"log_level" yaml:"log_level" env:"ORACLE_LOG_LEVEL"`
	// LogEncoding is json or console.
	LogEncoding string `json:"log_encoding" yaml:"log_encoding" env:"ORACLE_LOG_ENCODING"`
	// Timeouts configures per-operation timeouts. See Timeouts.WithDefaults for defaults.
	Timeouts Timeouts `json:"timeouts" yaml:"timeouts"`
}

// Network describes a blockchain network (chain ID and name). ChainID is used
// for EIP-155 signing and token address lookup; Name is informational.
type Network struct {
	ChainID string `json:"chain_id" yaml:"chain_id" env:"ORACLE_CHAIN_ID"`
	Name    string `json:"network_name" yaml:"network_name" env:"ORACLE_NETWORK_NAME"`
}

// Sepolia is a predefined Network for Ethereum Sepolia testnet.
var Sepolia = Network{
	ChainID: "11155111",
	Name:    "sepolia",
}

// Main is a predefined Network for Ethereum mainnet.
var Main = Network{
	ChainID: "1",
	Name:    "main",
}

// Bounds are the inclusive task parameter limits.
type Bounds struct {
	MinDifficulty     uint8  `json:"min_difficulty" yaml:"min_difficulty"`
	MaxDifficulty     uint8  `json:"max_difficulty" yaml:"max_difficulty"`
	MinNumGenerations uint64 `json:"min_num_generations" yaml:"min_num_generations"`
	MaxNumGenerations uint64 `json:"max_num_generations" yaml:"max_num_generations"`
	MinNumValidations uint64 `json:"min_num_validations" yaml:"min_num_validations"`
	MaxNumValidations uint64 `json:"max_num_validations" yaml:"max_num_validations"`
}

// Timeouts controls operation deadlines.
// Zero values will be replaced by sane defaults in WithDefaults.
type Timeouts struct {
	Dial        time.Duration `json:"dial" yaml:"dial"`                 // RPC dial/connect
	ChainRead   time.Duration `json:"chain_read" yaml:"chain_read"`     // eth_call, balance etc
	ChainSubmit time.Duration `json:"chain_submit" yaml:"chain_submit"` // send and mine a tx
	ReceiptWait time.Duration `json:"receipt_wait" yaml:"receipt_wait"` // max receipt poll interval
	Archive     time.Duration `json:"archive" yaml:"archive"`           // IPFS upload
	Snapshot    time.Duration `json:"snapshot" yaml:"snapshot"`         // periodic state save
	Shutdown    time.Duration `json:"shutdown" yaml:"shutdown"`         // graceful stop
}

// Load reads the configuration from path (YAML or JSON by extension) with
// environment overrides, or from the environment only when path is empty.
// The result is validated.
func Load(path string) (*Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes the configuration by applying implicit defaults and
// verifies that required fields are present and well formed.
func (c *Config) Validate() error {
	if c.TokenBackend == "" {
		c.TokenBackend = TokenMemory
	}
	if c.LighthouseURL == "" {
		c.LighthouseURL = DefaultLighthouseURL
	}
	if c.IpfsURL == "" {
		c.IpfsURL = DefaultIpfsURL
	}
	if c.Network.ChainID == "" {
		c.Network = Sepolia
	}
	if c.AMQPExchange == "" {
		c.AMQPExchange = "oracle.events"
	}
	if c.GRPCAddr == "" {
		c.GRPCAddr = DefaultGRPCAddr
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = DefaultMetricsAddr
	}
	if c.Debug {
		c.LogLevel = "debug"
	} else if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogEncoding == "" {
		c.LogEncoding = "json"
	}
	if c.DeviationFactor == 0 {
		c.DeviationFactor = 1
	}
	if c.Treasury == "" {
		c.Treasury = c.Owner
	}
	c.Timeouts = c.Timeouts.WithDefaults()

	switch c.TokenBackend {
	case TokenMemory:
	case TokenEVM:
		if c.RPCAddr == "" {
			return errors.New("RPC address is required for the evm token backend")
		}
		if c.PrivateKey == "" {
			return errors.New("custody private key is required for the evm token backend")
		}
	default:
		return fmt.Errorf("unknown token backend %q", c.TokenBackend)
	}

	if c.Owner == "" {
		return errors.New("owner address is required")
	}
	for name, v := range map[string]string{
		"owner":         c.Owner,
		"treasury":      c.Treasury,
		"custody":       c.Custody,
		"token_address": c.TokenAddress,
	} {
		if v != "" && !common.IsHexAddress(v) {
			return fmt.Errorf("invalid %s address %q", name, v)
		}
	}

	if _, err := c.StakeAmounts(); err != nil {
		return err
	}
	if _, err := c.FeeRates(); err != nil {
		return err
	}
	b := c.StateBounds()
	if b.Min.Difficulty > b.Max.Difficulty ||
		b.Min.NumGenerations > b.Max.NumGenerations ||
		b.Min.NumValidations > b.Max.NumValidations {
		return errors.New("bounds: minimum exceeds maximum")
	}
	return nil
}

// OwnerAddress returns the parsed owner account.
func (c *Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Owner)
}

// TreasuryAddress returns the parsed treasury account.
func (c *Config) TreasuryAddress() common.Address {
	return common.HexToAddress(c.Treasury)
}

// StakeAmounts converts the configured stakes to the token's smallest unit.
func (c *Config) StakeAmounts() (model.StakeAmounts, error) {
	gen, err := amount("generator_stake", c.GeneratorStake)
	if err != nil {
		return model.StakeAmounts{}, err
	}
	val, err := amount("validator_stake", c.ValidatorStake)
	if err != nil {
		return model.StakeAmounts{}, err
	}
	return model.StakeAmounts{Generator: gen, Validator: val}, nil
}

// FeeRates converts the configured fees to the token's smallest unit.
func (c *Config) FeeRates() (model.FeeRates, error) {
	platform, err := amount("platform_fee", c.PlatformFee)
	if err != nil {
		return model.FeeRates{}, err
	}
	gen, err := amount("generation_fee", c.GenerationFee)
	if err != nil {
		return model.FeeRates{}, err
	}
	val, err := amount("validation_fee", c.ValidationFee)
	if err != nil {
		return model.FeeRates{}, err
	}
	return model.FeeRates{Platform: platform, Generation: gen, Validation: val}, nil
}

// StateBounds returns the configured bounds, or state.DefaultBounds when
// none are set.
func (c *Config) StateBounds() state.Bounds {
	if c.Bounds == (Bounds{}) {
		return state.DefaultBounds()
	}
	return state.Bounds{
		Min: model.TaskParameters{
			Difficulty:     c.Bounds.MinDifficulty,
			NumGenerations: c.Bounds.MinNumGenerations,
			NumValidations: c.Bounds.MinNumValidations,
		},
		Max: model.TaskParameters{
			Difficulty:     c.Bounds.MaxDifficulty,
			NumGenerations: c.Bounds.MaxNumGenerations,
			NumValidations: c.Bounds.MaxNumValidations,
		},
	}
}

func amount(name, v string) (*big.Int, error) {
	if strings.TrimSpace(v) == "" {
		return new(big.Int), nil
	}
	wei, err := blockchain.ToWei(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return wei, nil
}

// WithDefaults returns a copy of t with zero values replaced by defaults:
//
//	Dial:        5s
//	ChainRead:   12s
//	ChainSubmit: 90s
//	ReceiptWait: 30s
//	Archive:     30s
//	Snapshot:    1m
//	Shutdown:    10s
func (t Timeouts) WithDefaults() Timeouts {
	tt := t
	if tt.Dial == 0 {
		tt.Dial = 5 * time.Second
	}
	if tt.ChainRead == 0 {
		tt.ChainRead = 12 * time.Second
	}
	if tt.ChainSubmit == 0 {
		tt.ChainSubmit = 90 * time.Second
	}
	if tt.ReceiptWait == 0 {
		tt.ReceiptWait = 30 * time.Second
	}
	if tt.Archive == 0 {
		tt.Archive = 30 * time.Second
	}
	if tt.Snapshot == 0 {
		tt.Snapshot = time.Minute
	}
	if tt.Shutdown == 0 {
		tt.Shutdown = 10 * time.Second
	}
	return tt
}
