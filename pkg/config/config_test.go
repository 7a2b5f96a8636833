package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const owner = "0x00000000000000000000000000000000000000a1"

// TestConfigValidate_AppliesDefaults verifies that Validate fills every
// implicit default when only the owner is set.
func TestConfigValidate_AppliesDefaults(t *testing.T) {
	cfg := &Config{Owner: owner}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}

	if cfg.TokenBackend != TokenMemory {
		t.Fatalf("unexpected TokenBackend: %s", cfg.TokenBackend)
	}
	if cfg.LighthouseURL != DefaultLighthouseURL {
		t.Fatalf("unexpected LighthouseURL: %s", cfg.LighthouseURL)
	}
	if cfg.IpfsURL != DefaultIpfsURL {
		t.Fatalf("unexpected IpfsURL: %s", cfg.IpfsURL)
	}
	if cfg.Network != Sepolia {
		t.Fatalf("expected default Sepolia network, got %#v", cfg.Network)
	}
	if cfg.Treasury != owner {
		t.Fatalf("treasury should default to owner, got %s", cfg.Treasury)
	}
	if cfg.DeviationFactor != 1 {
		t.Fatalf("deviation factor = %d, want 1", cfg.DeviationFactor)
	}
	if cfg.GRPCAddr != DefaultGRPCAddr || cfg.MetricsAddr != DefaultMetricsAddr {
		t.Fatalf("unexpected listen addresses: %s %s", cfg.GRPCAddr, cfg.MetricsAddr)
	}
	if cfg.Timeouts.Shutdown != 10*time.Second {
		t.Fatalf("timeouts not defaulted: %+v", cfg.Timeouts)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing owner", Config{}},
		{"bad owner", Config{Owner: "alice"}},
		{"bad treasury", Config{Owner: owner, Treasury: "0x12"}},
		{"unknown backend", Config{Owner: owner, TokenBackend: "paper"}},
		{"evm without rpc", Config{Owner: owner, TokenBackend: TokenEVM, PrivateKey: "01"}},
		{"evm without key", Config{Owner: owner, TokenBackend: TokenEVM, RPCAddr: "ws://localhost:8546"}},
		{"negative stake", Config{Owner: owner, GeneratorStake: "-1"}},
		{"garbage fee", Config{Owner: owner, PlatformFee: "ten"}},
		{"inverted bounds", Config{Owner: owner, Bounds: Bounds{MinDifficulty: 5, MaxDifficulty: 2, MaxNumGenerations: 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestConfig_Amounts(t *testing.T) {
	cfg := &Config{
		Owner:          owner,
		GeneratorStake: "0.5",
		ValidatorStake: "1",
		PlatformFee:    "0.000000000000000005",
		GenerationFee:  "0.0000000000000001",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	stakes, err := cfg.StakeAmounts()
	if err != nil {
		t.Fatalf("StakeAmounts: %v", err)
	}
	if stakes.Generator.String() != "500000000000000000" || stakes.Validator.String() != "1000000000000000000" {
		t.Fatalf("unexpected stakes: %s %s", stakes.Generator, stakes.Validator)
	}

	fees, err := cfg.FeeRates()
	if err != nil {
		t.Fatalf("FeeRates: %v", err)
	}
	if fees.Platform.Int64() != 5 || fees.Generation.Int64() != 100 || fees.Validation.Sign() != 0 {
		t.Fatalf("unexpected fees: %+v", fees)
	}
}

func TestConfig_StateBounds(t *testing.T) {
	cfg := &Config{Owner: owner}
	if got := cfg.StateBounds(); got.Max.NumGenerations != 10 || got.Min.Difficulty != 1 {
		t.Fatalf("expected default bounds, got %+v", got)
	}

	cfg.Bounds = Bounds{MinDifficulty: 2, MaxDifficulty: 4, MinNumGenerations: 1, MaxNumGenerations: 3, MaxNumValidations: 2}
	got := cfg.StateBounds()
	if got.Min.Difficulty != 2 || got.Max.Difficulty != 4 || got.Max.NumGenerations != 3 || got.Max.NumValidations != 2 {
		t.Fatalf("unexpected bounds: %+v", got)
	}
}

func TestLoad_FileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oracle.yaml")
	body := []byte(`owner: "0x00000000000000000000000000000000000000a1"
generator_stake: "2"
grpc_addr: ":7100"
bounds:
  min_difficulty: 1
  max_difficulty: 8
  min_num_generations: 1
  max_num_generations: 5
  max_num_validations: 5
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ORACLE_GRPC_ADDR", ":7200")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":7200" {
		t.Fatalf("env override not applied: %s", cfg.GRPCAddr)
	}
	if cfg.GeneratorStake != "2" || cfg.Bounds.MaxDifficulty != 8 {
		t.Fatalf("file values not loaded: %+v", cfg)
	}
	if cfg.OwnerAddress() != common.HexToAddress(owner) {
		t.Fatalf("owner = %s", cfg.OwnerAddress().Hex())
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("ORACLE_OWNER", owner)
	t.Setenv("ORACLE_TOKEN_BACKEND", TokenMemory)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OwnerAddress() != cfg.TreasuryAddress() {
		t.Fatal("treasury should default to owner")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// TestTimeouts_WithDefaults checks that zero fields are filled and explicit
// values are kept.
func TestTimeouts_WithDefaults(t *testing.T) {
	got := Timeouts{Dial: time.Second}.WithDefaults()
	if got.Dial != time.Second {
		t.Fatalf("explicit Dial overwritten: %v", got.Dial)
	}
	if got.ChainRead != 12*time.Second || got.Archive != 30*time.Second || got.Snapshot != time.Minute {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}
