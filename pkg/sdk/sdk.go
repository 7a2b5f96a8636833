package sdk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/big"

	"github.com/dria-oracle/llm-oracle-go/pkg/blockchain"
	"github.com/dria-oracle/llm-oracle-go/pkg/config"
	"github.com/dria-oracle/llm-oracle-go/pkg/coordinator"
	"github.com/dria-oracle/llm-oracle-go/pkg/escrow"
	"github.com/dria-oracle/llm-oracle-go/pkg/events"
	"github.com/dria-oracle/llm-oracle-go/pkg/grpc"
	"github.com/dria-oracle/llm-oracle-go/pkg/metrics"
	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"github.com/dria-oracle/llm-oracle-go/pkg/registry"
	"github.com/dria-oracle/llm-oracle-go/pkg/state"
	"github.com/dria-oracle/llm-oracle-go/pkg/storage"
	"github.com/dria-oracle/llm-oracle-go/pkg/token"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OracleSDK is the public interface of an assembled oracle node.
type OracleSDK interface {
	// Registry manages generator and validator membership.
	Registry() *registry.Registry
	// Coordinator runs the task lifecycle.
	Coordinator() *coordinator.Coordinator
	// Escrow holds redeemable credit and processes withdrawals.
	Escrow() *escrow.Ledger
	// Close releases resources associated with the SDK instance.
	Close()
}

// init configures a default global zap logger for the SDK. Applications may
// replace it with zap.ReplaceGlobals(...) if they need custom logging.
func init() {
	c := zap.Config{
		Level:            zap.NewAtomicLevelAt(zap.InfoLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := c.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
}

// Core is the concrete SDK implementation. It embeds the runtime
// configuration.
type Core struct {
	*config.Config

	evm     *blockchain.EVMClient
	token   token.Token
	custody common.Address
	store   *state.Store

	registry    *registry.Registry
	coordinator *coordinator.Coordinator
	escrow      *escrow.Ledger
	archiver    *storage.Archiver
}

var _ OracleSDK = (*Core)(nil)

// NewSDK validates cfg, sets up the configured token backend and opens the
// node state.
func NewSDK(ctx context.Context, cfg *config.Config) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		zap.L().Error("Invalid config", zap.Error(err))
		return nil, err
	}

	switch cfg.TokenBackend {
	case config.TokenEVM:
		return newEVMCore(ctx, cfg)
	default:
		custody := cfg.OwnerAddress()
		if cfg.Custody != "" {
			custody = common.HexToAddress(cfg.Custody)
		}
		return NewWithToken(cfg, token.NewMemory(), custody)
	}
}

func newEVMCore(ctx context.Context, cfg *config.Config) (*Core, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Dial)
	defer cancel()
	evm, err := blockchain.InitEvm(dialCtx, cfg.RPCAddr)
	if err != nil {
		return nil, fmt.Errorf("init ethereum client: %w", err)
	}

	custody, pk, err := blockchain.ParsePrivateKeyECDSA(cfg.PrivateKey)
	if err != nil {
		evm.Close()
		return nil, fmt.Errorf("parse custody key: %w", err)
	}

	tokenAddr := common.HexToAddress(cfg.TokenAddress)
	if cfg.TokenAddress == "" {
		readCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.ChainRead)
		tokenAddr, err = evm.ResolveTokenAddress(readCtx, cfg.Network.ChainID)
		cancel()
		if err != nil {
			evm.Close()
			return nil, fmt.Errorf("resolve token address: %w", err)
		}
	}

	erc20, err := blockchain.NewERC20(evm, tokenAddr)
	if err != nil {
		evm.Close()
		return nil, err
	}
	erc20.MaxBackoff = cfg.Timeouts.ReceiptWait
	if _, err := erc20.AddSigner(pk); err != nil {
		evm.Close()
		return nil, err
	}

	core, err := NewWithToken(cfg, erc20, custody)
	if err != nil {
		evm.Close()
		return nil, err
	}
	core.evm = evm
	zap.L().Info("EVM token backend ready",
		zap.Stringer("token", tokenAddr),
		zap.Stringer("custody", custody),
		zap.Stringer("chainID", evm.ChainID))
	return core, nil
}

// NewWithToken assembles a node over an existing token. cfg must already be
// validated. The state is loaded from cfg.StatePath when the file exists and
// migrated to the current version by the configured owner.
func NewWithToken(cfg *config.Config, tok token.Token, custody common.Address) (*Core, error) {
	st, err := openState(cfg, custody)
	if err != nil {
		return nil, err
	}
	store := state.NewStore(st, events.NewBus())
	if store.Version() < state.CurrentVersion {
		if err := store.Migrate(cfg.OwnerAddress(), state.CurrentVersion); err != nil {
			return nil, fmt.Errorf("migrate state: %w", err)
		}
	}

	c := &Core{
		Config:      cfg,
		token:       tok,
		custody:     st.Custody,
		store:       store,
		registry:    registry.New(store, tok),
		coordinator: coordinator.New(store, tok),
		escrow:      escrow.New(store, tok),
	}

	pending := 0
	_ = store.View(func(st *state.State) error {
		for _, t := range st.Tasks {
			if t.Status != model.StatusCompleted {
				pending++
			}
		}
		return nil
	})
	metrics.TasksPending.Set(float64(pending))

	if cfg.ArchiveTasks {
		client, err := storage.NewStorage(cfg.IpfsURL, cfg.LighthouseURL)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		c.archiver = storage.NewArchiver(client, c.coordinator)
	}

	if cfg.Debug {
		zap.L().Debug("oracle node assembled",
			zap.Stringer("owner", store.Owner()),
			zap.Stringer("custody", c.custody),
			zap.Uint64("stateVersion", store.Version()))
	}
	return c, nil
}

// openState loads the snapshot at cfg.StatePath, or builds a fresh state
// from cfg when there is none.
func openState(cfg *config.Config, custody common.Address) (*state.State, error) {
	if cfg.StatePath != "" {
		st, err := state.LoadFile(cfg.StatePath)
		switch {
		case err == nil:
			zap.L().Info("state loaded", zap.String("path", cfg.StatePath), zap.Uint64("version", st.Version))
			return st, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("load state: %w", err)
		}
	}

	stakes, err := cfg.StakeAmounts()
	if err != nil {
		return nil, err
	}
	fees, err := cfg.FeeRates()
	if err != nil {
		return nil, err
	}
	st := state.New(cfg.OwnerAddress(), custody, cfg.TreasuryAddress())
	st.Registry.Stakes = stakes
	st.Coordinator.Fees = fees
	st.Coordinator.Bounds = cfg.StateBounds()
	st.Coordinator.DeviationFactor = cfg.DeviationFactor
	return st, nil
}

// Registry returns the oracle registry.
func (c *Core) Registry() *registry.Registry { return c.registry }

// Coordinator returns the task coordinator.
func (c *Core) Coordinator() *coordinator.Coordinator { return c.coordinator }

// Escrow returns the escrow ledger.
func (c *Core) Escrow() *escrow.Ledger { return c.escrow }

// Store returns the underlying state store.
func (c *Core) Store() *state.Store { return c.store }

// Bus returns the event bus every state change is published on.
func (c *Core) Bus() *events.Bus { return c.store.Bus() }

// Token returns the token backend.
func (c *Core) Token() token.Token { return c.token }

// Custody returns the account holding stakes and escrowed funds.
func (c *Core) Custody() common.Address { return c.custody }

// Archiver returns the task archiver, or nil when archiving is disabled.
func (c *Core) Archiver() *storage.Archiver { return c.archiver }

// GetEvm returns the EVM client, or nil for the in-memory token backend.
func (c *Core) GetEvm() *blockchain.EVMClient { return c.evm }

// QueryServer returns a gRPC query server reading from this node.
func (c *Core) QueryServer() (*grpc.Server, error) {
	return grpc.NewServer(c.coordinator, c.registry)
}

// Forward runs the configured event consumers until ctx is cancelled: the
// RabbitMQ publisher when AMQPURL is set and the archiver when archiving is
// enabled. Programs that drive the registry and coordinator run it alongside
// their own work; with neither consumer configured it just waits for ctx.
func (c *Core) Forward(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if c.AMQPURL != "" {
		pub, err := events.NewPublisher(c.AMQPURL, c.AMQPExchange)
		if err != nil {
			return fmt.Errorf("amqp publisher: %w", err)
		}
		defer func() { _ = pub.Close() }()
		g.Go(func() error { return pub.Run(ctx, c.Bus()) })
	}
	if c.archiver != nil {
		g.Go(func() error { return c.archiver.Run(ctx, c.Bus()) })
	}
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})
	return g.Wait()
}

// Fund mints amount to account on the in-memory token backend.
func (c *Core) Fund(account common.Address, amount *big.Int) error {
	mem, ok := c.token.(*token.Memory)
	if !ok {
		return errors.New("funding is only available with the memory token backend")
	}
	return mem.Mint(account, amount)
}

// Save writes the state snapshot to cfg.StatePath.
func (c *Core) Save() error {
	if c.StatePath == "" {
		return nil
	}
	if err := c.store.SaveFile(c.StatePath); err != nil {
		zap.L().Error("failed to save state", zap.String("path", c.StatePath), zap.Error(err))
		return err
	}
	return nil
}

// Close shuts down underlying network clients (e.g., Ethereum RPC).
func (c *Core) Close() {
	if c.evm != nil {
		c.evm.Close()
	}
}
