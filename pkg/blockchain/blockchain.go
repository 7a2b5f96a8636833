package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	contracts "github.com/singnet/snet-ecosystem-contracts"
	"go.uber.org/zap"
)

// EVMClient holds a connected ethclient.Client and the chain it talks to.
type EVMClient struct {
	Client  *ethclient.Client
	ChainID *big.Int
}

// networks mirrors the JSON payload produced by snet-ecosystem-contracts
// (network id → contract address).
type networks map[string]struct {
	Address string `json:"address"`
}

// InitEvm dials endpoint and reads the chain id.
func InitEvm(ctx context.Context, endpoint string) (*EVMClient, error) {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		zap.L().Error("Failed to ethdial", zap.Error(err))
		return nil, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		zap.L().Error("failed to get chain ID", zap.Error(err))
		return nil, err
	}
	return &EVMClient{Client: client, ChainID: chainID}, nil
}

// Close releases the underlying RPC connection.
func (evm *EVMClient) Close() {
	if evm.Client != nil {
		evm.Client.Close()
	}
}

// TokenABI parses the FET token ABI bundled with snet-ecosystem-contracts.
func TokenABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(string(contracts.GetABIClean(contracts.FetchToken))))
}

// NetworkAddress picks the address deployed on network out of a networks
// document as returned by contracts.GetNetworks.
func NetworkAddress(raw []byte, contract, network string) (common.Address, error) {
	var nets networks
	if err := json.Unmarshal(raw, &nets); err != nil {
		zap.L().Error("Failed to unmarshal", zap.Error(err))
		return common.Address{}, err
	}
	entry, ok := nets[network]
	if !ok || !common.IsHexAddress(entry.Address) {
		return common.Address{}, fmt.Errorf("no %s deployment on network %q", contract, network)
	}
	return common.HexToAddress(entry.Address), nil
}

// ResolveTokenAddress returns the FET token address used by the escrow
// contract deployed on network.
func (evm *EVMClient) ResolveTokenAddress(ctx context.Context, network string) (common.Address, error) {
	mpeAddr, err := NetworkAddress(contracts.GetNetworks(contracts.MultiPartyEscrow), "MultiPartyEscrow", network)
	if err != nil {
		return common.Address{}, err
	}
	mpeABI, err := abi.JSON(strings.NewReader(string(contracts.GetABIClean(contracts.MultiPartyEscrow))))
	if err != nil {
		return common.Address{}, fmt.Errorf("parse escrow ABI: %w", err)
	}
	mpe := bind.NewBoundContract(mpeAddr, mpeABI, evm.Client, evm.Client, evm.Client)

	var out []any
	if err := mpe.Call(&bind.CallOpts{Context: ctx}, &out, "token"); err != nil {
		zap.L().Error("Failed to get token address", zap.Error(err))
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// GetCurrentBlockNumber returns the latest block number.
func (evm *EVMClient) GetCurrentBlockNumber(ctx context.Context) (*big.Int, error) {
	header, err := evm.Client.HeaderByNumber(ctx, nil)
	if err != nil {
		zap.L().Error("failed to get last block number", zap.Error(err))
		return nil, err
	}
	return header.Number, nil
}
