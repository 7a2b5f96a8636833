package blockchain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TokenDecimals is the number of decimals of the FET token.
const TokenDecimals int32 = 18

// GetAddressFromPrivateKeyECDSA derives the Ethereum address from the given
// ECDSA private key. It returns nil if the key is nil.
func GetAddressFromPrivateKeyECDSA(privateKeyECDSA *ecdsa.PrivateKey) *common.Address {
	if privateKeyECDSA == nil {
		return nil
	}
	publicKeyECDSA, ok := privateKeyECDSA.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil
	}
	addr := crypto.PubkeyToAddress(*publicKeyECDSA)
	return &addr
}

// ParsePrivateKeyECDSA parses a hex-encoded ECDSA private key (with or
// without 0x prefix) and returns the corresponding address and key.
func ParsePrivateKeyECDSA(privateKey string) (common.Address, *ecdsa.PrivateKey, error) {
	privateKeyECDSA, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return common.Address{}, nil, err
	}
	addr := GetAddressFromPrivateKeyECDSA(privateKeyECDSA)
	if addr == nil {
		return common.Address{}, nil, errors.New("failed to get public key")
	}
	return *addr, privateKeyECDSA, nil
}

// ToWei converts a token amount to its smallest unit (10^TokenDecimals).
//
// Supported input types for iamount: string, float64, int64, decimal.Decimal,
// *decimal.Decimal. Fractions below one wei are truncated; negative amounts
// are rejected.
func ToWei(iamount any) (*big.Int, error) {
	var amount decimal.Decimal
	switch v := iamount.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			zap.L().Error("Failed to convert string to decimal", zap.Error(err))
			return nil, err
		}
		amount = d
	case float64:
		amount = decimal.NewFromFloat(v)
	case int64:
		amount = decimal.NewFromInt(v)
	case decimal.Decimal:
		amount = v
	case *decimal.Decimal:
		amount = *v
	default:
		return nil, fmt.Errorf("unsupported amount type %T", iamount)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", amount)
	}
	return amount.Shift(TokenDecimals).BigInt(), nil
}

// FromWei converts an amount in the smallest unit to tokens.
//
// Supported input types for ivalue: string, *big.Int, int. Any other type
// results in decimal.Zero and logs an error.
func FromWei(ivalue any) decimal.Decimal {
	value := new(big.Int)
	switch v := ivalue.(type) {
	case string:
		if _, ok := value.SetString(v, 10); !ok {
			zap.L().Error("Failed to parse integer amount", zap.String("value", v))
			return decimal.Zero
		}
	case *big.Int:
		if v != nil {
			value.Set(v)
		}
	case int:
		value.SetInt64(int64(v))
	default:
		zap.L().Error("Unsupported type")
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -TokenDecimals)
}
