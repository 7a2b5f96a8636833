// Package pow implements the proof-of-work gate oracles must pass to respond
// to or validate a task. The work is bound to the task, its input, the
// requester and the responding oracle, so a nonce cannot be replayed by
// another account or on another task. It rate-limits participation; it does
// not attest anything about the output.
package pow

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MaxDifficulty is the largest meaningful difficulty for a 256-bit digest.
const MaxDifficulty = 255

// ErrNonceSpaceExhausted is returned by Mine when no nonce below the limit
// satisfies the target.
var ErrNonceSpaceExhausted = errors.New("pow: nonce search limit reached")

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Message builds the tightly packed preimage
//
//	uint256(taskID) || input || requester || responder || uint256(nonce)
//
// matching Solidity's abi.encodePacked for the same argument types.
func Message(taskID uint64, input []byte, requester, responder common.Address, nonce *big.Int) []byte {
	return bytes.Join([][]byte{
		common.BigToHash(new(big.Int).SetUint64(taskID)).Bytes(),
		input,
		requester.Bytes(),
		responder.Bytes(),
		common.BigToHash(nonce).Bytes(),
	}, nil)
}

// Digest returns keccak256 of Message.
func Digest(taskID uint64, input []byte, requester, responder common.Address, nonce *big.Int) common.Hash {
	return crypto.Keccak256Hash(Message(taskID, input, requester, responder, nonce))
}

// Target returns (2^256 - 1) >> difficulty. A digest is accepted when it is
// strictly below the target.
func Target(difficulty uint8) *big.Int {
	return new(big.Int).Rsh(maxUint256, uint(difficulty))
}

// Verify reports whether nonce satisfies the target for difficulty.
func Verify(difficulty uint8, taskID uint64, input []byte, requester, responder common.Address, nonce *big.Int) bool {
	if nonce == nil || nonce.Sign() < 0 || nonce.BitLen() > 256 {
		return false
	}
	digest := Digest(taskID, input, requester, responder, nonce)
	return digest.Big().Cmp(Target(difficulty)) < 0
}

// Mine searches nonces 0, 1, 2, ... up to limit (exclusive) and returns the
// first one that verifies. A zero limit means no bound.
func Mine(difficulty uint8, taskID uint64, input []byte, requester, responder common.Address, limit uint64) (*big.Int, error) {
	target := Target(difficulty)
	nonce := new(big.Int)
	one := big.NewInt(1)
	for i := uint64(0); limit == 0 || i < limit; i++ {
		if Digest(taskID, input, requester, responder, nonce).Big().Cmp(target) < 0 {
			return nonce, nil
		}
		nonce.Add(nonce, one)
	}
	return nil, ErrNonceSpaceExhausted
}
