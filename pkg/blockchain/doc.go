// Package blockchain connects the oracle node to an EVM chain.
//
// The node keeps its own state off-chain, but stakes, task fees and escrow
// withdrawals are real FET transfers. This package provides the token.Token
// implementation that performs them.
//
// # Connecting
//
//	evm, err := blockchain.InitEvm(ctx, "https://sepolia.infura.io/v3/<key>")
//	if err != nil {
//		return err
//	}
//	defer evm.Close()
//
// The FET token address is either configured explicitly or resolved from
// the MultiPartyEscrow deployment recorded in snet-ecosystem-contracts:
//
//	addr, err := evm.ResolveTokenAddress(ctx, "11155111")
//
// # Token adapter
//
// ERC20 binds the token ABI at runtime with bind.NewBoundContract. Reads
// (balanceOf, allowance) are plain eth_calls. Writes (approve, transfer,
// transferFrom) are signed with the key registered for the acting account
// via AddSigner and block until the transaction is mined:
//
//	fet, _ := blockchain.NewERC20(evm, addr)
//	custody, _ := fet.AddSigner(custodyKey)
//
// The node only needs the custody key: custody pulls stakes and fees with
// transferFrom and pays withdrawals with transfer.
//
// # Units
//
// FET has 18 decimals. ToWei and FromWei convert between human amounts
// ("0.01") and the integer amounts used everywhere else.
package blockchain
