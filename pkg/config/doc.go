// Package config defines the runtime configuration of an oracle node:
// token backend and chain settings, ownership accounts, stake and fee
// amounts, task parameter bounds, event and archive sinks, and listen
// addresses.
//
// # Loading
//
// Load reads a YAML or JSON file and applies environment overrides; with an
// empty path only the environment is read:
//
//	cfg, err := config.Load("oracle.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Every scalar setting has an ORACLE_* variable, e.g. ORACLE_OWNER,
// ORACLE_TOKEN_BACKEND, ORACLE_GENERATOR_STAKE, ORACLE_AMQP_URL.
//
// # Token Backends
//
//	memory - balances kept in process; Custody names the custody account
//	evm    - an ERC-20 contract reached through RPCAddr; the custody account
//	         is derived from PrivateKey and the token address is resolved
//	         from Network unless TokenAddress is set
//
// # Amounts
//
// Stakes and fee rates are decimal token strings ("0.01") converted to the
// token's smallest unit with 18 decimals. Empty amounts are zero:
//
//	stakes, err := cfg.StakeAmounts()
//	fees, err := cfg.FeeRates()
//
// # Validation
//
// Always call Validate() (Load does) to apply defaults and check required
// fields. It will:
//   - default the token backend to memory and the network to Sepolia
//   - default Treasury to Owner and DeviationFactor to 1
//   - fill storage URLs, listen addresses and timeouts
//   - reject a missing owner, malformed addresses, unparsable amounts and
//     inverted bounds
//   - require RPCAddr and PrivateKey for the evm backend
//
// # Timeouts
//
// Zero values are replaced with defaults via WithDefaults():
//
//	cfg.Timeouts = config.Timeouts{
//		ChainSubmit: 2 * time.Minute, // send and mine a token tx
//		Archive:     time.Minute,     // IPFS upload of a completed task
//	}
package config
