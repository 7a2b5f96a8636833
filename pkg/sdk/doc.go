// Package sdk wires an oracle node together from a Config: the state store,
// the token backend (in-memory or ERC-20 over go-ethereum), the registry,
// the coordinator and the escrow ledger. It also hands out the optional
// task archiver and the gRPC query server.
//
// # Quick Start
//
//	cfg := &config.Config{
//		Owner:          "0x...",
//		GeneratorStake: "0.01",
//		ValidatorStake: "0.01",
//		GenerationFee:  "0.001",
//		ValidationFee:  "0.0001",
//	}
//	core, err := sdk.NewSDK(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer core.Close()
//
//	// oracles approve the custody account and register
//	err = core.Registry().Register(ctx, oracle, model.Generator)
//
//	// requesters approve the task fee and submit
//	id, err := core.Coordinator().Request(ctx, requester, model.ProtocolTag("my-app/1.0"), input, models, params)
//
//	// participants pull their credit
//	paid, err := core.Escrow().WithdrawAll(ctx, oracle)
//
// # State
//
// When cfg.StatePath names an existing snapshot it is loaded and, if older
// than state.CurrentVersion, migrated by the configured owner. Otherwise a
// fresh state is built from the configured stakes, fees, bounds and
// deviation factor. Save writes the snapshot back.
//
// # Token Backends
//
// The memory backend keeps balances in process; Fund mints to an account
// and is meant for local runs and tests. The evm backend dials
// cfg.RPCAddr, resolves the token address for the network (unless
// cfg.TokenAddress is set) and signs custody transfers with cfg.PrivateKey.
//
// A chain transfer that was sent but never confirmed is not rolled back.
// It is listed by Escrow().Pending() until the owner checks the chain and
// calls Escrow().Resolve.
//
// # Events
//
// Every state change is published on Bus. Forward runs the RabbitMQ
// publisher and the task archiver against it:
//
//	go func() { _ = core.Forward(ctx) }()
//
// # Logging
//
// The package installs a console zap logger as the global logger in init.
// Applications may replace it with zap.ReplaceGlobals.
//
// # Health
//
// HeartbeatHandler serves a JSON liveness summary; NewHealthcheck checks a
// remote node over the gRPC health service or that HTTP endpoint.
package sdk
