// Package grpc serves and calls the oracle's read-only query API without
// generated stubs.
//
// The API is described by the embedded oracle.proto (service
// oracle.v1.OracleQuery). Both sides compile it at runtime with protocompile
// and exchange dynamicpb messages, so the schema is the only artifact to keep
// in sync.
//
// # Server
//
//	srv, err := grpc.NewServer(coordinator, registry)
//	if err != nil {
//		log.Fatal(err)
//	}
//	go srv.Serve(ctx, ":7000")
//
// Serve also registers the standard grpc.health.v1 service and reports
// OracleQuery as SERVING until shutdown. Not-found tasks map to
// codes.NotFound, malformed accounts or kinds to codes.InvalidArgument, and
// best-response queries on unfinished tasks to codes.FailedPrecondition.
//
// # Client
//
//	client, err := grpc.NewQueryClient("http://localhost:7000")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	task, err := client.CallWithMap(ctx, "GetTask", map[string]any{"task_id": 1})
//	raw, err := client.CallWithJSON(ctx, "GetFee", []byte(`{"num_generations": 2}`))
//
// Responses are rendered with proto field names and unpopulated fields
// emitted. Amounts are decimal strings; uint64 fields are JSON strings, as
// protojson renders them.
//
// NewClient accepts extra proto sources, which are compiled together with
// oracle.proto, so the same client can reach other services on the endpoint.
// The endpoint scheme selects transport security: https:// uses TLS, while
// http:// and bare host:port use insecure credentials.
package grpc
