// Package storage reads and writes blobs on decentralized storage: IPFS via
// a Kubo HTTP API client, and Filecoin content via the Lighthouse gateway.
//
// The oracle uses it to archive completed tasks. Once a task finishes, its
// record (task, generations and validations) is serialized to JSON and
// added to IPFS; the returned ipfs:// URI can later be read back through
// either backend.
//
// # Storage Client
//
//	client, err := storage.NewStorage(
//		"http://localhost:5001",
//		"https://gateway.lighthouse.storage/ipfs/",
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	uri, err := client.UploadJSON(ctx, record)   // ipfs://bafk...
//	data, err := client.ReadFile(ctx, uri)
//
// URIs prefixed with filecoin:// are fetched through the Lighthouse gateway;
// anything else is treated as an IPFS CID.
//
// # Content Verification
//
// Uploads are added as raw-leaf CIDv1 blobs. When content is fetched for a
// raw CID, its multihash is recomputed and compared with the CID; a
// mismatch yields ErrContentMismatch.
//
// # Archiver
//
// Archiver subscribes to the event bus and uploads every task that reaches
// the Completed status:
//
//	archiver := storage.NewArchiver(client, coordinator)
//	go archiver.Run(ctx, store.Bus())
//
//	uri, ok := archiver.URI(taskID)
//	rec, err := archiver.Load(ctx, uri)
//
// Upload failures are logged and do not affect the coordinator.
package storage
