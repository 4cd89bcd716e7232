package switchcoordinator

import "context"

// RetrievalSink is the interface of the out-of-scope vector retrieval
// store. Nothing in this repository implements or calls it, tests
// included; restore_chunks returns documents to the caller, who owns
// re-ingestion.
type RetrievalSink interface {
	Reingest(ctx context.Context, documents []map[string]any) (count int, err error)
}
