// Package crawler implements the date-driven harvesting engine: the retrying
// fetcher, the per-period index cache, the checkpoint store, the idempotent
// document sink, the pagination pipeline, and the orchestrator that walks a
// date range and ties them together.
//
// The package depends only on the abstract Transport and BlobStore
// boundaries declared in interfaces.go. Concrete HTTP, parsing, and storage
// adapters live in sibling packages.
package crawler
