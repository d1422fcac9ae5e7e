// Package repositorycache keeps the pager's caches in step with writes made through
// go-repository-bun repositories.
//
// # Overview
//
// InvalidatingRepository decorates an existing repository. Reads are delegated
// unchanged; every successful write emits an invalidation event for the repository's
// entity type, so cached pages and counts of that entity are evicted before the write
// call returns. Failed writes emit nothing.
//
// # Basic Usage
//
//	base := myrepo.New(db) // Your existing go-repository-bun repository
//	engine, _ := pager.New(executor, pager.DefaultConfig())
//
//	initiatives := repositorycache.New(base, "initiative", engine.Bus(),
//		repositorycache.WithRelated("initiative_area"))
//
//	// Use exactly like your base repository
//	created, err := initiatives.Create(ctx, record)
//
// # Events
//
//   - Create, CreateMany, GetOrCreate: created
//   - Update, UpdateMany, Upsert, UpsertMany: updated
//   - Delete, DeleteMany, DeleteWhere, ForceDelete: deleted
//
// Single-record writes carry the record's ID field as the event's entity ID. Bulk and
// criteria writes carry none. Entity types named with WithRelated receive an updated
// event on every write.
//
// # Transactions
//
// The Tx variants notify as soon as the statement succeeds, before the transaction
// commits. A page read between the two may cache pre-commit rows; pair transactional
// writes with a database notification source (pgnotify) or invalidate again after
// commit. Raw and RawTx never notify.
package repositorycache
