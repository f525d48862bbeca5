// Package storage synthesizes the per-type persistence and hydration logic
// of documents.
//
// A DocumentStorage is built once per document type by the Provider, which
// ensures the type's table on first use. It owns:
//
//   - the upsert, delete and load commands, rendered at build time
//   - Resolve and ResolveContext, which turn a row into a document
//   - id assignment: UUIDv7 for uuid ids, HiLo blocks for integer ids
//   - member writers for the id and version members
//
// # Hierarchies
//
// A hierarchy stores all of its types in one table. Resolve reads the
// mt_doc_type discriminator, looks the concrete type up in the mapping's
// dispatch table and only then decodes the payload as that type.
//
// # Writers
//
// Writers are synthesized once per (type, member) and cached in a
// WriterCache shared by all storages of a Provider:
//
//	exported field         direct assignment
//	unexported field       write through the field offset
//	X() with SetX(v)       setter call
//	X() without setter     backing field x
//
// Anything else fails with INVALID_MEMBER_KIND.
package storage
