// Package store persists conversation history between identity pairs.
//
// # Overview
//
// A conversation is the append-only message sequence between two identities.
// Conversations are addressed by a canonical key: the pair sorted
// lexicographically and joined with "_", so History(a, b) and History(b, a)
// see the same messages.
//
// # Conversations
//
// Conversations is the single owner of all history. Other components never
// touch the underlying map; they go through:
//
//   - Append(sender, receiver, text): validate, assign ID, persist
//   - History(a, b): full ordered conversation, empty when none exists
//   - MarkRead(owner, counterpart, id): flip the read flag once
//
// # Persistence
//
// Durability goes through the Snapshot interface (LoadAll/SaveAll). The
// default backend is FileSnapshot, which rewrites one JSON document on every
// mutation. Saves are synchronous within the mutating call but never hold the
// in-memory lock across file I/O: the map is copied first, then written.
//
// Persistence is best-effort. A failed save is logged and the in-memory
// mutation is kept, accepting an inconsistency window until the next
// successful save or process restart.
package store
