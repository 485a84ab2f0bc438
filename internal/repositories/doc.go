// Package repositories implements SQL persistence for all domain entities.
//
// Queries are written in the dialect shared by Postgres (lib/pq, production) and SQLite (mattn/go-sqlite3, development and tests):
// numbered $N placeholders, TEXT uuid keys, no RETURNING.
//
// Key Implementations:
//   - [UserRepository] : Account persistence with username, email and Google subject lookups and soft deletes
//   - [AudioRepository] : Audio metadata, including the transactional original/transformed pair insert
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function increments per-table counters inside the caller's transaction.
package repositories
