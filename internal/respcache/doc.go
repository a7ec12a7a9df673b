// Package respcache keeps the application shell and previously fetched
// resources available without connectivity.
//
// Cache sits between a caller and the network. Intercept serves a stored
// snapshot whenever one exists for the request identity (cache-first) and
// otherwise fetches live, storing eligible responses in the background so
// the caller never waits on the cache write. Network failures propagate
// unchanged; the cache never invents a response.
//
// Entries are grouped by namespace. A deploy that changes the namespace
// supersedes the previous cache wholesale: Activate prunes every other
// namespace. Individual entries are never invalidated.
//
// Snapshots persist in SQLite (SQLiteBackend) with headers encoded as
// deterministic CBOR and bodies compressed with zstd. MemoryBackend keeps
// snapshots in process for tests.
package respcache
