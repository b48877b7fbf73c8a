// Package cache provides a SQLite-backed store for analyzer results.
//
// Entries are keyed by a SHA-256 fingerprint of the analyzed content and by
// analyzer kind, so identical content is never analyzed twice by the same
// analyzer within the TTL. An entry is valid while its age is at most the
// TTL; expired entries are deleted when looked up, and [Manager.Cleanup]
// removes entries that have not been read for a number of days.
//
// Storage failures never reach callers of Lookup and Store: they are logged
// and treated as a miss or a no-op. The default database lives at
// $XDG_CACHE_HOME/critic/analysis_cache.db (or the OS-appropriate equivalent).
package cache
