// Package budget enforces each library's local cache policy. In
// keep-all-local mode it hydrates every cloud-only asset; in
// optimize-storage mode it evicts cold local copies, least recently accessed
// first, until usage fits the configured budget and the volume keeps a
// minimum free-space ratio.
//
// The enforcer is the only component allowed to delete local copies, and it
// never deletes a copy whose cloud counterpart is unconfirmed. Pinned assets,
// assets referenced by active tasks, and assets open for playback are never
// candidates.
package budget
