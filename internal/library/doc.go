// Package library is the persistent metadata store: libraries, assets,
// folders, and playlists backed by SQLite. It owns the canonical asset
// records and each library's storage policy; presence state and task
// scheduling live elsewhere and treat this package as the system of record.
//
// Mutations publish change events so observers (presence tracker, UI
// surfaces) can react without polling.
package library
