// Package state persists what the sync engine needs between runs: the last
// successful sync time of each library section, the rating keys queued by
// webhooks but not yet synced, and the client identifier this installation
// presents to Plex.
//
// The database is a single SQLite file opened in WAL mode. Schema changes
// live in migrations/ and are applied with goose on Open.
package state
