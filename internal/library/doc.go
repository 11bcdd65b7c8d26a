// Package library is the Plex library provider consumed by the AniBridge
// synchronization host.
//
// A Provider connects to the configured Plex Media Server as the admin,
// resolves the configured user (switching to that user's shared-server token
// when it is not the account owner), and exposes the user's movie and show
// sections. ListItems turns a section search into Media values that answer
// the questions the sync engine asks: external ids, rating, view count,
// history, continue-watching and watchlist membership, review text, episode
// ordering, and the mapping candidates allowed by the strict setting.
//
// Primary operations (Initialize, Sections, ListItems) return errors.
// Auxiliary lookups degrade to "absent" and log a warning so one flaky
// endpoint does not abort a sync.
package library
