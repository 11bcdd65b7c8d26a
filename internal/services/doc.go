// Package services holds the clients for the Plex services anibridge-plex
// talks to, plus the status error shared between them.
//
// Subpackages:
//   - plex: the Plex Media Server HTTP API (sections, search, metadata, history)
//   - plextv: the plex.tv account API and the discover watchlist
//   - community: the Plex community GraphQL API (reviews, watch activity)
//
// All three map non-2xx responses through CheckStatus so callers can match
// ErrUnauthorized and ErrNotFound with errors.Is regardless of the service.
package services
