// Package mapping decides which external identifiers a library item may be
// matched by, honouring the show's episode ordering.
//
// TMDB and TVDB number the episodes of many anime differently. A show whose
// Plex ordering is TMDB airing must be matched by its TMDB id; with strict
// matching enabled the TVDB id is never tried, so a mapping built against the
// other numbering cannot silently shift episodes. Without strict matching the
// other scheme is appended as a flagged fallback.
package mapping
