// Package plex is the Plex Media Server HTTP client.
//
// Client wraps the JSON flavour of the PMS API: library sections, advanced
// section search, metadata and its children, the continue-watching hub,
// watch history, and server/section preferences. Every request carries the
// X-Plex-* identification headers and the configured token; WithToken returns
// a copy that acts as a shared user.
//
// NewTransport implements the selective certificate policy used for servers
// reached over https with self-signed certificates: verification is skipped for
// the configured host only, every other host stays verified.
package plex
