// Package preflight provides readiness checks for the Plex services and
// filesystem paths that anibridge-plex depends on.
//
// These checks run in two contexts:
//   - The "check" command prints every result and exits non-zero on failure.
//   - The "serve" command runs RunAll once before taking the daemon lock so a
//     bad token or unwritable state directory fails fast.
package preflight
