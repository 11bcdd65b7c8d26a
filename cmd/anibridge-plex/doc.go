// Package main hosts the anibridge-plex CLI entrypoint and command graph.
//
// The Cobra-based command tree resolves configuration once per invocation,
// opens the state database, and initializes the Plex library provider for
// commands that need it. Inspection commands (user, sections, items, show)
// print tables or JSON; sync runs one pass of the sync engine; serve runs the
// webhook daemon until interrupted.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
