// Package daemon coordinates the long-running anibridge-plex process.
//
// It owns the single-instance lock, the HTTP listener that receives Plex
// webhooks, and the poll loop that drains queued webhook keys and runs the
// incremental section sync. Webhook deliveries only enqueue rating keys; the
// sync itself always happens on the poll loop so a slow Plex server never
// blocks the webhook sender.
//
// Keep orchestration here. Listing and record building live in library and
// syncer; persistence lives in state.
package daemon
