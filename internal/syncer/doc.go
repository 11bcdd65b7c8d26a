// Package syncer drives the library provider the way the AniBridge host
// does: it lists each section's items changed since the last successful run,
// turns every item into a Record, and hands the records to a Sink. Webhook
// keys queued in the state store are drained separately by RunPending.
//
// Sections are synced concurrently up to the configured limit. A section's
// checkpoint only advances after all of its records were written.
package syncer
