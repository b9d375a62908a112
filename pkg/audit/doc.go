// Package audit defines the append-only request audit trail.
//
// An audit Record describes one request outcome worth remembering: every
// authenticated request in the broad access-log variant, and rate-limit or
// authentication failures in the narrow variant. Records are write-only for
// the components that produce them; querying belongs to the reporting API
// and the CLI.
//
// Subpackages provide the pieces: storage holds the SQLite and in-memory
// backends, recorder the fire-and-forget async writer, and retention the
// scheduled pruner.
package audit
