// Package retention enforces the audit trail retention policy.
//
// A Pruner deletes audit records past their retention period, and a
// cron-driven Scheduler runs it periodically.
package retention
