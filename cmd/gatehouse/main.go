// Gatehouse is a rate limiting and request auditing service for the
// hireloop job board.
//
// It enforces per-principal quotas on abuse-prone actions (posting and
// deleting job ads, failed logins) over durable counters, and keeps an
// append-only audit trail of request outcomes.
//
// Usage:
//
//	# Start the server with default configuration
//	gatehouse run
//
//	# Start with a custom configuration file
//	gatehouse run --config /etc/gatehouse/config.yaml
//
//	# Show version information
//	gatehouse version
//
//	# Query the audit trail
//	gatehouse audit query --principal alice --status 429
package main

func main() {
	Execute()
}
