// Package server provides the HTTP front of the gatehouse service.
//
// It wires the middleware chain, the rate limited demo routes, the audit
// reporting API and the operational endpoints into one http.Server with
// graceful shutdown.
package server
