// Package recorder provides asynchronous writing of audit records.
//
// Writes go through a buffered channel drained by a background worker so
// that recording an outcome never blocks the request path. When the buffer
// is full the record is dropped and counted rather than applying
// backpressure.
package recorder
