// Package capture owns the raw print port.
//
// Ownership boundary:
// - accepting print job connections
// - one decoder per connection, fed chunk by chunk
// - job completion: finalize text, forward raw bytes, publish the report
//
// A job ends when the client closes its side, when the idle timeout elapses
// without data, or when the server shuts down.
package capture
