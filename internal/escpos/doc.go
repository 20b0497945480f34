// Package escpos owns incremental decoding of ESC/POS printer byte streams.
//
// Ownership boundary:
// - command dispatch tree (lead byte -> sub-command -> handler)
// - streaming state machine over arbitrarily split chunks
// - printable filter and decoded text accumulation
// - unresolved path and handler failure counters
//
// A Decoder serves one session at a time: construct, feed zero or more chunks,
// then finalize with Text or Finish. Finalization resets the decoder so the
// same instance can start a new session. Decoders are not safe for concurrent
// use; callers own one decoder per connection.
//
// Text recognition is limited to 7-bit ASCII. Multi-byte and code page
// specific receipts are dropped by the printable filter.
package escpos
