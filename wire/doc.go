// Package wire implements the byte-level codec for the bridge protocol.
//
// Every frame is an opcode byte followed by one fixed-width signed
// integer argument and an opcode-specific payload. Integers are
// little-endian with a width negotiated once at startup (1-8 bytes).
//
// The read side treats a short read as "peer exited": the configured
// peer-lost hook runs instead of returning an error, because by the time
// a stream truncates the peer is already gone and has presumably
// reported the real cause. The default hook terminates the process with
// ExitStatusPeerLost and no further diagnostics.
//
// The write side is buffered. Callers must Flush before blocking on a
// read so the peer is never left waiting on unsent data; the call loop
// does this at the top of every iteration.
package wire
