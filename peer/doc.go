// Package peer implements the host side of the bridge protocol: it
// sends command frames, waits for their responses, and services guest
// callbacks that arrive while a response is pending.
//
// A Peer owns the mirrored stream pair of a session.Session (or of any
// process speaking the same wire protocol). Every Make/Call/Get method
// is a synchronous request: the peer writes one command frame and runs
// its wait loop until the matching return or exception frame arrives.
// Callback frames received in the meantime invoke exported host
// callables; forget frames release export slots. That wait loop is the
// host-side half of the bridge's reentrancy.
//
// Guest-owned values are represented as Objects. Releasing an Object
// enqueues a forget notice that is flushed ahead of the next outbound
// frame, mirroring the guest's deferred finalization of remotes.
//
// A Peer must be driven from a single goroutine; Release is the only
// method safe to call concurrently.
package peer
