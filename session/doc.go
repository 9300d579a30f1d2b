// Package session implements the guest side of the bridge: the command
// dispatcher, the reentrant call loop, remote callable proxies, and the
// deferred finalization queue.
//
// A Session owns one inbound and one outbound stream, a handle table
// for values the peer references, and a Resolver for dotted-name
// lookups. Serve writes the readiness marker and then processes command
// frames until the peer sends the termination sentinel.
//
// # Reentrancy
//
// The loop is reentrant by construction. Invoking a Remote writes a
// call frame and then re-enters the same loop to process whatever the
// peer sends back; command frames that arrive while the call is pending
// are serviced, including their responses, before the call's own
// return or exception is delivered. The wire format has no correlation
// ids: frames are processed strictly in arrival order on a single
// goroutine.
//
// # Lifetimes
//
// A registry entry is freed only by an explicit forget command from the
// peer. The mirror direction is the Remote proxy: releasing the last
// reference enqueues a forget notice that is flushed ahead of the next
// outbound frame, so the peer learns about it without a dedicated
// writer goroutine.
package session
