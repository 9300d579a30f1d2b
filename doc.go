// Package bridgeruntime provides a bidirectional call bridge between two
// cooperating processes connected by a pair of byte streams.
//
// The bridge lets a "host" process and a "guest" process exchange values,
// invoke each other's callables, and propagate failures, while keeping
// object lifetimes correct on both sides without a shared address space.
// Neither side can inspect the other's memory: every cross-boundary value
// is a small integer handle into the owning side's registry, and handle
// release is communicated explicitly over the wire.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	bridgeruntime/      Root package with the Callable and Resolver interfaces
//	├── session/        Guest side: dispatcher, reentrant call loop, remotes
//	├── peer/           Host side: command senders and the host call loop
//	├── registry/       Free-list handle table and the tagged Value variant
//	├── wire/           Fixed-width integer codec and frame opcodes
//	├── errors/         Structured error types for debugging
//	└── cmd/bridge/     Serve mode and the interactive console
//
// # Quick Start
//
// Serve the guest side of a bridge over two already-connected streams:
//
//	res := session.NewNamespaceResolver()
//	res.Register("strings", map[string]any{
//		"upper": bridgeruntime.Func(func(args []any) (any, error) {
//			return strings.ToUpper(args[0].(string)), nil
//		}),
//	})
//
//	s, err := session.New(session.Config{
//		In:       inStream,
//		Out:      outStream,
//		IntSize:  8,
//		Resolver: res,
//	})
//	if err != nil {
//		return err
//	}
//	return s.Serve()
//
// Drive the host side from the other end:
//
//	p, err := peer.New(peer.Config{In: fromGuest, Out: toGuest, IntSize: 8})
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	upper, err := p.MakeGlobal("strings.upper")
//	arg, err := p.MakeStr("hello")
//	ret, err := p.Call(upper, arg)
//	text, err := p.GetBytes(ret) // "HELLO"
//
// # Concurrency Model
//
// Each side processes frames strictly in arrival order on a single
// goroutine; the wire format carries no correlation ids. The only
// concurrent structure is the deferred finalization queue, which records
// released remote handles from any goroutine so their forget notices can
// be flushed ahead of the next outbound frame.
package bridgeruntime
