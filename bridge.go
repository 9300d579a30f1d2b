package bridgeruntime

// Callable is a value that can be invoked by the peer with positional
// arguments. Arguments arrive unwrapped: integers as int64, text as
// string, byte buffers as []byte, tuples as []any, and peer-owned
// callables as Remote values.
type Callable interface {
	Invoke(args []any) (any, error)
}

// KeywordCallable is a Callable that additionally accepts keyword
// arguments. Callables that do not implement it reject starcalls with a
// non-empty keyword mapping.
type KeywordCallable interface {
	Callable
	InvokeKeywords(args []any, kwargs map[string]any) (any, error)
}

// Func adapts a plain function to the Callable interface.
type Func func(args []any) (any, error)

// Invoke implements Callable.
func (f Func) Invoke(args []any) (any, error) {
	return f(args)
}

// Remote is a local proxy for a callable owned by the peer. Invoking it
// sends a call frame and drives the call loop until the peer's terminal
// frame arrives.
//
// A Remote is an owning smart handle: the registry slot (or local code)
// holding it owns one reference. Code that retains a Remote beyond the
// call that delivered it must Retain it, and Release it when done; the
// final Release enqueues a forget notice for the peer.
type Remote interface {
	Callable

	// Handle returns the peer-side handle this proxy stands for.
	Handle() int64

	// Retain adds a reference.
	Retain()

	// Release drops a reference. Safe to call from any goroutine; the
	// forget notice is deferred until the next outbound frame.
	Release()
}

// Resolver maps dotted names to externally-addressable values for the
// make-global operation. The member "*" requests the whole namespace.
type Resolver interface {
	Resolve(namespace, member string) (any, error)
}
