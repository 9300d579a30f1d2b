package peer

import (
	stderrors "errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"testing"
	"time"

	bridge "github.com/wippyai/bridge-runtime"
	"github.com/wippyai/bridge-runtime/session"
)

// startBridge wires a peer and an in-process session over pipe pairs.
// The session serves on its own goroutine; cleanup terminates the
// bridge and verifies the session shut down cleanly.
func startBridge(t *testing.T, res bridge.Resolver) (*Peer, *session.Session) {
	t.Helper()

	guestIn, hostOut := io.Pipe()
	hostIn, guestOut := io.Pipe()

	s, err := session.New(session.Config{
		In:         guestIn,
		Out:        guestOut,
		Resolver:   res,
		OnPeerLost: runtime.Goexit,
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	p, err := New(Config{
		In:         hostIn,
		Out:        hostOut,
		OnPeerLost: runtime.Goexit,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t.Cleanup(func() {
		if err := p.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("session did not terminate")
		}
		hostOut.Close()
		guestOut.Close()
	})
	return p, s
}

// check wraps the test handle so multi-valued bridge calls can be
// asserted inline.
type check struct {
	t *testing.T
}

func (c check) obj(o *Object, err error) *Object {
	c.t.Helper()
	if err != nil {
		c.t.Fatalf("bridge operation failed: %v", err)
	}
	return o
}

func TestBridge_IntRoundTrip(t *testing.T) {
	p, _ := startBridge(t, nil)
	must := check{t}

	for _, v := range []int64{0, 1, -1, 42, -9_000_000_000, 1<<62 - 1} {
		o := must.obj(p.MakeInt(v))
		got, err := p.GetInt(o)
		if err != nil {
			t.Fatalf("GetInt(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip %d, got %d", v, got)
		}
		o.Release()
	}
}

func TestBridge_TextAndBytes(t *testing.T) {
	p, _ := startBridge(t, nil)
	must := check{t}

	s := must.obj(p.MakeStr("héllo wörld"))
	got, err := p.GetStr(s)
	if err != nil {
		t.Fatalf("GetStr: %v", err)
	}
	if got != "héllo wörld" {
		t.Fatalf("GetStr = %q", got)
	}

	raw := []byte{0x00, 0xFF, 0x7F, 0x80}
	b := must.obj(p.MakeBytes(raw))
	gotRaw, err := p.GetBytes(b)
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	if string(gotRaw) != string(raw) {
		t.Fatalf("GetBytes = %x, want %x", gotRaw, raw)
	}

	s.Release()
	b.Release()
}

func TestBridge_GlobalCall(t *testing.T) {
	res := session.NewNamespaceResolver()
	res.Register("test", map[string]any{
		"sum": bridge.Func(func(args []any) (any, error) {
			var total int64
			for _, a := range args {
				total += a.(int64)
			}
			return total, nil
		}),
	})
	p, _ := startBridge(t, res)
	must := check{t}

	sum := must.obj(p.MakeGlobal("test.sum"))
	a := must.obj(p.MakeInt(5))
	b := must.obj(p.MakeInt(7))

	r := must.obj(p.Call(sum, a, b))
	got, err := p.GetInt(r)
	if err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	if got != 12 {
		t.Fatalf("sum = %d, want 12", got)
	}
}

func TestBridge_TupleArgument(t *testing.T) {
	res := session.NewNamespaceResolver()
	res.Register("test", map[string]any{
		"first": bridge.Func(func(args []any) (any, error) {
			return args[0].([]any)[0], nil
		}),
	})
	p, _ := startBridge(t, res)
	must := check{t}

	first := must.obj(p.MakeGlobal("test.first"))
	a := must.obj(p.MakeInt(5))
	b := must.obj(p.MakeInt(7))
	tup := must.obj(p.MakeTuple(a, b))

	r := must.obj(p.Call(first, tup))
	got, err := p.GetInt(r)
	if err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	if got != 5 {
		t.Fatalf("first = %d, want 5", got)
	}
}

func TestBridge_MakeGlobalMissing(t *testing.T) {
	p, _ := startBridge(t, nil)
	must := check{t}

	_, err := p.MakeGlobal("nowhere.nothing")
	var re *RemoteError
	if !stderrors.As(err, &re) {
		t.Fatalf("MakeGlobal = %v, want RemoteError", err)
	}
	re.Object.Release()

	// The bridge stays usable after an exception.
	o := must.obj(p.MakeInt(3))
	if got, err := p.GetInt(o); err != nil || got != 3 {
		t.Fatalf("GetInt after exception = %d, %v", got, err)
	}
}

func TestBridge_CallNotCallable(t *testing.T) {
	p, _ := startBridge(t, nil)
	must := check{t}

	o := must.obj(p.MakeInt(1))
	_, err := p.Call(o)
	if !stderrors.Is(err, &RemoteError{}) {
		t.Fatalf("Call on integer = %v, want RemoteError", err)
	}
}

func TestBridge_ExportedHandlerReentrancy(t *testing.T) {
	res := session.NewNamespaceResolver()
	res.Register("test", map[string]any{
		"apply": bridge.Func(func(args []any) (any, error) {
			fn := args[0].(bridge.Callable)
			return fn.Invoke(args[1:])
		}),
	})
	p, _ := startBridge(t, res)
	must := check{t}

	double := must.obj(p.ExportFunc(func(p *Peer, args []*Object) (*Object, error) {
		defer args[0].Release()
		v, err := p.GetInt(args[0])
		if err != nil {
			return nil, err
		}
		return p.MakeInt(v * 2)
	}))

	apply := must.obj(p.MakeGlobal("test.apply"))
	n := must.obj(p.MakeInt(21))

	r := must.obj(p.Call(apply, double, n))
	got, err := p.GetInt(r)
	if err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	if got != 42 {
		t.Fatalf("apply(double, 21) = %d, want 42", got)
	}
}

func TestBridge_HandlerErrorPropagates(t *testing.T) {
	res := session.NewNamespaceResolver()
	res.Register("test", map[string]any{
		"apply": bridge.Func(func(args []any) (any, error) {
			fn := args[0].(bridge.Callable)
			return fn.Invoke(args[1:])
		}),
	})
	p, _ := startBridge(t, res)
	must := check{t}

	failing := must.obj(p.ExportFunc(func(p *Peer, args []*Object) (*Object, error) {
		for _, a := range args {
			a.Release()
		}
		return nil, fmt.Errorf("handler refused")
	}))
	apply := must.obj(p.MakeGlobal("test.apply"))

	_, err := p.Call(apply, failing)
	if !stderrors.Is(err, &RemoteError{}) {
		t.Fatalf("Call = %v, want RemoteError", err)
	}
}

func TestBridge_HandlerErrorReclaimsHandles(t *testing.T) {
	// Raising a handler failure hands the exported error over to the
	// guest. Once the caller releases the returned failure, the forget
	// chain must unwind everything: the guest slots it held and the
	// host-side export entry for the error value.
	res := session.NewNamespaceResolver()
	res.Register("test", map[string]any{
		"apply": bridge.Func(func(args []any) (any, error) {
			fn := args[0].(bridge.Callable)
			return fn.Invoke(args[1:])
		}),
	})
	p, s := startBridge(t, res)
	must := check{t}

	anchor := must.obj(p.MakeInt(0))
	failing := must.obj(p.ExportFunc(func(p *Peer, args []*Object) (*Object, error) {
		for _, a := range args {
			a.Release()
		}
		return nil, fmt.Errorf("handler refused")
	}))
	apply := must.obj(p.MakeGlobal("test.apply"))

	_, err := p.Call(apply, failing)
	var re *RemoteError
	if !stderrors.As(err, &re) {
		t.Fatalf("Call = %v, want RemoteError", err)
	}
	re.Object.Release()
	failing.Release()
	apply.Release()

	// A round trip flushes the queued forget notices both ways.
	if _, err := p.GetInt(anchor); err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	if _, err := p.GetInt(anchor); err != nil {
		t.Fatalf("GetInt: %v", err)
	}

	if s.Registry().Len() != 1 {
		t.Fatalf("guest live handles = %d, want 1", s.Registry().Len())
	}
	if p.Exports().Len() != 0 {
		t.Fatalf("host export entries = %d, want 0", p.Exports().Len())
	}
}

func TestBridge_RaiseObject(t *testing.T) {
	res := session.NewNamespaceResolver()
	res.Register("test", map[string]any{
		"apply": bridge.Func(func(args []any) (any, error) {
			fn := args[0].(bridge.Callable)
			return fn.Invoke(args[1:])
		}),
	})
	p, _ := startBridge(t, res)
	must := check{t}

	raiser := must.obj(p.ExportFunc(func(p *Peer, args []*Object) (*Object, error) {
		msg, err := p.MakeStr("raised payload")
		if err != nil {
			return nil, err
		}
		return nil, RaiseObject(msg)
	}))
	apply := must.obj(p.MakeGlobal("test.apply"))

	_, err := p.Call(apply, raiser)
	if !stderrors.Is(err, &RemoteError{}) {
		t.Fatalf("Call = %v, want RemoteError", err)
	}
}

func TestBridge_StarcallKeywords(t *testing.T) {
	res := session.NewNamespaceResolver()
	res.Register("test", map[string]any{
		// Builds a keyword mapping from alternating key/value pairs.
		"kwargs": bridge.Func(func(args []any) (any, error) {
			m := make(map[string]any, len(args)/2)
			for i := 0; i+1 < len(args); i += 2 {
				m[args[i].(string)] = args[i+1]
			}
			return m, nil
		}),
		"join": joiner{},
	})
	p, _ := startBridge(t, res)
	must := check{t}

	kwargsFn := must.obj(p.MakeGlobal("test.kwargs"))
	sepKey := must.obj(p.MakeStr("sep"))
	sepVal := must.obj(p.MakeStr("-"))
	kwargs := must.obj(p.Call(kwargsFn, sepKey, sepVal))

	x := must.obj(p.MakeStr("x"))
	y := must.obj(p.MakeStr("y"))
	args := must.obj(p.MakeTuple(x, y))

	join := must.obj(p.MakeGlobal("test.join"))
	r := must.obj(p.Starcall(join, args, kwargs))
	got, err := p.GetStr(r)
	if err != nil {
		t.Fatalf("GetStr: %v", err)
	}
	if got != "x-y" {
		t.Fatalf("join = %q, want %q", got, "x-y")
	}
}

// joiner concatenates string arguments with the sep keyword.
type joiner struct{}

func (joiner) Invoke(args []any) (any, error) {
	return joiner{}.InvokeKeywords(args, nil)
}

func (joiner) InvokeKeywords(args []any, kwargs map[string]any) (any, error) {
	sep := ""
	if v, ok := kwargs["sep"]; ok {
		sep = v.(string)
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.(string)
	}
	return strings.Join(parts, sep), nil
}

func TestBridge_DupOutlivesOriginal(t *testing.T) {
	p, _ := startBridge(t, nil)
	must := check{t}

	orig := must.obj(p.MakeInt(8))
	alias := must.obj(p.Dup(orig))
	orig.Release()

	got, err := p.GetInt(alias)
	if err != nil {
		t.Fatalf("GetInt through alias: %v", err)
	}
	if got != 8 {
		t.Fatalf("alias = %d, want 8", got)
	}
}

func TestBridge_ReleaseFreesGuestHandles(t *testing.T) {
	p, s := startBridge(t, nil)
	must := check{t}

	a := must.obj(p.MakeInt(1)) // guest handle 0
	b := must.obj(p.MakeInt(2)) // guest handle 1
	c := must.obj(p.MakeInt(3)) // guest handle 2
	a.Release()
	b.Release()
	c.Release()

	// The queued notices flush ahead of this command, so by the time
	// its response arrives the guest has freed all three slots and
	// reuses the most recently freed one.
	o := must.obj(p.MakeInt(4))
	if o.Handle() != c.Handle() {
		t.Fatalf("handle = %d, want reused %d", o.Handle(), c.Handle())
	}
	if s.Registry().Len() != 1 {
		t.Fatalf("guest live handles = %d, want 1", s.Registry().Len())
	}
}

func TestBridge_ReleaseIdempotent(t *testing.T) {
	p, s := startBridge(t, nil)
	must := check{t}

	a := must.obj(p.MakeInt(1))
	b := must.obj(p.MakeInt(2))
	a.Release()
	a.Release() // must not queue a second notice

	// If the duplicate release produced a second forget frame the
	// guest would log it and, worse, could free b's reused slot.
	o := must.obj(p.MakeInt(3)) // reuses a's slot
	if o.Handle() != a.Handle() {
		t.Fatalf("handle = %d, want reused %d", o.Handle(), a.Handle())
	}
	if got, err := p.GetInt(b); err != nil || got != 2 {
		t.Fatalf("GetInt(b) = %d, %v", got, err)
	}
	if s.Registry().Len() != 2 {
		t.Fatalf("guest live handles = %d, want 2", s.Registry().Len())
	}
}

func TestBridge_NestedGuestErrorReraised(t *testing.T) {
	// A guest failure crossing the host during a callback must surface
	// to the original caller as the same guest-raised failure.
	res := session.NewNamespaceResolver()
	res.Register("test", map[string]any{
		"apply": bridge.Func(func(args []any) (any, error) {
			fn := args[0].(bridge.Callable)
			return fn.Invoke(args[1:])
		}),
		"boom": bridge.Func(func(args []any) (any, error) {
			return nil, fmt.Errorf("inner failure")
		}),
	})
	p, _ := startBridge(t, res)
	must := check{t}

	// The handler calls back into the guest; the guest-side failure
	// becomes a RemoteError host-side and is re-raised into the guest.
	trampoline := must.obj(p.ExportFunc(func(p *Peer, args []*Object) (*Object, error) {
		for _, a := range args {
			a.Release()
		}
		boom, err := p.MakeGlobal("test.boom")
		if err != nil {
			return nil, err
		}
		defer boom.Release()
		return p.Call(boom)
	}))
	apply := must.obj(p.MakeGlobal("test.apply"))

	_, err := p.Call(apply, trampoline)
	if !stderrors.Is(err, &RemoteError{}) {
		t.Fatalf("Call = %v, want RemoteError", err)
	}
}
