package peer

import (
	stderrors "errors"
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/bridge-runtime/errors"
	"github.com/wippyai/bridge-runtime/registry"
	"github.com/wippyai/bridge-runtime/wire"
)

// Handler is a host callable exported to the guest. Arguments arrive as
// guest-owned Objects; the handler owns them and must Release any it
// does not return. The returned Object is released by the callback loop
// once its handle has been sent back; a nil result is delivered to the
// guest as integer zero.
type Handler func(p *Peer, args []*Object) (*Object, error)

// Config configures a Peer.
type Config struct {
	// In is the stream guest frames arrive on.
	In io.Reader

	// Out is the stream commands are written to.
	Out io.Writer

	// IntSize is the negotiated integer width in bytes (1-8).
	// Zero selects the default width of 8.
	IntSize int

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// OnPeerLost overrides the codec's fatal short-read hook.
	OnPeerLost func()
}

// Peer drives the host side of one bridge connection.
type Peer struct {
	in      *wire.Reader
	out     *wire.Writer
	exports *registry.Table // host values callable from the guest
	forgets wire.ForgetQueue
	log     *zap.Logger
}

// New creates a peer over an already-connected stream pair and blocks
// until the guest's readiness marker arrives. The guest must therefore
// already be serving (typically on another goroutine or in a spawned
// process) when New is called.
func New(cfg Config) (*Peer, error) {
	if cfg.In == nil || cfg.Out == nil {
		return nil, errors.InvalidInput(errors.PhaseTransport, "both streams are required")
	}
	if cfg.IntSize == 0 {
		cfg.IntSize = wire.MaxIntSize
	}
	in, err := wire.NewReader(cfg.In, cfg.IntSize, cfg.OnPeerLost)
	if err != nil {
		return nil, err
	}
	out, err := wire.NewWriter(cfg.Out, cfg.IntSize)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	p := &Peer{
		in:      in,
		out:     out,
		exports: registry.NewTable(),
		log:     log,
	}
	if marker := p.in.ReadOpcode(); marker != wire.ReadyMarker {
		return nil, errors.New(errors.PhaseProtocol, errors.KindViolation).
			Detail("guest sent %q instead of the readiness marker", marker).
			Build()
	}
	return p, nil
}

// command writes one command frame, flushing pending forget notices
// first so they are never reordered past the operation that follows.
func (p *Peer) command(op byte, arg int64) error {
	if err := p.forgets.Drain(p.out); err != nil {
		return err
	}
	return p.out.WriteFrame(op, arg)
}

// waitReturn runs the host's wait loop until a terminal frame arrives,
// servicing guest callbacks and export releases in between.
func (p *Peer) waitReturn() (int64, error) {
	for {
		if err := p.out.Flush(); err != nil {
			return 0, err
		}

		op := p.in.ReadOpcode()
		arg := p.in.ReadInt()

		switch op {
		case wire.OpReturn:
			return arg, nil
		case wire.OpException:
			return 0, &RemoteError{Object: &Object{p: p, h: arg}}
		case wire.OpCallback:
			if err := p.handleCallback(arg); err != nil {
				return 0, err
			}
		case wire.OpForget:
			if _, err := p.exports.Free(registry.Handle(arg)); err != nil {
				p.log.Warn("guest forgot invalid export", zap.Int64("handle", arg))
			}
		default:
			return 0, errors.New(errors.PhaseProtocol, errors.KindViolation).
				Detail("guest sent invalid opcode %q", op).
				Build()
		}
	}
}

func (p *Peer) waitObject() (*Object, error) {
	h, err := p.waitReturn()
	if err != nil {
		return nil, err
	}
	return &Object{p: p, h: h}, nil
}

// handleCallback services one guest-to-host call frame: it invokes the
// exported handler and replies with a return or exception frame. The
// handler may itself issue commands, nesting the protocol further.
func (p *Peer) handleCallback(export int64) error {
	nargs := p.in.ReadInt()
	if nargs < 0 || nargs > wire.MaxPayload {
		return errors.New(errors.PhaseProtocol, errors.KindViolation).
			Detail("callback argument count %d out of range", nargs).
			Build()
	}
	args := make([]*Object, nargs)
	for i := range args {
		args[i] = &Object{p: p, h: p.in.ReadInt()}
	}

	v, err := p.exports.Get(registry.Handle(export))
	if err != nil {
		return p.raise(err)
	}
	handler, ok := v.Obj.(Handler)
	if !ok {
		return p.raise(errors.NotCallable(v.Obj))
	}

	p.log.Debug("servicing callback",
		zap.Int64("export", export),
		zap.Int64("args", nargs))

	result, err := handler(p, args)
	if err != nil {
		return p.raise(err)
	}
	if result == nil {
		if result, err = p.MakeInt(0); err != nil {
			return err
		}
	}
	if err := p.command(wire.OpReturn, result.h); err != nil {
		return err
	}
	result.Release()
	return nil
}

// raise replies to a callback with an exception frame. A RaiseObject
// failure references its guest value directly; any other error is
// exported so the guest sees it as a remote proxy for the host failure,
// preserving its identity even though the guest cannot represent it.
//
// The exception handle is released once the frame is written, like
// handleCallback releases its result: the guest takes over the raised
// value and the deferred forget notice only drains on the next outbound
// frame, after the guest has consumed the handle. For the exported-error
// case this also unwinds the export entry, because freeing the guest's
// remote-proxy slot sends the forget notice for the export back here.
func (p *Peer) raise(err error) error {
	var ro *raisedObject
	if stderrors.As(err, &ro) {
		if cerr := p.command(wire.OpException, ro.obj.h); cerr != nil {
			return cerr
		}
		ro.obj.Release()
		return nil
	}
	// A guest-raised failure flowing back out of a nested call is
	// re-raised as the original guest value, not re-exported.
	var re *RemoteError
	if stderrors.As(err, &re) {
		if cerr := p.command(wire.OpException, re.Object.h); cerr != nil {
			return cerr
		}
		re.Object.Release()
		return nil
	}
	idx := p.exports.Alloc(registry.ObjectValue(err))
	obj, cerr := p.makeRemote(int64(idx))
	if cerr != nil {
		return cerr
	}
	if cerr := p.command(wire.OpException, obj.h); cerr != nil {
		return cerr
	}
	obj.Release()
	return nil
}

// MakeInt creates a guest-side integer.
func (p *Peer) MakeInt(v int64) (*Object, error) {
	if err := p.command(wire.OpMakeInt, v); err != nil {
		return nil, err
	}
	return p.waitObject()
}

// MakeBytes creates a guest-side byte buffer.
func (p *Peer) MakeBytes(b []byte) (*Object, error) {
	if err := p.command(wire.OpMakeBytes, int64(len(b))); err != nil {
		return nil, err
	}
	if err := p.out.WriteBytes(b); err != nil {
		return nil, err
	}
	return p.waitObject()
}

// MakeStr creates a guest-side text value.
func (p *Peer) MakeStr(s string) (*Object, error) {
	if err := p.command(wire.OpMakeStr, int64(len(s))); err != nil {
		return nil, err
	}
	if err := p.out.WriteBytes([]byte(s)); err != nil {
		return nil, err
	}
	return p.waitObject()
}

// MakeTuple creates a guest-side tuple of existing guest values.
func (p *Peer) MakeTuple(items ...*Object) (*Object, error) {
	if err := p.command(wire.OpMakeTuple, int64(len(items))); err != nil {
		return nil, err
	}
	for _, item := range items {
		if err := p.out.WriteInt(item.h); err != nil {
			return nil, err
		}
	}
	return p.waitObject()
}

// MakeGlobal resolves a dotted name in the guest's resolver. The member
// "*" yields the whole namespace.
func (p *Peer) MakeGlobal(qualname string) (*Object, error) {
	if err := p.command(wire.OpMakeGlobal, int64(len(qualname))); err != nil {
		return nil, err
	}
	if err := p.out.WriteBytes([]byte(qualname)); err != nil {
		return nil, err
	}
	return p.waitObject()
}

// Export registers a host handler and wraps it as a guest-side remote
// proxy. The returned Object is not yet callable by the guest's call
// opcode; pass it through Lambda (or use ExportFunc).
func (p *Peer) Export(h Handler) (*Object, error) {
	idx := p.exports.Alloc(registry.ObjectValue(h))
	return p.makeRemote(int64(idx))
}

func (p *Peer) makeRemote(export int64) (*Object, error) {
	if err := p.command(wire.OpMakeRemote, export); err != nil {
		return nil, err
	}
	return p.waitObject()
}

// Lambda wraps a guest-side remote proxy as a callable usable by the
// guest's call opcode.
func (p *Peer) Lambda(o *Object) (*Object, error) {
	if err := p.command(wire.OpLambda, o.h); err != nil {
		return nil, err
	}
	return p.waitObject()
}

// ExportFunc exports a handler and returns it already wrapped as a
// guest-callable value.
func (p *Peer) ExportFunc(h Handler) (*Object, error) {
	remote, err := p.Export(h)
	if err != nil {
		return nil, err
	}
	fn, err := p.Lambda(remote)
	if err != nil {
		return nil, err
	}
	remote.Release()
	return fn, nil
}

// Call invokes a guest callable with positional arguments.
func (p *Peer) Call(fn *Object, args ...*Object) (*Object, error) {
	if err := p.command(wire.OpCall, int64(len(args))); err != nil {
		return nil, err
	}
	if err := p.out.WriteInt(fn.h); err != nil {
		return nil, err
	}
	for _, a := range args {
		if err := p.out.WriteInt(a.h); err != nil {
			return nil, err
		}
	}
	return p.waitObject()
}

// Starcall invokes a guest callable with spread positional arguments
// and a keyword mapping.
func (p *Peer) Starcall(fn, args, kwargs *Object) (*Object, error) {
	if err := p.command(wire.OpStarcall, wire.StarcallArg); err != nil {
		return nil, err
	}
	for _, h := range []int64{fn.h, args.h, kwargs.h} {
		if err := p.out.WriteInt(h); err != nil {
			return nil, err
		}
	}
	return p.waitObject()
}

// Dup aliases a guest value under a new handle.
func (p *Peer) Dup(o *Object) (*Object, error) {
	if err := p.command(wire.OpDup, o.h); err != nil {
		return nil, err
	}
	return p.waitObject()
}

// GetInt fetches the raw integer behind a guest handle.
func (p *Peer) GetInt(o *Object) (int64, error) {
	if err := p.command(wire.OpGetInt, o.h); err != nil {
		return 0, err
	}
	return p.waitReturn()
}

// GetBytes fetches the raw bytes behind a guest text or bytes handle.
func (p *Peer) GetBytes(o *Object) ([]byte, error) {
	if err := p.command(wire.OpGetBytes, o.h); err != nil {
		return nil, err
	}
	size, err := p.waitReturn()
	if err != nil {
		return nil, err
	}
	return p.in.ReadBytes(size)
}

// GetStr fetches guest text as a string.
func (p *Peer) GetStr(o *Object) (string, error) {
	b, err := p.GetBytes(o)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Exports returns the host-side export table for inspection.
func (p *Peer) Exports() *registry.Table {
	return p.exports
}

// Close terminates the bridge by sending the sentinel return frame the
// guest's top-level loop requires.
func (p *Peer) Close() error {
	if err := p.forgets.Drain(p.out); err != nil {
		return err
	}
	if err := p.out.WriteFrame(wire.OpReturn, wire.TerminationSentinel); err != nil {
		return err
	}
	return p.out.Flush()
}
