package session

import (
	stderrors "errors"
	"io"

	"go.uber.org/zap"

	bridge "github.com/wippyai/bridge-runtime"
	"github.com/wippyai/bridge-runtime/errors"
	"github.com/wippyai/bridge-runtime/registry"
	"github.com/wippyai/bridge-runtime/wire"
)

// Config configures a Session.
type Config struct {
	// In is the stream commands arrive on.
	In io.Reader

	// Out is the stream responses and callbacks are written to.
	Out io.Writer

	// IntSize is the negotiated integer width in bytes (1-8).
	// Zero selects the default width of 8.
	IntSize int

	// Resolver handles make-global lookups. May be nil, in which case
	// every lookup fails.
	Resolver bridge.Resolver

	// Logger overrides the package logger for this session.
	Logger *zap.Logger

	// OnPeerLost overrides the codec's fatal short-read hook.
	// The default exits the process with wire.ExitStatusPeerLost.
	OnPeerLost func()
}

// Session is the guest side of one bridge connection.
type Session struct {
	in       *wire.Reader
	out      *wire.Writer
	reg      *registry.Table
	resolver bridge.Resolver
	forgets  wire.ForgetQueue
	log      *zap.Logger
}

// New creates a session over an already-connected stream pair.
func New(cfg Config) (*Session, error) {
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
		log = Logger()
	}
	return &Session{
		in:       in,
		out:      out,
		reg:      registry.NewTable(),
		resolver: cfg.Resolver,
		log:      log,
	}, nil
}

// Registry exposes the session's handle table for inspection.
func (s *Session) Registry() *registry.Table {
	return s.reg
}

// Serve writes the readiness marker and runs the call loop until the
// peer terminates the bridge. A clean shutdown requires the final
// return frame to carry the termination sentinel; anything else is an
// integrity failure.
func (s *Session) Serve() error {
	if err := s.out.WriteOpcode(wire.ReadyMarker); err != nil {
		return err
	}
	s.log.Debug("session ready", zap.Int("int_size", s.out.IntSize()))

	ret, err := s.runLoop()
	if err != nil {
		var structured *errors.Error
		if stderrors.As(err, &structured) && structured.Phase == errors.PhaseTransport {
			return err
		}
		return errors.Violation("top-level loop terminated with an exception", err)
	}
	if ret != wire.TerminationSentinel {
		return errors.New(errors.PhaseProtocol, errors.KindViolation).
			Detail("top-level return %#x is not the termination sentinel", ret).
			Build()
	}
	s.log.Debug("session terminated cleanly",
		zap.Int("live_handles", s.reg.Len()))
	return nil
}

// runLoop processes inbound frames until a terminal return or exception
// frame arrives. It runs both at top level and recursively under every
// Remote invocation.
func (s *Session) runLoop() (int64, error) {
	for {
		// The peer may be blocked waiting on our buffered output.
		if err := s.out.Flush(); err != nil {
			return 0, err
		}

		op := s.in.ReadOpcode()
		arg := s.in.ReadInt()

		switch op {
		case wire.OpReturn:
			return arg, nil
		case wire.OpException:
			return 0, s.raised(arg)
		}

		resp, err := s.dispatch(op, arg)
		if err == nil && resp != nil {
			// Validate the packed integers before the first reply byte
			// goes out; a value too wide for the negotiated width must
			// become an exception frame, not a truncated return.
			for _, i := range resp.ints {
				if cerr := s.out.CheckInt(i); cerr != nil {
					resp, err = nil, cerr
					break
				}
			}
		}
		switch {
		case err != nil:
			var structured *errors.Error
			if stderrors.As(err, &structured) && structured.Phase == errors.PhaseProtocol {
				// The frame grammar is broken; no further frame
				// boundary can be trusted.
				return 0, err
			}
			s.log.Debug("command failed",
				zap.String("op", string(op)),
				zap.Int64("arg", arg),
				zap.Error(err))
			if werr := s.writeException(err); werr != nil {
				return 0, werr
			}
		case resp != nil:
			if werr := s.writeReturn(resp); werr != nil {
				return 0, werr
			}
		}
	}
}

// raised converts an inbound exception frame into a local failure,
// re-raising the referenced value into the calling context. Failures
// the peer cannot express locally stay opaque inside a RaisedError.
func (s *Session) raised(h int64) error {
	v, err := s.reg.Get(registry.Handle(h))
	if err != nil {
		return errors.Violation("exception frame references an invalid handle", err)
	}
	if e, ok := v.Interface().(error); ok {
		return e
	}
	return &errors.RaisedError{Value: v.Interface()}
}

func (s *Session) writeReturn(r *reply) error {
	if err := s.forgets.Drain(s.out); err != nil {
		return err
	}
	if err := s.out.WriteOpcode(wire.OpReturn); err != nil {
		return err
	}
	for _, i := range r.ints {
		if err := s.out.WriteInt(i); err != nil {
			return err
		}
	}
	if len(r.raw) > 0 {
		return s.out.WriteBytes(r.raw)
	}
	return nil
}

func (s *Session) writeException(cause error) error {
	if err := s.forgets.Drain(s.out); err != nil {
		return err
	}
	h := s.allocValue(registry.FromAny(cause))
	return s.out.WriteFrame(wire.OpException, int64(h))
}

// allocValue stores a value under a fresh handle. The new slot owns one
// reference on every remote proxy reachable from the value.
func (s *Session) allocValue(v registry.Value) registry.Handle {
	retainValue(v)
	return s.reg.Alloc(v)
}

// freeHandle releases a slot and drops its references.
func (s *Session) freeHandle(h int64) error {
	v, err := s.reg.Free(registry.Handle(h))
	if err != nil {
		return err
	}
	releaseValue(v)
	return nil
}

func retainValue(v registry.Value) {
	switch v.Kind {
	case registry.KindRemote:
		if r, ok := v.Remote(); ok {
			r.Retain()
		}
	case registry.KindTuple:
		for _, item := range v.Tuple {
			retainValue(item)
		}
	}
}

func releaseValue(v registry.Value) {
	switch v.Kind {
	case registry.KindRemote:
		if r, ok := v.Remote(); ok {
			r.Release()
		}
	case registry.KindTuple:
		for _, item := range v.Tuple {
			releaseValue(item)
		}
	}
}
