package session

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	bridge "github.com/wippyai/bridge-runtime"
	"github.com/wippyai/bridge-runtime/errors"
	"github.com/wippyai/bridge-runtime/registry"
	"github.com/wippyai/bridge-runtime/wire"
)

// reply is the payload of a return frame: packed integers followed by
// an optional raw buffer.
type reply struct {
	ints []int64
	raw  []byte
}

func (s *Session) allocReply(v registry.Value) *reply {
	h := s.allocValue(v)
	return &reply{ints: []int64{int64(h)}}
}

// dispatch executes one command frame. A nil reply with a nil error
// means the opcode produces no response (forget). A non-nil error is
// converted to an exception frame by the loop; it never crashes it.
func (s *Session) dispatch(op byte, arg int64) (*reply, error) {
	switch op {
	case wire.OpMakeInt:
		return s.allocReply(registry.IntValue(arg)), nil

	case wire.OpMakeBytes:
		b, err := s.readPayload(arg)
		if err != nil {
			return nil, err
		}
		return s.allocReply(registry.BytesValue(b)), nil

	case wire.OpMakeStr:
		str, err := s.readText(arg)
		if err != nil {
			return nil, err
		}
		return s.allocReply(registry.TextValue(str)), nil

	case wire.OpMakeTuple:
		handles, err := s.readHandles(arg)
		if err != nil {
			return nil, err
		}
		items := make([]registry.Value, len(handles))
		for i, h := range handles {
			v, err := s.reg.Get(registry.Handle(h))
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return s.allocReply(registry.TupleValue(items)), nil

	case wire.OpMakeGlobal:
		name, err := s.readText(arg)
		if err != nil {
			return nil, err
		}
		return s.makeGlobal(name)

	case wire.OpMakeRemote:
		return s.allocReply(registry.RemoteValue(s.newRemote(arg))), nil

	case wire.OpCall:
		fn := s.in.ReadInt()
		handles, err := s.readHandles(arg)
		if err != nil {
			return nil, err
		}
		fnv, err := s.reg.Get(registry.Handle(fn))
		if err != nil {
			return nil, err
		}
		args := make([]any, len(handles))
		for i, h := range handles {
			v, err := s.reg.Get(registry.Handle(h))
			if err != nil {
				return nil, err
			}
			args[i] = v.Interface()
		}
		result, err := s.invoke(fnv, args, nil)
		if err != nil {
			return nil, err
		}
		return s.allocReply(registry.FromAny(result)), nil

	case wire.OpStarcall:
		return s.starcall()

	case wire.OpLambda:
		v, err := s.reg.Get(registry.Handle(arg))
		if err != nil {
			return nil, err
		}
		r, ok := v.Remote()
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseDispatch, "remote proxy", v.Kind.String())
		}
		return s.allocReply(registry.RemoteValue(r)), nil

	case wire.OpDup:
		v, err := s.reg.Get(registry.Handle(arg))
		if err != nil {
			return nil, err
		}
		return s.allocReply(v), nil

	case wire.OpGetInt:
		v, err := s.reg.Get(registry.Handle(arg))
		if err != nil {
			return nil, err
		}
		i, err := v.AsInt()
		if err != nil {
			return nil, err
		}
		return &reply{ints: []int64{i}}, nil

	case wire.OpGetBytes:
		v, err := s.reg.Get(registry.Handle(arg))
		if err != nil {
			return nil, err
		}
		b, err := v.AsBytes()
		if err != nil {
			return nil, err
		}
		return &reply{ints: []int64{int64(len(b))}, raw: b}, nil

	case wire.OpForget:
		// Forget never responds, not even with an exception.
		if err := s.freeHandle(arg); err != nil {
			s.log.Warn("forget of invalid handle", zap.Int64("handle", arg))
		}
		return nil, nil
	}

	return nil, errors.UnknownOpcode(op)
}

func (s *Session) makeGlobal(name string) (*reply, error) {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return nil, errors.InvalidInput(errors.PhaseResolve,
			"dotted name must contain a namespace")
	}
	namespace, member := name[:idx], name[idx+1:]
	if s.resolver == nil {
		return nil, errors.InvalidInput(errors.PhaseResolve, "no resolver configured")
	}
	v, err := s.resolver.Resolve(namespace, member)
	if err != nil {
		return nil, err
	}
	return s.allocReply(registry.FromAny(v)), nil
}

func (s *Session) starcall() (*reply, error) {
	fn := s.in.ReadInt()
	argsHandle := s.in.ReadInt()
	kwargsHandle := s.in.ReadInt()

	fnv, err := s.reg.Get(registry.Handle(fn))
	if err != nil {
		return nil, err
	}
	argsv, err := s.reg.Get(registry.Handle(argsHandle))
	if err != nil {
		return nil, err
	}
	if argsv.Kind != registry.KindTuple {
		return nil, errors.TypeMismatch(errors.PhaseDispatch, "tuple", argsv.Kind.String())
	}
	args, _ := argsv.Interface().([]any)

	kwargsv, err := s.reg.Get(registry.Handle(kwargsHandle))
	if err != nil {
		return nil, err
	}
	kwargs, ok := kwargsv.Interface().(map[string]any)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseDispatch, "keyword mapping", kwargsv.Interface())
	}

	result, err := s.invoke(fnv, args, kwargs)
	if err != nil {
		return nil, err
	}
	return s.allocReply(registry.FromAny(result)), nil
}

// invoke calls a registry value: a remote proxy goes back over the
// wire, anything else must satisfy the Callable contract.
func (s *Session) invoke(fnv registry.Value, args []any, kwargs map[string]any) (any, error) {
	if r, ok := fnv.Remote(); ok {
		if len(kwargs) > 0 {
			return nil, errors.InvalidInput(errors.PhaseCall,
				"remote callables accept positional arguments only")
		}
		return r.Invoke(args)
	}
	target := fnv.Interface()
	if kc, ok := target.(bridge.KeywordCallable); ok {
		return kc.InvokeKeywords(args, kwargs)
	}
	if c, ok := target.(bridge.Callable); ok {
		if len(kwargs) > 0 {
			return nil, errors.InvalidInput(errors.PhaseCall,
				"callable does not accept keyword arguments")
		}
		return c.Invoke(args)
	}
	return nil, errors.NotCallable(target)
}

// readPayload reads a length-prefixed payload. A negative length means
// the frame grammar itself is broken, which ends the session; a length
// over the local limit is survivable, so the bytes are consumed and
// discarded to keep the stream aligned, and the command fails with an
// exception instead.
func (s *Session) readPayload(n int64) ([]byte, error) {
	if n < 0 {
		return nil, errors.Violation(
			fmt.Sprintf("negative payload length %d", n), nil)
	}
	if n > wire.MaxPayload {
		s.in.Skip(n)
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidInput).
			Detail("payload length %d exceeds the %d byte limit", n, wire.MaxPayload).
			Build()
	}
	return s.in.ReadBytes(n)
}

func (s *Session) readText(n int64) (string, error) {
	p, err := s.readPayload(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(p) {
		return "", errors.InvalidUTF8(p)
	}
	return string(p), nil
}

// readHandles reads a counted run of handles, consuming the whole
// payload before any of them is resolved so a bad handle cannot desync
// the stream. A count outside the frame grammar is unrecoverable: the
// handle payload cannot be located, so the session ends.
func (s *Session) readHandles(count int64) ([]int64, error) {
	if count < 0 || count > wire.MaxPayload {
		return nil, errors.Violation(
			fmt.Sprintf("handle count %d out of range", count), nil)
	}
	handles := make([]int64, count)
	for i := range handles {
		handles[i] = s.in.ReadInt()
	}
	return handles, nil
}
