package main

import (
	"fmt"
	"strconv"
	"strings"

	bridge "github.com/wippyai/bridge-runtime"
	"github.com/wippyai/bridge-runtime/errors"
	"github.com/wippyai/bridge-runtime/session"
)

// demoResolver builds the namespaces served by the demo binary: thin
// wrappers over the standard library plus a few bridge helpers.
func demoResolver() *session.NamespaceResolver {
	r := session.NewNamespaceResolver()

	r.Register("strings", map[string]any{
		"upper": unary(func(s string) (any, error) {
			return strings.ToUpper(s), nil
		}),
		"lower": unary(func(s string) (any, error) {
			return strings.ToLower(s), nil
		}),
		"trim": unary(func(s string) (any, error) {
			return strings.TrimSpace(s), nil
		}),
		"concat": bridge.Func(func(args []any) (any, error) {
			var b strings.Builder
			for _, a := range args {
				s, err := wantString(a)
				if err != nil {
					return nil, err
				}
				b.WriteString(s)
			}
			return b.String(), nil
		}),
		"contains": bridge.Func(func(args []any) (any, error) {
			if err := wantArgs(args, 2); err != nil {
				return nil, err
			}
			s, err := wantString(args[0])
			if err != nil {
				return nil, err
			}
			sub, err := wantString(args[1])
			if err != nil {
				return nil, err
			}
			return strings.Contains(s, sub), nil
		}),
		"join": joinFunc{},
	})

	r.Register("strconv", map[string]any{
		"itoa": bridge.Func(func(args []any) (any, error) {
			if err := wantArgs(args, 1); err != nil {
				return nil, err
			}
			v, err := wantInt(args[0])
			if err != nil {
				return nil, err
			}
			return strconv.FormatInt(v, 10), nil
		}),
		"atoi": unary(func(s string) (any, error) {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, errors.New(errors.PhaseCall, errors.KindInvalidInput).
					Detail("not an integer: %q", s).
					Cause(err).
					Build()
			}
			return v, nil
		}),
	})

	r.Register("math", map[string]any{
		"abs": bridge.Func(func(args []any) (any, error) {
			if err := wantArgs(args, 1); err != nil {
				return nil, err
			}
			v, err := wantInt(args[0])
			if err != nil {
				return nil, err
			}
			if v < 0 {
				v = -v
			}
			return v, nil
		}),
		"sum": bridge.Func(func(args []any) (any, error) {
			var total int64
			for _, a := range args {
				v, err := wantInt(a)
				if err != nil {
					return nil, err
				}
				total += v
			}
			return total, nil
		}),
		"max": bridge.Func(func(args []any) (any, error) {
			if len(args) == 0 {
				return nil, errors.InvalidInput(errors.PhaseCall, "max of nothing")
			}
			best, err := wantInt(args[0])
			if err != nil {
				return nil, err
			}
			for _, a := range args[1:] {
				v, err := wantInt(a)
				if err != nil {
					return nil, err
				}
				if v > best {
					best = v
				}
			}
			return best, nil
		}),
	})

	r.Register("builtins", map[string]any{
		// kwargs builds a keyword mapping from alternating key/value
		// pairs, for use as the mapping operand of a spread call.
		"kwargs": bridge.Func(func(args []any) (any, error) {
			if len(args)%2 != 0 {
				return nil, errors.InvalidInput(errors.PhaseCall,
					"kwargs requires alternating key/value pairs")
			}
			m := make(map[string]any, len(args)/2)
			for i := 0; i < len(args); i += 2 {
				k, err := wantString(args[i])
				if err != nil {
					return nil, err
				}
				m[k] = args[i+1]
			}
			return m, nil
		}),
		"len": bridge.Func(func(args []any) (any, error) {
			if err := wantArgs(args, 1); err != nil {
				return nil, err
			}
			switch v := args[0].(type) {
			case string:
				return int64(len(v)), nil
			case []byte:
				return int64(len(v)), nil
			case []any:
				return int64(len(v)), nil
			case map[string]any:
				return int64(len(v)), nil
			}
			return nil, errors.TypeMismatch(errors.PhaseCall, "sized value", args[0])
		}),
		"apply": bridge.Func(func(args []any) (any, error) {
			if len(args) == 0 {
				return nil, errors.InvalidInput(errors.PhaseCall, "apply requires a callable")
			}
			fn, ok := args[0].(bridge.Callable)
			if !ok {
				return nil, errors.NotCallable(args[0])
			}
			return fn.Invoke(args[1:])
		}),
	})

	return r
}

// joinFunc joins string arguments, honoring the sep keyword when
// invoked through a spread call.
type joinFunc struct{}

func (joinFunc) Invoke(args []any) (any, error) {
	return joinFunc{}.InvokeKeywords(args, nil)
}

func (joinFunc) InvokeKeywords(args []any, kwargs map[string]any) (any, error) {
	sep := ""
	if v, ok := kwargs["sep"]; ok {
		s, err := wantString(v)
		if err != nil {
			return nil, err
		}
		sep = s
	}
	parts := make([]string, len(args))
	for i, a := range args {
		s, err := wantString(a)
		if err != nil {
			return nil, err
		}
		parts[i] = s
	}
	return strings.Join(parts, sep), nil
}

func unary(fn func(string) (any, error)) bridge.Func {
	return func(args []any) (any, error) {
		if err := wantArgs(args, 1); err != nil {
			return nil, err
		}
		s, err := wantString(args[0])
		if err != nil {
			return nil, err
		}
		return fn(s)
	}
}

func wantArgs(args []any, n int) error {
	if len(args) != n {
		return errors.InvalidInput(errors.PhaseCall,
			fmt.Sprintf("expected %d argument(s), got %d", n, len(args)))
	}
	return nil
}

func wantString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.TypeMismatch(errors.PhaseCall, "text", v)
	}
	return s, nil
}

func wantInt(v any) (int64, error) {
	i, ok := v.(int64)
	if !ok {
		return 0, errors.TypeMismatch(errors.PhaseCall, "integer", v)
	}
	return i, nil
}
