package session

import (
	"sync/atomic"

	"go.uber.org/zap"

	bridge "github.com/wippyai/bridge-runtime"
	"github.com/wippyai/bridge-runtime/errors"
	"github.com/wippyai/bridge-runtime/registry"
	"github.com/wippyai/bridge-runtime/wire"
)

// Remote is the session's proxy for a callable owned by the peer.
//
// Registry slots referencing a Remote own counted references to it;
// local code that keeps a Remote beyond the call that delivered it must
// Retain and later Release it. The final Release enqueues the forget
// notice rather than writing to the stream directly, because releases may
// happen on any goroutine while a frame is in flight.
type Remote struct {
	s      *Session
	handle int64
	refs   atomic.Int32
}

var _ bridge.Remote = (*Remote)(nil)

func (s *Session) newRemote(peerHandle int64) *Remote {
	return &Remote{s: s, handle: peerHandle}
}

// Handle returns the peer-side handle this proxy stands for.
func (r *Remote) Handle() int64 {
	return r.handle
}

// Retain adds a reference.
func (r *Remote) Retain() {
	r.refs.Add(1)
}

// Release drops a reference. Dropping the last one defers a forget
// notice for the peer's handle.
func (r *Remote) Release() {
	if r.refs.Add(-1) == 0 {
		r.s.forgets.Put(r.handle)
	}
}

// Invoke sends a call frame for the peer's callable and re-enters the
// call loop until the matching terminal frame arrives. Command frames
// received in the meantime are serviced first, which is what makes the
// loop reentrant.
func (r *Remote) Invoke(args []any) (any, error) {
	s := r.s
	if err := s.forgets.Drain(s.out); err != nil {
		return nil, err
	}
	if err := s.out.WriteFrame(wire.OpCallback, r.handle); err != nil {
		return nil, err
	}
	if err := s.out.WriteInt(int64(len(args))); err != nil {
		return nil, err
	}
	// Each argument gets a fresh local handle; ownership of those
	// handles passes to the peer, which forgets them when done.
	for _, a := range args {
		h := s.allocValue(registry.FromAny(a))
		if err := s.out.WriteInt(int64(h)); err != nil {
			return nil, err
		}
	}

	s.log.Debug("callback sent",
		zap.Int64("remote_handle", r.handle),
		zap.Int("args", len(args)))

	ret, err := s.runLoop()
	if err != nil {
		return nil, err
	}
	v, err := s.reg.Get(registry.Handle(ret))
	if err != nil {
		return nil, errors.Violation("callback return references an invalid handle", err)
	}
	return v.Interface(), nil
}
