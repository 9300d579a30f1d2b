package peer

import (
	"fmt"
	"sync/atomic"
)

// Object is a host-side reference to a value owned by the guest's
// registry.
type Object struct {
	p        *Peer
	h        int64
	released atomic.Bool
}

// Handle returns the guest-side handle.
func (o *Object) Handle() int64 {
	return o.h
}

// Release schedules a forget notice for the guest's handle. It is
// idempotent and safe to call from any goroutine; the notice is written
// ahead of the next outbound frame.
func (o *Object) Release() {
	if o.released.CompareAndSwap(false, true) {
		o.p.forgets.Put(o.h)
	}
}

// RemoteError reports a failure raised by the guest. Object references
// the guest-side failure value; callers that know its shape can inspect
// it (for example with GetBytes on a textual failure) before releasing
// it.
type RemoteError struct {
	Object *Object
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	return fmt.Sprintf("peer raised an exception (handle %d)", e.Object.h)
}

// Is reports whether target matches this error type
func (e *RemoteError) Is(target error) bool {
	_, ok := target.(*RemoteError)
	return ok
}

// raisedObject is the error returned by RaiseObject: it instructs the
// callback loop to raise an existing guest value instead of exporting a
// host error.
type raisedObject struct {
	obj *Object
}

func (e *raisedObject) Error() string {
	return fmt.Sprintf("raise guest object (handle %d)", e.obj.h)
}

// RaiseObject wraps an existing guest-owned value as the failure of a
// callback handler. The guest re-raises that value directly.
func RaiseObject(o *Object) error {
	return &raisedObject{obj: o}
}
