package wire

import "sync"

// ForgetQueue records handles whose local proxy has been released, so
// the matching forget notices can be sent lazily ahead of the next
// outbound frame.
//
// Release may happen on any goroutine; writing directly to the stream
// from there would interleave with an in-flight frame. This is the one
// structure in the bridge that must be safe for concurrent use.
type ForgetQueue struct {
	mu      sync.Mutex
	handles []int64
}

// Put enqueues a handle for a deferred forget notice.
func (q *ForgetQueue) Put(h int64) {
	q.mu.Lock()
	q.handles = append(q.handles, h)
	q.mu.Unlock()
}

// Drain writes a forget frame for every pending handle, in FIFO order.
// The loop calls this immediately before every other outbound write, so
// notices are never reordered past the frame that provoked them.
func (q *ForgetQueue) Drain(w *Writer) error {
	q.mu.Lock()
	pending := q.handles
	q.handles = nil
	q.mu.Unlock()

	for _, h := range pending {
		if err := w.WriteFrame(OpForget, h); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of pending notices.
func (q *ForgetQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.handles)
}
