// Package shared provides an atomically reference-counted handle over a
// value. Every handle contributes exactly one strong reference; the value's
// destructor runs once, on the goroutine whose Drop releases the last one.
//
//	h := shared.NewWithRelease(conn, func(c *Conn) { c.Close() })
//	c := h.Clone()
//	go func() {
//		defer c.Drop()
//		use(c.Get())
//	}()
//	h.Drop()
//
// Handles that become unreachable without Drop are dropped by a GC cleanup,
// so the destructor still runs, just later.
package shared
