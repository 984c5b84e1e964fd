// Package rwaccess serializes exclusive (write) operations against an
// arbitrary asynchronous resource, while allowing unlimited concurrent read
// operations, without blocking any goroutine.
//
// An [Access] wraps promises, tagging each as read or write. Driving a
// wrapped promise suspends the owning [Execution], queues an access request,
// and resumes the execution once the reader/writer exclusion rule admits it:
// any number of reads may run at once, a write runs alone. Requests are
// granted in arrival order, a waiting writer blocks later reads, and an
// optional per-request timeout bounds how long a request may wait for its
// grant (the wrapped operation is never started after a timeout).
//
// The coordinator itself never blocks and takes no locks beyond atomic
// compare-and-swap; submission, granting, timing out, and relinquishing may
// all occur concurrently on different goroutines.
package rwaccess
