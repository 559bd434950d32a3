// Package task manages background job queuing, processing, and lifecycle.
// It provides mechanisms for asynchronous execution of long-running indexing
// runs, ensuring they don't block HTTP request handling and can recover from
// application restarts. Delivery is at-least-once: a re-delivered signal for
// a finished task is a no-op.
package task
