// Package queue provides the durable job queue client.
//
// The queue package wraps an AMQP 0-9-1 connection as an owned
// connection-manager object with an explicit lifecycle. Messages are
// published with persistent delivery to a named durable queue, so jobs
// survive a broker restart. Consumers run with prefetch 1, limiting each
// worker instance to one in-flight job at a time. A lost broker connection
// invalidates the channel immediately and schedules a reconnect (and, on the
// consumer side, a resubscribe) after a fixed delay.
package queue
