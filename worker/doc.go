// Package worker ties the queue consumer, the sandbox executor, the outcome
// evaluator and the status reporter together for one received message at a
// time. Each worker instance processes at most one in-flight job; horizontal
// scale-out is additional worker processes on the same queue.
package worker
