// Package server provides the thin HTTP layer in front of the job record
// store and the queue: code submission, job status polling, and the
// job-update callback the worker reports through.
package server
