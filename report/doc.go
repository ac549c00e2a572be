// Package report delivers job status updates to the record store.
//
// A Reporter is invoked up to three times per job: once for running, once for
// the terminal result, and optionally once more to flag that the downstream
// embedding step completed. Updates are partial; absent fields stay
// unchanged. A false return means the job identifier was unknown or the
// update could not be delivered; callers log it and move on rather than
// retrying, so a report failure never rolls back an execution.
package report
