// Package errors provides standardized error handling for the federation core.
//
// # Overview
//
// The package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable),
// and Fatal (unrecoverable, stop processing). Classification drives the
// queue's retry decision: a transient failure is redelivered with backoff,
// an invalid one is logged and acknowledged.
//
// # API Errors
//
// APIError carries an HTTP status, wire error string, and optional
// description. Inbox handlers return APIErrors for precondition failures
// (missing author, not-owned delete target) and the pipeline maps them to
// the exact wire response. Any APIError with a status below 500 is a soft
// failure from the queue's perspective: the remote's data was the problem,
// not transient infrastructure, so the job is completed rather than retried.
//
// # Usage
//
// Wrap third-party errors with component context:
//
//	if err := store.NoteByURI(ctx, uri); err != nil {
//	    return errors.WrapTransient(err, "Processor", "handleNote", "note lookup")
//	}
//
// Check classification for retry logic:
//
//	if errors.IsTransient(err) {
//	    return queue.Retry(err)
//	}
package errors
