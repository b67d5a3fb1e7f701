// Package pipeline runs the authenticate-then-capture sequence for a job.
//
// The login, submit, verify, render and save chain is modelled as a short
// list of Steps that advance a model.CrawlJob through its state machine
// instead of nested callbacks. Each step owns the transitions it performs,
// so every terminal state (DONE, REJECTED, AUTH_ERROR, CAPTURE_FAILED,
// ABORTED) is set in exactly one place and can be tested on its own.
//
// BatchProcessor runs many independent captures with a concurrency limit
// and request pacing using errgroup and a token bucket.
package pipeline
