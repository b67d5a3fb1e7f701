// Package scrape is the entry point of the capture core.
//
// Orchestrator.RunScrape runs one authenticate-then-capture job in a fresh
// worker process, checks the artifact it reports, records the run in the
// ledger and returns the artifact path or the job's error unmodified.
//
// NewJobFunc is the other half: it builds the portal, captcha, render and
// pipeline components from the request's configuration and runs the job
// inside the worker.
package scrape
