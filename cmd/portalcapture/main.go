// Package main provides the entry point for the portalcapture CLI.
//
// portalcapture logs in to a CAPTCHA-gated student portal and captures a
// rendered snapshot of an authenticated page as a PNG artifact. Every
// capture runs in its own worker process.
//
// Usage:
//
//	portalcapture capture <identity> < secret
//	portalcapture capture --batch credentials.tsv
//	portalcapture history
//
// See --help for all available options.
package main

// main is the entry point for portalcapture.
func main() {
	Execute()
}
