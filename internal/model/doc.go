// Package model defines the data structures shared by the capture pipeline.
//
// This package contains the following main types:
//   - Credential: identity and secret supplied per run
//   - Session: the portal session established when the login page is fetched
//   - CaptchaChallenge / CaptchaAnswer: the hand-off to a captcha resolver
//   - AuthResult: the verified outcome of a login submission
//   - CaptureArtifact: the rendered image of an authenticated page
//   - CrawlJob: the unit of work with its state machine
//
// Design decision: We keep these types in their own package so that the
// portal, render, isolate and pipeline packages can share them without
// import cycles. The error taxonomy lives here for the same reason: errors
// cross package and process boundaries and must be recognisable with
// errors.Is on both sides.
package model
