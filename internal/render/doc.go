// Package render captures authenticated portal pages as PNG images.
//
// A Renderer drives a headless rendering service. Two backends exist:
//   - SplashRenderer talks to a Splash-compatible render.json endpoint
//     and receives the page image as base64.
//   - CDPRenderer drives a remote Chrome over the DevTools protocol.
//
// Capturer ties a Renderer to an artifact.Store. It refuses to run for a
// login that was not accepted, validates that the payload really is a PNG,
// and writes it to the identity's deterministic path. Every failure wraps
// model.ErrRender, and a failed capture never leaves a file at the
// target path.
package render
