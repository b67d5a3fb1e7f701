// Package captcha hands portal captcha challenges to an external solver.
//
// Solving is not done here. A Resolver receives the session-bound challenge
// and returns a best-effort answer from one of the backends:
//   - HTTPResolver: a solver service with a submit/poll task API
//   - AMQPResolver: request/reply over a RabbitMQ queue
//   - Static: a fixed answer, for portals in test mode and for tests
//
// Each job asks exactly once; retrying with a fresh challenge is left to the
// caller, which would need a new session anyway.
package captcha
