// Package database provides the SQLite run ledger for portalcapture.
//
// Every capture run is recorded with its job ID, identity, artifact kind,
// target page, final state, error classification, artifact path and
// digest, and timings. The credential secret and session tokens are never
// stored.
//
// Design decision: We use SQLite (via modernc.org/sqlite) because the
// ledger is local to one machine, needs no server, and the CGO-free driver
// keeps cross-compilation simple. WAL mode lets `history` read while a
// batch is writing.
package database
