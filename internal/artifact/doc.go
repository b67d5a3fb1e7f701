// Package artifact stores captured page images on disk.
//
// Artifacts are named <identity>_<kind>.png inside the storage directory.
// The identity part is escaped reversibly (see PathFor), so two different
// identities never map to the same file.
// Writes go through a temporary file in the same directory followed by a
// rename, so a reader never observes a half-written image and a failed
// write leaves the previous artifact (or nothing) in place.
//
// Concurrent captures for the same identity and kind race on the same
// path. The last rename wins; callers that need ordering must serialize
// such calls themselves.
package artifact
