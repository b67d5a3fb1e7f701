package model

import (
	"strings"
)

// EncodingPNG is the only image encoding produced by the capture pipeline.
const EncodingPNG = "png"

// ArtifactKind names the page an artifact was captured from.
// It becomes part of the artifact file name.
type ArtifactKind string

const (
	// KindTests is the test marks report page.
	KindTests ArtifactKind = "tests"

	// KindAttendance is the attendance page.
	KindAttendance ArtifactKind = "attendance"

	// KindItinerary is the timetable page.
	KindItinerary ArtifactKind = "itinerary"
)

// Valid reports whether the kind is safe to use in a file name.
func (k ArtifactKind) Valid() bool {
	if k == "" {
		return false
	}
	return !strings.ContainsAny(string(k), `/\. `)
}

// CaptureArtifact is the decoded image of an authenticated page.
type CaptureArtifact struct {
	// Data holds the raw image bytes.
	Data []byte `json:"-"`

	// Encoding is always EncodingPNG.
	Encoding string `json:"encoding"`

	// TargetPath is where the artifact is (or will be) stored.
	TargetPath string `json:"target_path"`

	// SourceURL is the page that was rendered.
	SourceURL string `json:"source_url"`

	// HTML is the rendered markup when the backend returns it.
	HTML string `json:"-"`

	// Digest is the hex encoded SHA3-256 of Data.
	Digest string `json:"digest,omitempty"`
}
