package artifact

// Package artifact holds the image payloads the wizard uploads: document scans
// and selfies, whether picked from disk or captured from the camera.

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"

	// MinSizeKB is the smallest upload that is not flagged as low resolution.
	MinSizeKB = 80
	// MaxAdvisedSizeKB is the largest document upload that is not flagged as oversized.
	MaxAdvisedSizeKB = 4096

	SelfieFilename = "selfie.jpg"
)

// Source records where an artifact came from.
type Source string

const (
	SourceFile   Source = "file"
	SourceCamera Source = "camera"
)

var (
	ErrUnsupportedType = errors.New("selfie is not a jpeg or png image")
	ErrTooSmall        = errors.New("selfie is below the minimum size")
	ErrEmpty           = errors.New("no selfie staged")
)

// User-facing text for the selfie checks.
const (
	UnsupportedTypeMessage = "Only JPEG and PNG images are allowed for selfie."
	TooSmallMessage        = "Selfie image is quite small; it may look blurry. Consider retaking with better lighting."
	EmptyMessage           = "Please capture or upload a selfie image to upload."
)

// Artifact is an in-memory image ready to be sent as a multipart file part.
type Artifact struct {
	Data        []byte
	ContentType string
	Filename    string
	Source      Source
}

// FromFile reads path and sniffs its content type.
func FromFile(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return &Artifact{
		Data:        data,
		ContentType: DetectContentType(path, data),
		Filename:    filepath.Base(path),
		Source:      SourceFile,
	}, nil
}

// FromCamera wraps an encoded JPEG frame under the canonical selfie name.
func FromCamera(jpeg []byte) *Artifact {
	return &Artifact{
		Data:        jpeg,
		ContentType: ContentTypeJPEG,
		Filename:    SelfieFilename,
		Source:      SourceCamera,
	}
}

// DetectContentType sniffs data, falling back to the file extension when the
// bytes are not recognised as an image.
func DetectContentType(name string, data []byte) string {
	ct := http.DetectContentType(data)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return ContentTypeJPEG
	case ".png":
		return ContentTypePNG
	}
	return ct
}

// SizeKB is the payload size in whole kilobytes, rounded down.
func (a *Artifact) SizeKB() int {
	return len(a.Data) / 1024
}

// IsImage reports whether the artifact is a JPEG or PNG.
func (a *Artifact) IsImage() bool {
	return a.ContentType == ContentTypeJPEG || a.ContentType == ContentTypePNG
}

// CheckDocument returns advisory warnings for a document upload. Warnings
// never block the upload; the service decides validity.
func CheckDocument(a *Artifact) []string {
	var warnings []string
	switch kb := a.SizeKB(); {
	case kb < MinSizeKB:
		warnings = append(warnings, "Image seems very small. It may be low resolution or blurry. Try capturing a clearer photo.")
	case kb > MaxAdvisedSizeKB:
		warnings = append(warnings, "Image is larger than 4 MB. Consider retaking with a slightly lower resolution.")
	}
	if !a.IsImage() {
		warnings = append(warnings, "Only JPEG and PNG images are allowed.")
	}
	return warnings
}

// CheckSelfie rejects selfies the service would not accept.
func CheckSelfie(a *Artifact) error {
	if a == nil || len(a.Data) == 0 {
		return ErrEmpty
	}
	if !a.IsImage() {
		return ErrUnsupportedType
	}
	if a.SizeKB() < MinSizeKB {
		return ErrTooSmall
	}
	return nil
}

// Message returns the text shown to the user for a CheckSelfie error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedType):
		return UnsupportedTypeMessage
	case errors.Is(err, ErrTooSmall):
		return TooSmallMessage
	case errors.Is(err, ErrEmpty):
		return EmptyMessage
	}
	return err.Error()
}

// Slot holds at most one pending artifact. Setting replaces the previous one.
type Slot struct {
	mu sync.Mutex
	a  *Artifact
}

// Set stores a, discarding whatever was held.
func (s *Slot) Set(a *Artifact) {
	s.mu.Lock()
	s.a = a
	s.mu.Unlock()
}

// Peek returns the held artifact without clearing it.
func (s *Slot) Peek() *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a
}

// Take returns the held artifact and empties the slot.
func (s *Slot) Take() *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.a
	s.a = nil
	return a
}

// Clear empties the slot.
func (s *Slot) Clear() {
	s.Set(nil)
}
