package core

import (
	"fmt"
	"strings"
)

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface {
	isPart()
	// Kind returns the variant tag of the part.
	Kind() PartKind
}

// PartKind tags the concrete variant of a Part.
type PartKind string

const (
	PartText     PartKind = "text"
	PartImage    PartKind = "image"
	PartAudio    PartKind = "audio"
	PartDocument PartKind = "document"
)

// TextPart is a plain text content segment.
type TextPart struct {
	Text string // Plain UTF-8 text
}

func (TextPart) isPart() {}

// Kind implements Part.
func (TextPart) Kind() PartKind { return PartText }

// Media carries either inline bytes or a string reference (URL or path)
// together with the declared media type.
type Media struct {
	Data      []byte // Inline payload
	URL       string // External reference, used when Data is empty
	MediaType string // e.g. image/png, audio/wav, application/pdf
}

// Inline reports whether the payload is carried as bytes.
func (m Media) Inline() bool { return len(m.Data) > 0 }

// ImagePart is an image attachment.
type ImagePart struct{ Media }

func (ImagePart) isPart() {}

// Kind implements Part.
func (ImagePart) Kind() PartKind { return PartImage }

// AudioPart is an audio attachment.
type AudioPart struct{ Media }

func (AudioPart) isPart() {}

// Kind implements Part.
func (AudioPart) Kind() PartKind { return PartAudio }

// DocumentPart is a document attachment (PDF or plain text).
type DocumentPart struct {
	Media
	Name string // Optional filename hint
}

func (DocumentPart) isPart() {}

// Kind implements Part.
func (DocumentPart) Kind() PartKind { return PartDocument }

// NewImagePart builds an ImagePart after checking the media type family.
func NewImagePart(m Media) (ImagePart, error) {
	if err := checkMedia(PartImage, m); err != nil {
		return ImagePart{}, err
	}
	return ImagePart{Media: m}, nil
}

// NewAudioPart builds an AudioPart after checking the media type family.
func NewAudioPart(m Media) (AudioPart, error) {
	if err := checkMedia(PartAudio, m); err != nil {
		return AudioPart{}, err
	}
	return AudioPart{Media: m}, nil
}

// NewDocumentPart builds a DocumentPart after checking the media type family.
func NewDocumentPart(name string, m Media) (DocumentPart, error) {
	if err := checkMedia(PartDocument, m); err != nil {
		return DocumentPart{}, err
	}
	return DocumentPart{Media: m, Name: name}, nil
}

// ValidatePart checks that a part's variant tag agrees with its declared
// media type and that exactly one of inline data or reference is present.
func ValidatePart(p Part) error {
	switch v := p.(type) {
	case TextPart:
		return nil
	case ImagePart:
		return checkMedia(PartImage, v.Media)
	case AudioPart:
		return checkMedia(PartAudio, v.Media)
	case DocumentPart:
		return checkMedia(PartDocument, v.Media)
	default:
		return NewConfigurationError("parts", fmt.Sprintf("unsupported part type %T", p))
	}
}

func checkMedia(kind PartKind, m Media) error {
	if m.Inline() == (m.URL != "") {
		return NewConfigurationError(string(kind), "exactly one of data or url must be set")
	}
	mt := strings.ToLower(strings.TrimSpace(m.MediaType))
	if mt == "" {
		return NewConfigurationError(string(kind), "media type is required")
	}
	if !mediaMatches(kind, mt) {
		return NewConfigurationError(string(kind), fmt.Sprintf("media type %q does not match %s part", m.MediaType, kind))
	}
	return nil
}

func mediaMatches(kind PartKind, mt string) bool {
	switch kind {
	case PartImage:
		return strings.HasPrefix(mt, "image/")
	case PartAudio:
		return strings.HasPrefix(mt, "audio/")
	case PartDocument:
		return mt == "application/pdf" || strings.HasPrefix(mt, "text/")
	default:
		return false
	}
}
