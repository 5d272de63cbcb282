// Package media decodes the base64 payloads browsers send for images and audio.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrEmptyPayload indicates a payload with no data after decoding.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrInvalidEncoding indicates the payload is not valid base64.
	ErrInvalidEncoding = errors.New("payload is not valid base64")
)

const base64Marker = "base64,"

// Payload is a decoded media blob.
type Payload struct {
	Data     []byte
	MIMEType string
	// Extension includes the leading dot, e.g. ".png".
	Extension string
}

// StripDataURLPrefix removes a "data:<mime>;base64," prefix if present.
func StripDataURLPrefix(s string) string {
	if i := strings.Index(s, base64Marker); i >= 0 {
		return s[i+len(base64Marker):]
	}
	return s
}

// Decode parses a base64 string or data URL and sniffs its content type.
func Decode(s string) (*Payload, error) {
	raw := strings.TrimSpace(StripDataURLPrefix(s))
	if raw == "" {
		return nil, ErrEmptyPayload
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		// Some encoders drop the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	mt := mimetype.Detect(data)
	return &Payload{
		Data:      data,
		MIMEType:  mt.String(),
		Extension: mt.Extension(),
	}, nil
}

// IsImage reports whether the sniffed type is an image.
func (p *Payload) IsImage() bool {
	return strings.HasPrefix(p.MIMEType, "image/")
}

// IsAudio reports whether the sniffed type looks like an audio container.
// WebM and Ogg recordings from MediaRecorder sniff as video/* or
// application/ogg, so those count too.
func (p *Payload) IsAudio() bool {
	base := p.baseType()
	switch {
	case strings.HasPrefix(base, "audio/"):
		return true
	case base == "video/webm", base == "video/mp4", base == "application/ogg":
		return true
	}
	return false
}

// Filename returns a name whose extension lets the provider recognise the
// container, falling back to def when the type is unknown.
func (p *Payload) Filename(stem, def string) string {
	if p.Extension == "" || p.baseType() == "application/octet-stream" {
		return def
	}
	return stem + p.Extension
}

// DataURL re-encodes the payload as a data URL with its sniffed type.
func (p *Payload) DataURL() string {
	return "data:" + p.baseType() + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

func (p *Payload) baseType() string {
	if i := strings.Index(p.MIMEType, ";"); i >= 0 {
		return p.MIMEType[:i]
	}
	return p.MIMEType
}
