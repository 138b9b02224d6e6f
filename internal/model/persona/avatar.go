package persona

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultAvatarSymbol is shown when no image has been uploaded.
const DefaultAvatarSymbol = "💖"

// AvatarKind distinguishes the AvatarRef variants.
type AvatarKind string

const (
	AvatarDefault  AvatarKind = "default"
	AvatarUploaded AvatarKind = "uploaded"
)

var supportedImageTypes = map[string]string{
	"image/png":  "image/png",
	"image/jpeg": "image/jpeg",
	"image/jpg":  "image/jpeg",
	"image/gif":  "image/gif",
	"image/webp": "image/webp",
}

// UnsupportedImageTypeError is returned for uploads that do not declare a supported image MIME type.
type UnsupportedImageTypeError struct {
	MIMEType string
}

func (e *UnsupportedImageTypeError) Error() string {
	if e.MIMEType == "" {
		return "unsupported image type: missing content type"
	}
	return fmt.Sprintf("unsupported image type: %s", e.MIMEType)
}

// AvatarRef is either the default symbol or an uploaded image kept as opaque bytes.
// Pixel data is never decoded.
type AvatarRef struct {
	kind     AvatarKind
	symbol   string
	data     []byte
	mimeType string
}

// DefaultAvatar returns the symbolic avatar. An empty symbol selects DefaultAvatarSymbol.
func DefaultAvatar(symbol string) AvatarRef {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		symbol = DefaultAvatarSymbol
	}
	return AvatarRef{kind: AvatarDefault, symbol: symbol}
}

// NewUploadedAvatar validates the declared MIME type and retains a private copy of data.
func NewUploadedAvatar(data []byte, mimeType string) (AvatarRef, error) {
	normalized := normalizeMIME(mimeType)
	canonical, ok := supportedImageTypes[normalized]
	if !ok {
		return AvatarRef{}, &UnsupportedImageTypeError{MIMEType: strings.TrimSpace(mimeType)}
	}
	return AvatarRef{
		kind:     AvatarUploaded,
		data:     append([]byte(nil), data...),
		mimeType: canonical,
	}, nil
}

func normalizeMIME(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	return mimeType
}

// Kind reports the variant. The zero value is treated as the default avatar.
func (a AvatarRef) Kind() AvatarKind {
	if a.kind == "" {
		return AvatarDefault
	}
	return a.kind
}

// IsUploaded reports whether the avatar carries image bytes.
func (a AvatarRef) IsUploaded() bool {
	return a.kind == AvatarUploaded
}

// Symbol returns the default symbol, or "" for uploaded avatars.
func (a AvatarRef) Symbol() string {
	if a.IsUploaded() {
		return ""
	}
	if a.symbol == "" {
		return DefaultAvatarSymbol
	}
	return a.symbol
}

// MIMEType returns the canonical MIME type of an uploaded avatar.
func (a AvatarRef) MIMEType() string {
	return a.mimeType
}

// Bytes returns a copy of the uploaded image bytes.
func (a AvatarRef) Bytes() []byte {
	if !a.IsUploaded() {
		return nil
	}
	return append([]byte(nil), a.data...)
}

// DataURL renders the reference for a browser: a data URL for uploads, the symbol otherwise.
func (a AvatarRef) DataURL() string {
	if !a.IsUploaded() {
		return a.Symbol()
	}
	return "data:" + a.mimeType + ";base64," + base64.StdEncoding.EncodeToString(a.data)
}

// Equal reports whether two references render identically.
func (a AvatarRef) Equal(other AvatarRef) bool {
	if a.Kind() != other.Kind() {
		return false
	}
	if !a.IsUploaded() {
		return a.Symbol() == other.Symbol()
	}
	return a.mimeType == other.mimeType && bytes.Equal(a.data, other.data)
}

type avatarJSON struct {
	Kind     AvatarKind `json:"kind"`
	Symbol   string     `json:"symbol,omitempty"`
	MIMEType string     `json:"mimeType,omitempty"`
	URL      string     `json:"url"`
}

// MarshalJSON exposes the avatar in a render-ready form.
func (a AvatarRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(avatarJSON{
		Kind:     a.Kind(),
		Symbol:   a.Symbol(),
		MIMEType: a.mimeType,
		URL:      a.DataURL(),
	})
}
