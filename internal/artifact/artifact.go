// Package artifact defines the binary artifacts mapped to scopes and the
// Source contract the registry consumes to fetch them.
package artifact

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Type classifies what an artifact contributes to a namespace.
type Type string

const (
	// TypeModule contributes one module named after the artifact.
	TypeModule Type = "module"
	// TypeResource contributes one resource named after the artifact.
	TypeResource Type = "resource"
	// TypeArchive is a zip archive whose files become resources, and whose
	// files carrying the module suffix also become modules.
	TypeArchive Type = "archive"
)

// Valid reports whether t is a known artifact type.
func (t Type) Valid() bool {
	switch t {
	case TypeModule, TypeResource, TypeArchive:
		return true
	default:
		return false
	}
}

// ParseType converts a string into a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown artifact type %q", s)
	}
	return t, nil
}

// Artifact is a named immutable blob mapped to a scope. Holders must treat
// Content as read-only.
type Artifact struct {
	Name     string
	FileName string
	Type     Type
	Content  []byte
	// Version is an opaque producer-assigned version. When empty, ETag
	// falls back to the content digest.
	Version string
}

// ETag identifies this exact artifact revision.
func (a Artifact) ETag() string {
	if a.Version != "" {
		return a.Version
	}
	return Digest(a.Content)
}

// Clone returns a copy whose Content does not alias a's.
func (a Artifact) Clone() Artifact {
	out := a
	out.Content = bytes.Clone(a.Content)
	return out
}

// Digest returns the hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SetETag summarises an ordered artifact set. Two sets with the same names,
// order and ETags produce the same value.
func SetETag(artifacts []Artifact) string {
	h := blake3.New()
	for _, a := range artifacts {
		_, _ = fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\n", a.Name, a.Type, a.FileName, a.ETag())
	}
	return hex.EncodeToString(h.Sum(nil))
}
