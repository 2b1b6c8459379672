// Package scope defines scope identifiers and the set of known scope kinds.
//
// A scope is an isolation boundary that owns its own artifacts. Exactly one
// scope, Global, has no parent; every other scope is a local scope whose
// parent is Global.
package scope

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownKind is returned when a scope names a kind that was not
	// registered. It is a programming or configuration error and is never
	// defaulted to Global.
	ErrUnknownKind = errors.New("scope: unknown kind")
	// ErrInvalidID indicates a malformed scope identifier.
	ErrInvalidID = errors.New("scope: invalid id")
)

// Kind is an open enumeration of scope kinds ("process", "tenant", ...).
type Kind string

// KindGlobal is the kind of the single Global scope.
const KindGlobal Kind = "global"

// ID identifies a scope. IDs are comparable values; two IDs are the same
// scope exactly when both fields are equal.
type ID struct {
	Kind     Kind
	Instance string
}

// Global is the root scope shared by every local scope.
var Global = ID{Kind: KindGlobal}

// New returns the local scope (kind, instance).
func New(kind Kind, instance string) ID {
	return ID{Kind: kind, Instance: instance}
}

// IsGlobal reports whether id is the Global scope.
func (id ID) IsGlobal() bool {
	return id == Global
}

// IsZero reports whether id is the zero value, used as "no scope".
func (id ID) IsZero() bool {
	return id == ID{}
}

// Parent returns the parent scope. Global has none.
func (id ID) Parent() (ID, bool) {
	if id.IsGlobal() || id.IsZero() {
		return ID{}, false
	}
	return Global, true
}

// String renders "global" or "<kind>/<instance>".
func (id ID) String() string {
	if id.IsGlobal() {
		return string(KindGlobal)
	}
	return string(id.Kind) + "/" + id.Instance
}

// Parse is the inverse of ID.String. It does not check the kind against a
// Kinds set; use Kinds.Validate for that.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == string(KindGlobal) {
		return Global, nil
	}
	kind, instance, ok := strings.Cut(s, "/")
	if !ok || kind == "" || instance == "" {
		return ID{}, fmt.Errorf("%w: %q (want \"global\" or \"<kind>/<instance>\")", ErrInvalidID, s)
	}
	return New(Kind(kind), instance), nil
}
