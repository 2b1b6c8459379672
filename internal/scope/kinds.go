package scope

import (
	"fmt"
	"slices"
	"strings"
)

// DefaultKinds are the local scope kinds known out of the box.
var DefaultKinds = []Kind{"process", "tenant", "deployment"}

// Kinds is the immutable set of scope kinds a registry accepts. Global is
// always a member.
type Kinds struct {
	known map[Kind]struct{}
}

// NewKinds builds a Kinds set from the given local kinds. Empty names and
// names containing "/" are skipped. With no arguments only Global is known.
func NewKinds(kinds ...Kind) *Kinds {
	known := map[Kind]struct{}{KindGlobal: {}}
	for _, k := range kinds {
		if k == "" || strings.Contains(string(k), "/") {
			continue
		}
		known[k] = struct{}{}
	}
	return &Kinds{known: known}
}

// DefaultKindSet returns a set containing DefaultKinds.
func DefaultKindSet() *Kinds {
	return NewKinds(DefaultKinds...)
}

// Has reports whether kind is known.
func (k *Kinds) Has(kind Kind) bool {
	_, ok := k.known[kind]
	return ok
}

// List returns the known kinds sorted by name.
func (k *Kinds) List() []Kind {
	out := make([]Kind, 0, len(k.known))
	for kind := range k.known {
		out = append(out, kind)
	}
	slices.Sort(out)
	return out
}

// Validate checks id against the known kinds.
func (k *Kinds) Validate(id ID) error {
	if id.Kind == KindGlobal {
		if id.Instance != "" {
			return fmt.Errorf("%w: global scope cannot carry instance %q", ErrInvalidID, id.Instance)
		}
		return nil
	}
	if !k.Has(id.Kind) {
		return fmt.Errorf("%w: %q", ErrUnknownKind, id.Kind)
	}
	if id.Instance == "" {
		return fmt.Errorf("%w: %s scope requires an instance id", ErrInvalidID, id.Kind)
	}
	return nil
}
