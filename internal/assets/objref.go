// ABOUTME: Object reference parsing for assets (objref://category/uuid)
// ABOUTME: Ref is the stable identity handed to clients and engines

package assets

import (
	"errors"
	"fmt"
	"strings"
)

// RefScheme prefixes every serialized asset reference.
const RefScheme = "objref://"

// ErrInvalidRef is returned when a string is not an objref://category/uuid reference
var ErrInvalidRef = errors.New("invalid asset reference")

// Ref identifies an asset by category and uuid.
type Ref struct {
	Category string
	UUID     string
}

// ParseRef parses "objref://category/uuid".
func ParseRef(s string) (Ref, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), RefScheme)
	if !ok {
		return Ref{}, fmt.Errorf("%w: missing %s prefix in %q", ErrInvalidRef, RefScheme, s)
	}

	category, uuid, ok := strings.Cut(rest, "/")
	if !ok || category == "" || uuid == "" || strings.Contains(uuid, "/") {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}

	return Ref{Category: category, UUID: uuid}, nil
}

// String formats the reference as objref://category/uuid.
func (r Ref) String() string {
	return RefScheme + r.Category + "/" + r.UUID
}
