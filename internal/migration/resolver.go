package migration

import (
	"fmt"
	"slices"

	"github.com/beevik/etree"
)

// IdentifierResolver decides which field replaces the generic
// aggregateIdentifier element of a payload type.
type IdentifierResolver struct {
	mapping     map[string]string
	schemas     map[string][]string
	autoResolve bool
}

// NewIdentifierResolver creates a resolver. mapping holds explicit
// payload type to field name entries; schemas lists the declared fields of
// each payload type and is only consulted when autoResolve is set.
func NewIdentifierResolver(mapping map[string]string, schemas map[string][]string, autoResolve bool) *IdentifierResolver {
	return &IdentifierResolver{
		mapping:     mapping,
		schemas:     schemas,
		autoResolve: autoResolve,
	}
}

// Resolve returns the identifier field name for root. It fails with
// ErrNoMapping when nothing is configured and ErrAmbiguousMapping when the
// schema does not single out exactly one candidate.
func (r *IdentifierResolver) Resolve(payloadType string, root *etree.Element) (string, error) {
	if name := r.mapping[payloadType]; name != "" {
		return name, nil
	}
	if !r.autoResolve {
		return "", fmt.Errorf("%w for %s", ErrNoMapping, payloadType)
	}

	fields, ok := r.schemas[payloadType]
	if !ok {
		return "", fmt.Errorf("%w for %s: type not in schema registry", ErrNoMapping, payloadType)
	}

	candidates := Candidates(fields, root)
	if len(candidates) != 1 {
		return "", fmt.Errorf("%w for %s: candidates %v", ErrAmbiguousMapping, payloadType, candidates)
	}
	return candidates[0], nil
}

// Candidates returns the sorted declared fields that have no matching child
// element under root. Comparison is exact and case sensitive.
func Candidates(fields []string, root *etree.Element) []string {
	var out []string
	for _, f := range fields {
		if f == "" || root.SelectElement(f) != nil {
			continue
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	slices.Sort(out)
	return out
}
