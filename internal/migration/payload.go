package migration

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/tphakala/eventlog-migrator/internal/errors"
)

// Representation tags the form a payload is held in.
type Representation string

const (
	RepresentationDocument Representation = "document"
	RepresentationBytes    Representation = "bytes"
)

// Payload is a serialized event in one of the supported representations.
type Payload interface {
	Representation() Representation
}

// DocumentPayload is a parsed XML document.
type DocumentPayload struct {
	Doc *etree.Document
}

func (DocumentPayload) Representation() Representation { return RepresentationDocument }

// BytesPayload is the raw serialized form.
type BytesPayload []byte

func (BytesPayload) Representation() Representation { return RepresentationBytes }

// ParseDocument parses raw XML into a DocumentPayload.
func ParseDocument(raw []byte) (DocumentPayload, error) {
	if len(raw) == 0 {
		return DocumentPayload{}, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return DocumentPayload{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if doc.Root() == nil {
		return DocumentPayload{}, fmt.Errorf("%w: no root element", ErrMalformedPayload)
	}
	return DocumentPayload{Doc: doc}, nil
}

// Upcaster rewrites a payload from an older shape to a newer one. An
// upcaster must not modify its input; it returns a new value instead.
type Upcaster interface {
	Name() string
	SupportedRepresentation() Representation
	Upcast(p Payload) (Payload, error)
}

// Chain is an ordered list of upcasters, fixed for the lifetime of a run.
type Chain struct {
	upcasters []Upcaster
}

// NewChain returns a chain applying upcasters in the given order.
func NewChain(upcasters ...Upcaster) *Chain {
	return &Chain{upcasters: append([]Upcaster(nil), upcasters...)}
}

// Len returns the number of upcasters in the chain.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.upcasters)
}

// Apply folds p through the chain. An upcaster only sees the payload when
// its supported representation matches the payload's current one. A nil
// chain returns p unchanged.
func (c *Chain) Apply(p Payload) (Payload, error) {
	if c == nil {
		return p, nil
	}
	current := p
	for _, u := range c.upcasters {
		if u.SupportedRepresentation() != current.Representation() {
			continue
		}
		next, err := u.Upcast(current)
		if err != nil {
			return nil, errors.New(fmt.Errorf("upcaster %s: %w", u.Name(), err)).
				Component(componentMigration).
				Category(errors.CategoryTransform).
				Context("upcaster", u.Name()).
				Build()
		}
		if next == nil {
			return nil, errors.Newf("upcaster %s returned no payload", u.Name()).
				Component(componentMigration).
				Category(errors.CategoryTransform).
				Build()
		}
		current = next
	}
	return current, nil
}
