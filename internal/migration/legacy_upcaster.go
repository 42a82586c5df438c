package migration

import (
	"fmt"

	"github.com/beevik/etree"
)

const (
	elemMetaData        = "metaData"
	elemValues          = "values"
	elemEntry           = "entry"
	elemString          = "string"
	elemSequenceNumber  = "sequenceNumber"
	elemAggregateID     = "aggregateIdentifier"
	attrEventRevision   = "eventRevision"
	metaKeyIdentifier   = "_identifier"
	metaKeyTimestamp    = "_timestamp"
	legacyElemTimestamp = "timestamp"
	legacyElemEventID   = "eventIdentifier"
)

// LegacyUpcaster converts documents written by the oldest serializer, which
// stored the timestamp and event identifier as plain child elements, into
// the metaData shape the transformer expects. Documents that already carry
// a metaData block are returned as an unchanged copy.
type LegacyUpcaster struct{}

func (LegacyUpcaster) Name() string { return "legacy-event" }

func (LegacyUpcaster) SupportedRepresentation() Representation { return RepresentationDocument }

func (LegacyUpcaster) Upcast(p Payload) (Payload, error) {
	in, ok := p.(DocumentPayload)
	if !ok || in.Doc == nil || in.Doc.Root() == nil {
		return nil, fmt.Errorf("%w: expected a parsed document", ErrMalformedPayload)
	}

	out := in.Doc.Copy()
	root := out.Root()
	if root.SelectElement(elemMetaData) != nil {
		return DocumentPayload{Doc: out}, nil
	}

	if root.SelectAttr(attrEventRevision) == nil {
		root.CreateAttr(attrEventRevision, "0")
	}

	metaData := etree.NewElement(elemMetaData)
	values := metaData.CreateElement(elemValues)

	if ts := root.SelectElement(legacyElemTimestamp); ts != nil {
		addMetaEntry(values, metaKeyTimestamp, "localDateTime", ts.Text())
		root.RemoveChild(ts)
	}
	if id := root.SelectElement(legacyElemEventID); id != nil {
		addMetaEntry(values, metaKeyIdentifier, "uuid", id.Text())
		root.RemoveChild(id)
	}

	root.InsertChildAt(0, metaData)
	return DocumentPayload{Doc: out}, nil
}

func addMetaEntry(values *etree.Element, key, valueTag, value string) {
	entry := values.CreateElement(elemEntry)
	entry.CreateElement(elemString).SetText(key)
	entry.CreateElement(valueTag).SetText(value)
}
