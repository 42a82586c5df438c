package migration

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
	"github.com/tphakala/eventlog-migrator/internal/errors"
	"github.com/tphakala/eventlog-migrator/internal/logger"
)

const elemNewMetaData = "meta-data"

// Outcome is the result variant of processing one legacy record.
type Outcome int

const (
	OutcomeConverted Outcome = iota
	OutcomeDuplicate
	OutcomeNoMapping
	OutcomeMalformed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConverted:
		return "converted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeNoMapping:
		return "no_mapping"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Settled reports whether a record with this outcome needs no later run:
// it is in the target store or can never be converted. Records skipped for
// a missing mapping or lost to a failure must be read again.
func (o Outcome) Settled() bool {
	return o == OutcomeConverted || o == OutcomeDuplicate || o == OutcomeMalformed
}

// LegacyEvent is the input of a transformation.
type LegacyEvent struct {
	Key       entities.EventKey
	TimeStamp string
	Payload   []byte
}

// Result is the output of a transformation. Entry is set only when Outcome
// is OutcomeConverted; Err explains the other outcomes.
type Result struct {
	Outcome Outcome
	Entry   *entities.EventEntry
	Err     error
}

// TransformerConfig configures a Transformer.
type TransformerConfig struct {
	Resolver   *IdentifierResolver
	Accounting *Accounting
	Logger     logger.Logger
}

// Transformer remaps legacy documents to the new event schema.
type Transformer struct {
	resolver *IdentifierResolver
	acct     *Accounting
	log      logger.Logger
}

// NewTransformer creates a transformer. The accounting owns the set of
// payload types whose missing mapping was already logged.
func NewTransformer(cfg TransformerConfig) *Transformer {
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = NewIdentifierResolver(nil, nil, false)
	}
	acct := cfg.Accounting
	if acct == nil {
		acct = NewAccounting()
	}
	return &Transformer{resolver: resolver, acct: acct, log: cfg.Logger}
}

// Transform converts ev into a new event entry. Unparseable documents and
// unresolvable identifiers are returned as outcomes, not errors; the error
// is reserved for a failing upcaster.
func (t *Transformer) Transform(ev LegacyEvent, chain *Chain) (Result, error) {
	parsed, err := ParseDocument(ev.Payload)
	if err != nil {
		return Result{Outcome: OutcomeMalformed, Err: err}, nil
	}

	upcast, err := chain.Apply(parsed)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}, err
	}
	doc, err := asDocument(upcast)
	if err != nil {
		return Result{Outcome: OutcomeMalformed, Err: err}, nil
	}

	// Work on a copy so the upcast document is never mutated.
	root := doc.Root().Copy()
	payloadType := root.Tag

	field, err := t.resolver.Resolve(payloadType, root)
	if err != nil {
		if t.acct.Silence(payloadType) && t.log != nil {
			t.log.Warn("no identifier mapping available, events of this type are skipped",
				logger.String("payload_type", payloadType),
				logger.Error(err))
		}
		return Result{Outcome: OutcomeNoMapping, Err: err}, nil
	}

	entry, err := remap(ev, root, field)
	if err != nil {
		return Result{Outcome: OutcomeMalformed, Err: err}, nil
	}
	return Result{Outcome: OutcomeConverted, Entry: entry}, nil
}

func asDocument(p Payload) (*etree.Document, error) {
	switch v := p.(type) {
	case DocumentPayload:
		if v.Doc == nil || v.Doc.Root() == nil {
			return nil, fmt.Errorf("%w: upcaster produced an empty document", ErrMalformedPayload)
		}
		return v.Doc, nil
	case BytesPayload:
		parsed, err := ParseDocument(v)
		if err != nil {
			return nil, err
		}
		return parsed.Doc, nil
	default:
		return nil, fmt.Errorf("%w: unsupported representation %s", ErrMalformedPayload, p.Representation())
	}
}

// remap rewrites root in place; root must be a private copy.
func remap(ev LegacyEvent, root *etree.Element, field string) (*entities.EventEntry, error) {
	metaData := root.SelectElement(elemMetaData)
	if metaData == nil {
		return nil, fmt.Errorf("%w: missing %s element", ErrMalformedPayload, elemMetaData)
	}
	aggregateID := root.SelectElement(elemAggregateID)
	if aggregateID == nil {
		return nil, fmt.Errorf("%w: missing %s element", ErrMalformedPayload, elemAggregateID)
	}

	entry := &entities.EventEntry{
		Type:                ev.Key.Type,
		AggregateIdentifier: ev.Key.AggregateIdentifier,
		SequenceNumber:      ev.Key.SequenceNumber,
		TimeStamp:           ev.TimeStamp,
		PayloadType:         root.Tag,
	}
	if rev := root.SelectAttr(attrEventRevision); rev != nil {
		revision := rev.Value
		entry.PayloadRevision = &revision
		root.RemoveAttr(attrEventRevision)
	}

	root.RemoveChild(metaData)
	if seq := root.SelectElement(elemSequenceNumber); seq != nil {
		root.RemoveChild(seq)
	}
	aggregateID.Tag = field

	payload, err := serialize(root)
	if err != nil {
		return nil, err
	}
	entry.Payload = payload

	eventID, newMeta, err := splitMetaData(metaData)
	if err != nil {
		return nil, err
	}
	// The new table requires a unique event identifier.
	if eventID == "" {
		eventID = uuid.NewString()
	}
	entry.EventIdentifier = eventID

	if entry.MetaData, err = serialize(newMeta); err != nil {
		return nil, err
	}
	return entry, nil
}

// splitMetaData extracts the event identifier, drops the timestamp and
// moves every other entry up in place of the values element. metaData is
// renamed in place, so its attributes and other children are kept.
func splitMetaData(metaData *etree.Element) (string, *etree.Element, error) {
	metaData.Tag = elemNewMetaData
	values := metaData.SelectElement(elemValues)
	if values == nil {
		return "", metaData, nil
	}

	var eventID string
	var kept []*etree.Element
	for _, entry := range values.ChildElements() {
		children := entry.ChildElements()
		if len(children) < 2 {
			return "", nil, fmt.Errorf("%w: metadata entry has %d elements", ErrMalformedPayload, len(children))
		}
		switch strings.TrimSpace(children[0].Text()) {
		case metaKeyIdentifier:
			eventID = strings.TrimSpace(children[1].Text())
		case metaKeyTimestamp:
		default:
			kept = append(kept, entry)
		}
	}

	at := values.Index()
	metaData.RemoveChildAt(at)
	for i, entry := range kept {
		metaData.InsertChildAt(at+i, entry)
	}
	return eventID, metaData, nil
}

func serialize(el *etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el)
	b, err := doc.WriteToBytes()
	if err != nil {
		return nil, errors.New(err).
			Component(componentMigration).
			Category(errors.CategoryTransform).
			Context("element", el.Tag).
			Build()
	}
	return b, nil
}
