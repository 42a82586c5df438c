package main

import (
	"strconv"
	"time"

	"github.com/beevik/etree"
)

// identifierField is the payload element that carries the aggregate id in
// generated events; the written identifier mapping points every type to it.
const identifierField = "entityId"

const timestampLayout = "2006-01-02T15:04:05"

// generatedEvent describes one generated legacy event.
type generatedEvent struct {
	PayloadType string
	AggregateID string
	Sequence    int64
	EventID     string
	Timestamp   time.Time
	Amount      int
}

// currentFormat serializes ev the way the legacy store holds most events:
// a revision attribute and a metaData block with timestamp and identifier.
func currentFormat(ev generatedEvent) ([]byte, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement(ev.PayloadType)
	root.CreateAttr("eventRevision", "1")

	values := root.CreateElement("metaData").CreateElement("values")
	metaEntry(values, "_timestamp", "localDateTime", ev.Timestamp.Format(timestampLayout))
	metaEntry(values, "_identifier", "uuid", ev.EventID)
	metaEntry(values, "source", "string", "eventgen")

	appendBody(root, ev)
	return doc.WriteToBytes()
}

// oldFormat serializes ev in the oldest serializer shape, without metaData.
func oldFormat(ev generatedEvent) ([]byte, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement(ev.PayloadType)
	root.CreateElement("timestamp").SetText(ev.Timestamp.Format(timestampLayout))
	root.CreateElement("eventIdentifier").SetText(ev.EventID)

	appendBody(root, ev)
	return doc.WriteToBytes()
}

func metaEntry(values *etree.Element, key, valueTag, value string) {
	entry := values.CreateElement("entry")
	entry.CreateElement("string").SetText(key)
	entry.CreateElement(valueTag).SetText(value)
}

func appendBody(root *etree.Element, ev generatedEvent) {
	root.CreateElement("sequenceNumber").SetText(strconv.FormatInt(ev.Sequence, 10))
	root.CreateElement("aggregateIdentifier").SetText(ev.AggregateID)
	root.CreateElement("amount").SetText(strconv.Itoa(ev.Amount))
}

// sagaDocument serializes an untyped saga whose root element names its type.
func sagaDocument(sagaType, sagaID string) ([]byte, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement(sagaType)
	root.CreateElement("sagaId").SetText(sagaID)
	root.CreateElement("isActive").SetText("true")
	return doc.WriteToBytes()
}
